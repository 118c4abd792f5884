// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/staking"
	"github.com/stakehub-labs/stakehub/token"
)

const (
	denom        = "uluna"
	epochPeriod  = 3 * 86400
	unbondPeriod = 21 * 86400

	t0 uint64 = 1_700_000_000
)

var (
	owner   = stakehub.NamedAddress("owner")
	alice   = stakehub.NamedAddress("alice")
	bob     = stakehub.NamedAddress("bob")
	feeSink = stakehub.NamedAddress("fee-sink")
)

type env struct {
	bank  *token.MemBank
	stake *token.MemLedger
	chain *staking.MemModule
	hub   *hub.Hub
}

func newEnv(t *testing.T, strategy planner.Strategy, validators ...string) *env {
	db := kv.NewMem()
	bank := token.NewMemBank()
	stake := token.NewMemLedger()
	chain := staking.NewMemModule(bank, stakehub.NamedAddress("hub"), denom, unbondPeriod)
	for _, v := range validators {
		chain.RegisterValidator(v)
	}

	h, err := hub.New(t0, db, bank, stake, chain, planner.New(nil, nil), hub.Config{
		Owner:        owner,
		Denom:        denom,
		EpochPeriod:  epochPeriod,
		UnbondPeriod: unbondPeriod,
		Validators:   validators,
		FeeConfig:    hub.FeeConfig{FeeSink: feeSink, ProtocolRewardFee: dec.MustParse("0.05")},
		Strategy:     strategy,
	}, eventdb.Noop())
	require.NoError(t, err)

	require.NoError(t, bank.Deposit(alice, denom, bn.FromUint64(1_000_000)))
	require.NoError(t, bank.Deposit(bob, denom, bn.FromUint64(1_000_000)))
	return &env{bank: bank, stake: stake, chain: chain, hub: h}
}

func (e *env) delegation(t *testing.T, validator string) uint64 {
	t.Helper()
	delegations, err := e.chain.Delegations()
	require.NoError(t, err)
	for _, d := range delegations {
		if d.Validator == validator {
			return d.Amount.Uint64()
		}
	}
	return 0
}

func (e *env) stakeBalance(t *testing.T, of stakehub.Address) uint64 {
	t.Helper()
	bal, err := e.stake.Balance(of)
	require.NoError(t, err)
	return bal.Uint64()
}

func (e *env) bankBalance(t *testing.T, of stakehub.Address) uint64 {
	t.Helper()
	bal, err := e.bank.Balance(of, denom)
	require.NoError(t, err)
	return bal.Uint64()
}

func TestNewValidation(t *testing.T) {
	db := kv.NewMem()
	bank := token.NewMemBank()
	stake := token.NewMemLedger()
	chain := staking.NewMemModule(bank, stakehub.NamedAddress("hub"), denom, unbondPeriod)
	chain.RegisterValidator("val1")

	cfg := hub.Config{
		Owner:        owner,
		Denom:        denom,
		EpochPeriod:  epochPeriod,
		UnbondPeriod: unbondPeriod,
		Validators:   []string{"val1"},
		FeeConfig:    hub.FeeConfig{FeeSink: feeSink, ProtocolRewardFee: dec.MustParse("0.05")},
		Strategy:     planner.UniformStrategy(),
	}

	bad := cfg
	bad.EpochPeriod = 0
	_, err := hub.New(t0, db, bank, stake, chain, planner.New(nil, nil), bad, eventdb.Noop())
	assert.True(t, errs.Is(err, errs.KindCantBeZero))

	bad = cfg
	bad.FeeConfig.ProtocolRewardFee = dec.MustParse("0.11")
	_, err = hub.New(t0, db, bank, stake, chain, planner.New(nil, nil), bad, eventdb.Noop())
	assert.True(t, errs.Is(err, errs.KindProtocolRewardFeeTooHigh))

	bad = cfg
	bad.Validators = []string{"ghost"}
	_, err = hub.New(t0, db, bank, stake, chain, planner.New(nil, nil), bad, eventdb.Noop())
	assert.True(t, errs.Is(err, errs.KindInvalidValidatorAddress))
}

func TestBondMintsAtExchangeRate(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	_, err := e.hub.ExchangeRate()
	require.NoError(t, err)

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))
	assert.Equal(t, uint64(100_000), e.stakeBalance(t, alice))
	assert.Equal(t, uint64(100_000), e.chain.TotalBonded().Uint64())

	err = e.hub.Bond(t0, alice, alice, bn.Int{})
	assert.True(t, errs.Is(err, errs.KindInvalidZeroAmount))

	// donation raises the rate without minting
	err = e.hub.Donate(t0, bob, bn.FromUint64(50_000))
	assert.True(t, errs.Is(err, errs.KindDonationsDisabled))

	allow := true
	require.NoError(t, e.hub.UpdateConfig(t0, owner, nil, nil, nil, &allow))
	require.NoError(t, e.hub.Donate(t0, bob, bn.FromUint64(50_000)))
	assert.Equal(t, uint64(0), e.stakeBalance(t, bob))

	rate, err := e.hub.ExchangeRate()
	require.NoError(t, err)
	assert.Zero(t, dec.MustParse("1.5").Cmp(rate))

	// minting now follows the appreciated rate
	require.NoError(t, e.hub.Bond(t0, bob, bob, bn.FromUint64(30_000)))
	assert.Equal(t, uint64(20_000), e.stakeBalance(t, bob))
}

func TestBondPicksLeastDelegated(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100)))
	assert.Equal(t, uint64(100), e.delegation(t, "val1"))

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(50)))
	assert.Equal(t, uint64(50), e.delegation(t, "val2"))
}

func TestHarvestReinvest(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))
	e.chain.AccrueReward("val1", bn.FromUint64(10_000))

	require.NoError(t, e.hub.Harvest(t0+100))

	assert.Equal(t, uint64(500), e.bankBalance(t, feeSink))
	assert.Equal(t, uint64(109_500), e.chain.TotalBonded().Uint64())
	assert.Equal(t, uint64(0), e.bankBalance(t, e.hub.Address()))

	rate, err := e.hub.ExchangeRate()
	require.NoError(t, err)
	assert.Zero(t, dec.MustParse("1.095").Cmp(rate))

	state, err := e.hub.State()
	require.NoError(t, err)
	assert.Empty(t, state.UnlockedCoins)
	assert.Equal(t, uint64(109_500), state.TVL.Uint64())

	// nothing to reinvest
	err = e.hub.Harvest(t0 + 200)
	assert.True(t, errs.Is(err, errs.KindNoTokensAvailable))
}

func TestUpdateConfig(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	sink := stakehub.NamedAddress("new-sink")
	fee := dec.MustParse("0.08")
	require.NoError(t, e.hub.UpdateConfig(t0, owner, &sink, &fee, nil, nil))

	cfg, err := e.hub.Config()
	require.NoError(t, err)
	assert.Equal(t, sink, cfg.FeeConfig.FeeSink)
	assert.Zero(t, fee.Cmp(cfg.FeeConfig.ProtocolRewardFee))

	tooHigh := dec.MustParse("0.2")
	err = e.hub.UpdateConfig(t0, owner, nil, &tooHigh, nil, nil)
	assert.True(t, errs.Is(err, errs.KindProtocolRewardFeeTooHigh))

	err = e.hub.UpdateConfig(t0, alice, nil, nil, nil, nil)
	assert.True(t, errs.Is(err, errs.KindUnauthorized))
}

func TestOwnershipHandover(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	err := e.hub.ClaimOwnership(t0, bob)
	assert.True(t, errs.Is(err, errs.KindSenderNotNewOwner))

	require.NoError(t, e.hub.ProposeNewOwner(t0, owner, bob, 0))

	cfg, err := e.hub.Config()
	require.NoError(t, err)
	require.NotNil(t, cfg.NewOwner)
	assert.Equal(t, bob, *cfg.NewOwner)

	require.NoError(t, e.hub.ClaimOwnership(t0+10, bob))

	e.chain.RegisterValidator("val2")
	require.NoError(t, e.hub.AddValidator(t0+10, bob, "val2"))
	err = e.hub.AddValidator(t0+10, owner, "val2")
	assert.True(t, errs.Is(err, errs.KindUnauthorized))
}
