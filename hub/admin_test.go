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
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/gauges/amp"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/staking"
	"github.com/stakehub-labs/stakehub/token"
)

func TestRebalance(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))
	assert.Equal(t, uint64(100_000), e.delegation(t, "val1"))

	err := e.hub.Rebalance(t0+10, alice, bn.Int{})
	assert.True(t, errs.Is(err, errs.KindUnauthorized))

	// moves below the threshold are skipped
	require.NoError(t, e.hub.Rebalance(t0+10, owner, bn.FromUint64(60_000)))
	assert.Equal(t, uint64(100_000), e.delegation(t, "val1"))

	require.NoError(t, e.hub.Rebalance(t0+20, owner, bn.Int{}))
	assert.Equal(t, uint64(50_000), e.delegation(t, "val1"))
	assert.Equal(t, uint64(50_000), e.delegation(t, "val2"))
}

func TestAddRemoveValidator(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2", "val3")

	err := e.hub.AddValidator(t0, owner, "val2")
	assert.True(t, errs.Is(err, errs.KindValidatorWhitelisted))
	err = e.hub.AddValidator(t0, owner, "ghost")
	assert.True(t, errs.Is(err, errs.KindInvalidValidatorAddress))
	err = e.hub.RemoveValidator(t0, owner, "ghost")
	assert.True(t, errs.Is(err, errs.KindValidatorNotWhitelisted))

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(40_000)))
	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(30_000)))
	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(30_000)))
	assert.Equal(t, uint64(40_000), e.delegation(t, "val1"))
	assert.Equal(t, uint64(30_000), e.delegation(t, "val2"))
	assert.Equal(t, uint64(30_000), e.delegation(t, "val3"))

	// removal redistributes the leaving validator's stake to the survivors
	require.NoError(t, e.hub.RemoveValidator(t0+10, owner, "val3"))
	assert.Equal(t, uint64(50_000), e.delegation(t, "val1"))
	assert.Equal(t, uint64(50_000), e.delegation(t, "val2"))
	assert.Equal(t, uint64(0), e.delegation(t, "val3"))

	cfg, err := e.hub.Config()
	require.NoError(t, err)
	assert.Equal(t, []string{"val1", "val2"}, cfg.Validators)

	// the last validator cannot be removed; bonds need a target
	require.NoError(t, e.hub.RemoveValidator(t0+20, owner, "val2"))
	err = e.hub.RemoveValidator(t0+30, owner, "val1")
	assert.Error(t, err)
	require.NoError(t, e.hub.Bond(t0+40, alice, alice, bn.FromUint64(10_000)))
}

func TestTuneDelegationsUniform(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2")

	err := e.hub.TuneDelegations(t0, alice)
	assert.True(t, errs.Is(err, errs.KindUnauthorized))

	// uniform strategy never persists a goal
	require.NoError(t, e.hub.TuneDelegations(t0, owner))

	wanted, err := e.hub.WantedDelegations(t0)
	require.NoError(t, err)
	require.Len(t, wanted.Shares, 2)
	half := dec.FromRatio(1, 2)
	assert.Zero(t, half.Cmp(wanted.Shares[0].Share))
	assert.Zero(t, half.Cmp(wanted.Shares[1].Share))
}

// Full path: an escrow lock votes on the amp gauges, the tune lands in the
// planner and the resulting goal steers undelegations and rebalancing.
func TestGaugeDrivenDelegationGoal(t *testing.T) {
	db := kv.NewMem()
	t.Cleanup(func() { db.Close() })

	bank := token.NewMemBank()
	stake := token.NewMemLedger()
	chain := staking.NewMemModule(bank, stakehub.NamedAddress("hub"), denom, unbondPeriod)
	chain.RegisterValidator("val1")
	chain.RegisterValidator("val2")

	tStart := stakehub.EpochStart + 200*stakehub.WeekSeconds

	h, err := hub.New(tStart, kv.Bucket("hub-").NewStore(db), bank, stake, chain, nil, hub.Config{
		Owner:        owner,
		Denom:        denom,
		EpochPeriod:  epochPeriod,
		UnbondPeriod: unbondPeriod,
		Validators:   []string{"val1", "val2"},
		FeeConfig:    hub.FeeConfig{FeeSink: feeSink, ProtocolRewardFee: dec.MustParse("0.05")},
		Strategy:     planner.UniformStrategy(),
	}, eventdb.Noop())
	require.NoError(t, err)

	esc, err := escrow.New(kv.Bucket("escrow-").NewStore(db), stake, owner, eventdb.Noop())
	require.NoError(t, err)
	gauge, err := amp.New(kv.Bucket("amp-").NewStore(db), esc, h, owner, eventdb.Noop())
	require.NoError(t, err)
	esc.RegisterObserver(gauge)
	h.SetPlanner(planner.New(gauge, nil))

	require.NoError(t, bank.Deposit(alice, denom, bn.FromUint64(100_000)))
	require.NoError(t, bank.Deposit(bob, denom, bn.FromUint64(100_000)))
	require.NoError(t, h.Bond(tStart, alice, alice, bn.FromUint64(100_000)))
	require.NoError(t, h.Bond(tStart, bob, bob, bn.FromUint64(100_000)))

	require.NoError(t, esc.CreateLock(tStart, alice, bn.FromUint64(100_000), 3*stakehub.WeekSeconds))
	require.NoError(t, gauge.Vote(tStart, alice, []amp.VoteWeight{
		{Validator: "val1", BPS: 6000},
		{Validator: "val2", BPS: 4000},
	}))

	// votes take effect one period later
	t1 := tStart + stakehub.WeekSeconds
	require.NoError(t, gauge.TuneVamp(t1, owner))

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10_000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10_000,
		ValidatorCount:   2,
		UseEmp:           false,
	})
	require.NoError(t, h.UpdateConfig(t1, owner, nil, nil, &strategy, nil))
	require.NoError(t, h.TuneDelegations(t1, owner))

	wanted, err := h.WantedDelegations(t1)
	require.NoError(t, err)
	require.Len(t, wanted.Shares, 2)
	assert.Equal(t, "val1", wanted.Shares[0].Validator)
	assert.Zero(t, dec.MustParse("0.6").Cmp(wanted.Shares[0].Share))
	assert.Zero(t, dec.MustParse("0.4").Cmp(wanted.Shares[1].Share))

	// the stored goal steers where the unbond is taken from
	require.NoError(t, h.QueueUnbond(t1+10, bob, bob, bn.FromUint64(30_000)))

	delegations, err := chain.Delegations()
	require.NoError(t, err)
	require.Len(t, delegations, 2)
	assert.Equal(t, uint64(100_000), delegations[0].Amount.Uint64())
	assert.Equal(t, uint64(70_000), delegations[1].Amount.Uint64())

	// rebalancing closes the remaining gap toward 60/40
	require.NoError(t, h.Rebalance(t1+20, owner, bn.Int{}))

	delegations, err = chain.Delegations()
	require.NoError(t, err)
	assert.Equal(t, uint64(102_000), delegations[0].Amount.Uint64())
	assert.Equal(t, uint64(68_000), delegations[1].Amount.Uint64())
}
