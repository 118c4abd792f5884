// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package arbvault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/arbvault"
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/stakehub"
)

func TestUnbondImmediate(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))

	err := e.vault.Unbond(t0, alice, bn.Int{}, true)
	assert.True(t, errs.Is(err, errs.KindInvalidZeroAmount))

	// 40000 out: 2% protocol fee and the full 5% pool fee apply
	require.NoError(t, e.vault.Unbond(t0+10, alice, bn.FromUint64(40_000), true))
	assert.Equal(t, uint64(60_000), e.lpBalance(t, alice))
	assert.Equal(t, uint64(937_200), e.bankBalance(t, alice))
	assert.Equal(t, uint64(800), e.bankBalance(t, feeSink))

	// the pool fee stays in the vault and accretes to remaining holders
	assert.Equal(t, uint64(62_000), e.bankBalance(t, e.vault.Address()))
	state, err := e.vault.State(t0+10, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(60_000), state.TotalLPSupply.Uint64())
	assert.True(t, state.ExchangeRate.Cmp(dec.One()) > 0)
}

func TestUnbondDelayedAndWithdrawImmediate(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))

	require.NoError(t, e.vault.Unbond(t0, alice, bn.FromUint64(40_000), false))
	assert.Equal(t, uint64(60_000), e.lpBalance(t, alice))
	// no funds move until the claim is withdrawn
	assert.Equal(t, uint64(100_000), e.bankBalance(t, e.vault.Address()))

	state, err := e.vault.State(t0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000), state.Balances.LockedUserWithdrawals.Uint64())
	assert.Equal(t, uint64(60_000), state.Balances.VaultTotal.Uint64())
	assert.Equal(t, uint64(60_000), state.Balances.VaultTakeable.Uint64())

	// halfway through the pool fee has decayed to half
	mid := t0 + unbondPeriod/2
	reqs, err := e.vault.UnbondRequests(mid, alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(0), reqs[0].ID)
	assert.Equal(t, t0+unbondPeriod, reqs[0].ReleaseTime)
	assert.False(t, reqs[0].Released)
	assert.Equal(t, uint64(800), reqs[0].WithdrawProtocolFee.Uint64())
	assert.Equal(t, uint64(1_000), reqs[0].WithdrawPoolFee.Uint64())

	err = e.vault.WithdrawImmediate(mid, alice, 7)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))

	require.NoError(t, e.vault.WithdrawImmediate(mid, alice, 0))
	assert.Equal(t, uint64(938_200), e.bankBalance(t, alice))
	assert.Equal(t, uint64(800), e.bankBalance(t, feeSink))
	assert.Equal(t, uint64(61_000), e.bankBalance(t, e.vault.Address()))

	state, err = e.vault.State(mid, false)
	require.NoError(t, err)
	assert.True(t, state.Balances.LockedUserWithdrawals.IsZero())

	err = e.vault.WithdrawImmediate(mid, alice, 0)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))
}

func TestWithdrawUnbondedAfterRelease(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))

	require.NoError(t, e.vault.Unbond(t0, alice, bn.FromUint64(40_000), false))

	err := e.vault.WithdrawUnbonded(t0+unbondPeriod-1, alice)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))

	err = e.vault.WithdrawUnbonded(t0+unbondPeriod, bob)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))

	// released claims pay the protocol fee only
	require.NoError(t, e.vault.WithdrawUnbonded(t0+unbondPeriod, alice))
	assert.Equal(t, uint64(939_200), e.bankBalance(t, alice))
	assert.Equal(t, uint64(800), e.bankBalance(t, feeSink))
	assert.Equal(t, uint64(60_000), e.bankBalance(t, e.vault.Address()))

	err = e.vault.WithdrawUnbonded(t0+unbondPeriod, alice)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))
}

// A later fee change does not reprice queued unbondings; the protocol
// fee is fixed when the request is created.
func TestQueuedProtocolFeeSurvivesFeeChange(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))
	require.NoError(t, e.vault.Unbond(t0, alice, bn.FromUint64(40_000), false))

	raised := defaultFees()
	raised.WithdrawFee = dec.MustParse("0.10")
	require.NoError(t, e.vault.UpdateConfig(t0+1, owner, arbvault.ConfigUpdate{FeeConfig: &raised}))

	reqs, err := e.vault.UnbondRequests(t0+1, alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(800), reqs[0].WithdrawProtocolFee.Uint64())

	require.NoError(t, e.vault.WithdrawUnbonded(t0+unbondPeriod, alice))
	assert.Equal(t, uint64(939_200), e.bankBalance(t, alice))
	assert.Equal(t, uint64(800), e.bankBalance(t, feeSink))
}

func TestWithdrawUnbondedCollectsMultiple(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))

	require.NoError(t, e.vault.Unbond(t0, alice, bn.FromUint64(20_000), false))
	require.NoError(t, e.vault.Unbond(t0+100, alice, bn.FromUint64(20_000), false))

	reqs, err := e.vault.UnbondRequests(t0+200, alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	// only the first request has been released
	release := t0 + unbondPeriod
	require.NoError(t, e.vault.WithdrawUnbonded(release, alice))
	assert.Equal(t, uint64(919_600), e.bankBalance(t, alice))

	reqs, err = e.vault.UnbondRequests(release, alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(1), reqs[0].ID)

	require.NoError(t, e.vault.WithdrawUnbonded(release+100, alice))
	reqs, err = e.vault.UnbondRequests(release+100, alice, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestUnbondRejectedWhileExecuting(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.vault.ProvideLiquidity(t0, alice, bn.FromUint64(100_000)))

	exec := &fakeExecutor{addr: stakehub.NamedAddress("executor-bot"), run: func(now uint64, funds bn.Int) error {
		return e.vault.Unbond(now, alice, bn.FromUint64(1_000), true)
	}}
	err := e.vault.ExecuteArbitrage(t0, arbitrageur, exec, bn.FromUint64(10_000), "stake-token", dec.MustParse("0.010"))
	assert.True(t, errs.Is(err, errs.KindAlreadyExecuting))
}
