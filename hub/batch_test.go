// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/planner"
)

func TestQueueUnbondAndSubmit(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(60_000)))
	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(40_000)))
	assert.Equal(t, uint64(60_000), e.delegation(t, "val1"))
	assert.Equal(t, uint64(40_000), e.delegation(t, "val2"))

	err := e.hub.QueueUnbond(t0+10, alice, alice, bn.Int{})
	assert.True(t, errs.Is(err, errs.KindInvalidZeroAmount))

	require.NoError(t, e.hub.QueueUnbond(t0+10, alice, alice, bn.FromUint64(30_000)))
	assert.Equal(t, uint64(70_000), e.stakeBalance(t, alice))
	assert.Equal(t, uint64(30_000), e.stakeBalance(t, e.hub.Address()))

	pending, err := e.hub.PendingBatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending.ID)
	assert.Equal(t, uint64(30_000), pending.StakeToBurn.Uint64())

	err = e.hub.SubmitBatch(t0 + 1000)
	assert.True(t, errs.Is(err, errs.KindSubmitBatchAfter))

	t1 := t0 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t1))

	// undelegations drain the largest delegation first
	assert.Equal(t, uint64(35_000), e.delegation(t, "val1"))
	assert.Equal(t, uint64(35_000), e.delegation(t, "val2"))
	assert.Equal(t, uint64(0), e.stakeBalance(t, e.hub.Address()))

	batch, err := e.hub.PreviousBatch(1)
	require.NoError(t, err)
	assert.False(t, batch.Reconciled)
	assert.Equal(t, uint64(30_000), batch.TotalShares.Uint64())
	assert.Equal(t, uint64(30_000), batch.TokenUnclaimed.Uint64())
	assert.Equal(t, t1+unbondPeriod, batch.EstUnbondEndTime)

	pending, err = e.hub.PendingBatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pending.ID)
	assert.Equal(t, t1+epochPeriod, pending.EstUnbondStartTime)

	byBatch, err := e.hub.UnbondRequestsByBatch(1, nil, nil)
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, alice, byBatch[0].User)
	assert.Equal(t, uint64(30_000), byBatch[0].Shares.Uint64())

	byUser, err := e.hub.UnbondRequestsByUser(alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, uint64(1), byUser[0].ID)

	details, err := e.hub.UnbondRequestsByUserDetails(t1+100, alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, hub.UnbondStateUnbonding, details[0].State)
	require.NotNil(t, details[0].ReleaseTime)
	assert.Equal(t, t1+unbondPeriod, *details[0].ReleaseTime)
}

func TestQueueUnbondTriggersDueSubmit(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))

	// queueing past the epoch boundary seals the batch in the same call
	t1 := t0 + epochPeriod + 5
	require.NoError(t, e.hub.QueueUnbond(t1, alice, alice, bn.FromUint64(40_000)))

	batch, err := e.hub.PreviousBatch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000), batch.TokenUnclaimed.Uint64())

	pending, err := e.hub.PendingBatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pending.ID)
	assert.True(t, pending.StakeToBurn.IsZero())
}

func TestSubmitBatchEmptyRollsWindow(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))

	t1 := t0 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t1))

	// no requests queued, the pending batch just moves its window forward
	_, err := e.hub.PreviousBatch(1)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))

	pending, err := e.hub.PendingBatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending.ID)
	assert.Equal(t, t1+epochPeriod, pending.EstUnbondStartTime)
}

func TestReconcileAndWithdraw(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1", "val2")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))
	require.NoError(t, e.hub.QueueUnbond(t0+10, alice, bob, bn.FromUint64(30_000)))

	t1 := t0 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t1))

	t2 := t1 + unbondPeriod + 1
	require.NoError(t, e.chain.ProcessUnbondings(t2))
	assert.Equal(t, uint64(30_000), e.bankBalance(t, e.hub.Address()))

	// withdrawing before reconciliation finds nothing claimable
	err := e.hub.WithdrawUnbonded(t2, bob, bob)
	assert.True(t, errs.Is(err, errs.KindCantBeZero))

	require.NoError(t, e.hub.Reconcile(t2))

	batch, err := e.hub.PreviousBatch(1)
	require.NoError(t, err)
	assert.True(t, batch.Reconciled)
	assert.Equal(t, uint64(30_000), batch.TokenUnclaimed.Uint64())

	before := e.bankBalance(t, bob)
	require.NoError(t, e.hub.WithdrawUnbonded(t2, bob, bob))
	assert.Equal(t, before+30_000, e.bankBalance(t, bob))
	assert.Equal(t, uint64(0), e.bankBalance(t, e.hub.Address()))

	// batch fully drained, the record is gone
	_, err = e.hub.PreviousBatch(1)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))

	err = e.hub.WithdrawUnbonded(t2, bob, bob)
	assert.True(t, errs.Is(err, errs.KindCantBeZero))
}

func TestReconcileShortfall(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(100_000)))

	require.NoError(t, e.hub.QueueUnbond(t0+10, alice, alice, bn.FromUint64(30_000)))
	t1 := t0 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t1))

	require.NoError(t, e.hub.QueueUnbond(t1+10, alice, alice, bn.FromUint64(30_000)))
	t2 := t1 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t2))

	require.NoError(t, e.chain.SlashUnbonding(bn.FromUint64(9)))

	t3 := t2 + unbondPeriod + 1
	require.NoError(t, e.chain.ProcessUnbondings(t3))
	assert.Equal(t, uint64(59_991), e.bankBalance(t, e.hub.Address()))

	require.NoError(t, e.hub.Reconcile(t3))

	// the deduction spreads evenly, the first batch absorbs the remainder
	b1, err := e.hub.PreviousBatch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(29_995), b1.TokenUnclaimed.Uint64())

	b2, err := e.hub.PreviousBatch(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(29_996), b2.TokenUnclaimed.Uint64())

	before := e.bankBalance(t, alice)
	require.NoError(t, e.hub.WithdrawUnbonded(t3, alice, alice))
	assert.Equal(t, before+59_991, e.bankBalance(t, alice))
}

func TestWithdrawPartialBatch(t *testing.T) {
	e := newEnv(t, planner.UniformStrategy(), "val1")

	require.NoError(t, e.hub.Bond(t0, alice, alice, bn.FromUint64(60_000)))
	require.NoError(t, e.hub.Bond(t0, bob, bob, bn.FromUint64(40_000)))

	require.NoError(t, e.hub.QueueUnbond(t0+10, alice, alice, bn.FromUint64(60_000)))
	require.NoError(t, e.hub.QueueUnbond(t0+20, bob, bob, bn.FromUint64(40_000)))

	t1 := t0 + epochPeriod
	require.NoError(t, e.hub.SubmitBatch(t1))

	t2 := t1 + unbondPeriod + 1
	require.NoError(t, e.chain.ProcessUnbondings(t2))
	require.NoError(t, e.hub.Reconcile(t2))

	require.NoError(t, e.hub.WithdrawUnbonded(t2, alice, alice))

	// bob's share stays behind until he claims it himself
	batch, err := e.hub.PreviousBatch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000), batch.TotalShares.Uint64())
	assert.Equal(t, uint64(40_000), batch.TokenUnclaimed.Uint64())

	require.NoError(t, e.hub.WithdrawUnbonded(t2, bob, bob))
	_, err = e.hub.PreviousBatch(1)
	assert.True(t, errs.Is(err, errs.KindNothingToWithdraw))
}
