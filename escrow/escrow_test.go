// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package escrow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/token"
)

var (
	owner = stakehub.NamedAddress("owner")
	alice = stakehub.NamedAddress("alice")
	bob   = stakehub.NamedAddress("bob")
)

func weeks(n uint64) uint64 {
	return n * stakehub.WeekSeconds
}

// at returns a timestamp n weeks past the period epoch.
func at(n uint64) uint64 {
	return stakehub.EpochStart + weeks(n)
}

type recordedUpdate struct {
	user stakehub.Address
	info escrow.LockInfo
}

type fakeObserver struct {
	updates []recordedUpdate
}

func (f *fakeObserver) UpdateVote(_ uint64, user stakehub.Address, info escrow.LockInfo) error {
	f.updates = append(f.updates, recordedUpdate{user, info})
	return nil
}

func newEscrow(t *testing.T) (*escrow.Escrow, *token.MemLedger, *fakeObserver) {
	db := kv.NewMem()
	t.Cleanup(func() { db.Close() })

	ledger := token.NewMemLedger()
	require.NoError(t, ledger.Mint(alice, bn.FromUint64(1_000_000)))
	require.NoError(t, ledger.Mint(bob, bn.FromUint64(1_000_000)))

	e, err := escrow.New(db, ledger, owner, eventdb.Noop())
	require.NoError(t, err)

	obs := &fakeObserver{}
	e.RegisterObserver(obs)
	return e, ledger, obs
}

func TestCreateLockValidation(t *testing.T) {
	e, _, _ := newEscrow(t)

	err := e.CreateLock(at(0), alice, bn.Int{}, weeks(3))
	assert.True(t, errs.Is(err, errs.KindInvalidZeroAmount))

	err = e.CreateLock(at(0), alice, bn.FromUint64(100), weeks(1))
	assert.Error(t, err)
	err = e.CreateLock(at(0), alice, bn.FromUint64(100), weeks(105))
	assert.Error(t, err)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(100), weeks(3)))
	err = e.CreateLock(at(0), alice, bn.FromUint64(100), weeks(3))
	assert.True(t, errs.Is(err, errs.KindLockAlreadyExists))
}

func TestLockDecay(t *testing.T) {
	e, ledger, _ := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(100000), weeks(3)))

	bal, _ := ledger.Balance(alice)
	assert.Equal(t, uint64(900000), bal.Uint64())

	info, err := e.LockInfo(at(0), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(223075), info.VotingPower.Uint64())
	assert.Equal(t, uint64(41025), info.Slope.Uint64())
	assert.Equal(t, uint64(100000), info.Fixed.Uint64())

	vp, err := e.UserVotingPower(at(1), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(182050), vp.Uint64())

	// floor at and past expiry
	for _, w := range []uint64{3, 4, 50} {
		vp, err = e.UserVotingPower(at(w), alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(100000), vp.Uint64())
	}
}

func TestWithdraw(t *testing.T) {
	e, ledger, obs := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(5000), weeks(2)))

	_, err := e.Withdraw(at(1), alice)
	assert.True(t, errs.Is(err, errs.KindLockNotExpired))

	amount, err := e.Withdraw(at(2), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), amount.Uint64())

	bal, _ := ledger.Balance(alice)
	assert.Equal(t, uint64(1_000_000), bal.Uint64())

	// the final push update zeroes the lock
	last := obs.updates[len(obs.updates)-1]
	assert.Equal(t, alice, last.user)
	assert.True(t, last.info.VotingPower.IsZero())

	_, err = e.Withdraw(at(2), alice)
	assert.True(t, errs.Is(err, errs.KindLockNotFound))
}

func TestExtendLockAmount(t *testing.T) {
	e, _, _ := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(100000), weeks(4)))
	require.NoError(t, e.ExtendLockAmount(at(1), alice, bn.FromUint64(100000), false))

	info, err := e.LockInfo(at(1), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200000), info.Amount.Uint64())
	// timing untouched
	assert.Equal(t, uint64(4), info.End)

	// expired locks need the restart flag
	err = e.ExtendLockAmount(at(10), alice, bn.FromUint64(1), false)
	assert.True(t, errs.Is(err, errs.KindLockExpired))

	require.NoError(t, e.ExtendLockAmount(at(10), alice, bn.FromUint64(1), true))
	info, err = e.LockInfo(at(10), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), info.End)
}

func TestExtendLockTime(t *testing.T) {
	e, _, _ := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(100000), weeks(3)))
	require.NoError(t, e.ExtendLockTime(at(1), alice, weeks(5)))

	info, err := e.LockInfo(at(1), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), info.End)
	assert.Equal(t, uint64(1), info.Start)

	// beyond the maximum duration
	err = e.ExtendLockTime(at(1), alice, weeks(104))
	assert.Error(t, err)
}

func TestDepositFor(t *testing.T) {
	e, ledger, _ := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(1000), weeks(4)))
	require.NoError(t, e.DepositFor(at(1), bob, alice, bn.FromUint64(500)))

	info, err := e.LockInfo(at(1), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), info.Amount.Uint64())

	bal, _ := ledger.Balance(bob)
	assert.Equal(t, uint64(999_500), bal.Uint64())
}

func TestBlacklist(t *testing.T) {
	e, _, obs := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(1000), weeks(4)))

	err := e.UpdateBlacklist(at(0), bob, []stakehub.Address{alice}, nil)
	assert.True(t, errs.Is(err, errs.KindUnauthorized))

	require.NoError(t, e.UpdateBlacklist(at(0), owner, []stakehub.Address{alice}, nil))
	listed, err := e.IsBlacklisted(alice)
	require.NoError(t, err)
	assert.True(t, listed)

	// the push update revoked alice's power
	last := obs.updates[len(obs.updates)-1]
	assert.True(t, last.info.VotingPower.IsZero())

	err = e.ExtendLockAmount(at(1), alice, bn.FromUint64(1), false)
	assert.True(t, errs.Is(err, errs.KindBlacklisted))

	voters, err := e.BlacklistedVoters(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []stakehub.Address{alice}, voters)

	require.NoError(t, e.UpdateBlacklist(at(0), owner, nil, []stakehub.Address{alice}))
	listed, err = e.IsBlacklisted(alice)
	require.NoError(t, err)
	assert.False(t, listed)
}

func TestTotalVotingPower(t *testing.T) {
	e, _, _ := newEscrow(t)

	require.NoError(t, e.CreateLock(at(0), alice, bn.FromUint64(100000), weeks(3)))
	require.NoError(t, e.CreateLock(at(0), bob, bn.FromUint64(100000), weeks(3)))

	total, err := e.TotalVotingPower(at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(2*223075), total.Uint64())

	total, err = e.TotalVotingPowerAt(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(200000), total.Uint64())
}

func TestOwnershipHandover(t *testing.T) {
	e, _, _ := newEscrow(t)

	err := e.ClaimOwnership(at(0), bob)
	assert.True(t, errs.Is(err, errs.KindSenderNotNewOwner))

	require.NoError(t, e.ProposeNewOwner(at(0), owner, bob, weeks(1)))
	err = e.ClaimOwnership(at(2), bob)
	assert.True(t, errs.Is(err, errs.KindSenderNotNewOwner))

	require.NoError(t, e.ProposeNewOwner(at(2), owner, bob, weeks(1)))
	require.NoError(t, e.ClaimOwnership(at(2), bob))
	require.NoError(t, e.UpdateBlacklist(at(2), bob, []stakehub.Address{alice}, nil))
}
