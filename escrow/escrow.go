// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package escrow implements the voting escrow: users lock receipt tokens
// for 2 to 104 weeks and receive voting power that decays linearly from a
// boosted initial value down to a fixed floor at lock expiry.
package escrow

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/gauges/gaugemath"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/log"
	"github.com/stakehub-labs/stakehub/ownable"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
	"github.com/stakehub-labs/stakehub/token"
)

var logger = log.WithContext("pkg", "escrow")

// Lock is the stored per-user lock.
type Lock struct {
	Amount      bn.Int
	Start       uint64 // period
	End         uint64 // period
	Coefficient dec.Dec
}

// LockInfo is the derived view of a lock pushed to vote observers.
type LockInfo struct {
	Amount      bn.Int  `json:"amount"`
	Coefficient dec.Dec `json:"coefficient"`
	Start       uint64  `json:"start"`
	End         uint64  `json:"end"`
	Slope       bn.Int  `json:"slope"`
	Fixed       bn.Int  `json:"fixed"`
	VotingPower bn.Int  `json:"votingPower"`
}

// VoteObserver receives push updates whenever a lock mutates.
// Implementations must idempotently cancel-then-reapply the user's votes.
type VoteObserver interface {
	UpdateVote(now uint64, user stakehub.Address, lock LockInfo) error
}

// Escrow is the voting escrow engine.
type Escrow struct {
	mu sync.Mutex

	addr         stakehub.Address
	depositToken token.Ledger
	recorder     eventdb.Recorder
	observers    []VoteObserver

	locks     *store.Mapping[Lock]
	blacklist *store.Mapping[bool]
	ownable   *ownable.Ownable
	guardian  *store.Item[stakehub.Address]
}

// New creates the escrow over the given store partition.
func New(s kv.Store, depositToken token.Ledger, owner stakehub.Address, recorder eventdb.Recorder) (*Escrow, error) {
	own, err := ownable.New(s, owner)
	if err != nil {
		return nil, err
	}
	return &Escrow{
		addr:         stakehub.NamedAddress("escrow"),
		depositToken: depositToken,
		recorder:     recorder,
		locks:        store.NewMapping[Lock](s, "locks"),
		blacklist:    store.NewMapping[bool](s, "blacklist"),
		ownable:      own,
		guardian:     store.NewItem[stakehub.Address](s, "guardian"),
	}, nil
}

// Address returns the account the escrow holds deposits under.
func (e *Escrow) Address() stakehub.Address {
	return e.addr
}

// RegisterObserver adds a push-update target, typically the amp gauges.
func (e *Escrow) RegisterObserver(o VoteObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// deriveInfo computes the observable lock state at nowPeriod.
func deriveInfo(lock Lock, nowPeriod uint64) LockInfo {
	raw := gaugemath.CalcVotingPower(lock.Coefficient, lock.Amount)
	_, slope := gaugemath.AdjustVpAndSlope(raw, lock.End-lock.Start, lock.Amount)

	var remaining uint64
	if nowPeriod < lock.End {
		remaining = lock.End - nowPeriod
	}
	return LockInfo{
		Amount:      lock.Amount,
		Coefficient: lock.Coefficient,
		Start:       lock.Start,
		End:         lock.End,
		Slope:       slope,
		Fixed:       lock.Amount,
		VotingPower: gaugemath.VotingPowerAt(lock.Amount, slope, remaining),
	}
}

func (e *Escrow) pushUpdates(now uint64, user stakehub.Address, info LockInfo) error {
	for _, o := range e.observers {
		if err := o.UpdateVote(now, user, info); err != nil {
			return errors.Wrap(err, "push lock update")
		}
	}
	return nil
}

func (e *Escrow) assertNotBlacklisted(user stakehub.Address) error {
	listed, ok, err := e.blacklist.Get(user.Bytes())
	if err != nil {
		return err
	}
	if ok && listed {
		return errs.Newf(errs.KindBlacklisted, "%s", user)
	}
	return nil
}

func periodsFromDuration(seconds uint64) (uint64, error) {
	periods := seconds / stakehub.WeekSeconds
	if periods < gaugemath.MinLockPeriods || periods > gaugemath.MaxLockPeriods {
		return 0, errs.Newf(errs.KindCantBeZero, "lock duration must be within [%d, %d] weeks, got %d",
			gaugemath.MinLockPeriods, gaugemath.MaxLockPeriods, periods)
	}
	return periods, nil
}

// CreateLock locks amount of the deposit token for the given duration.
func (e *Escrow) CreateLock(now uint64, user stakehub.Address, amount bn.Int, durationSeconds uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("create lock", "user", user, "amount", amount, "duration", durationSeconds)

	if amount.IsZero() {
		return errs.New(errs.KindInvalidZeroAmount)
	}
	if err := e.assertNotBlacklisted(user); err != nil {
		return err
	}
	if _, ok, err := e.locks.Get(user.Bytes()); err != nil {
		return err
	} else if ok {
		return errs.Newf(errs.KindLockAlreadyExists, "%s", user)
	}
	periods, err := periodsFromDuration(durationSeconds)
	if err != nil {
		return err
	}

	if err := e.depositToken.Transfer(user, e.addr, amount); err != nil {
		return err
	}

	start := stakehub.Period(now)
	lock := Lock{
		Amount:      amount,
		Start:       start,
		End:         start + periods,
		Coefficient: gaugemath.CalcCoefficient(periods),
	}
	if err := e.locks.Set(user.Bytes(), lock); err != nil {
		return err
	}

	info := deriveInfo(lock, start)
	if err := e.pushUpdates(now, user, info); err != nil {
		return err
	}

	logger.Info("lock created", "user", user, "amount", amount, "end", lock.End, "vp", info.VotingPower)
	e.recorder.Record(now, "escrow", "create_lock", map[string]string{
		"user":    user.String(),
		"amount":  amount.String(),
		"end":     stakehub.FormatUint(lock.End),
		"vAMP":    info.VotingPower.String(),
	})
	return nil
}

// ExtendLockAmount adds delta to the caller's lock without changing its
// timing. When the lock has expired, extendToMin restarts it at the
// minimum duration instead of failing.
func (e *Escrow) ExtendLockAmount(now uint64, user stakehub.Address, delta bn.Int, extendToMin bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depositTo(now, user, user, delta, extendToMin)
}

// DepositFor adds amount to the target user's lock without changing its timing.
func (e *Escrow) DepositFor(now uint64, sender, target stakehub.Address, amount bn.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depositTo(now, sender, target, amount, false)
}

func (e *Escrow) depositTo(now uint64, sender, target stakehub.Address, amount bn.Int, extendToMin bool) error {
	logger.Debug("extend lock amount", "sender", sender, "target", target, "amount", amount)

	if amount.IsZero() {
		return errs.New(errs.KindInvalidZeroAmount)
	}
	if err := e.assertNotBlacklisted(target); err != nil {
		return err
	}
	lock, ok, err := e.locks.Get(target.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.KindLockNotFound, "%s", target)
	}

	nowPeriod := stakehub.Period(now)
	if nowPeriod >= lock.End {
		if !extendToMin {
			return errs.Newf(errs.KindLockExpired, "withdraw the expired lock or extend it to the minimum duration")
		}
		lock.Start = nowPeriod
		lock.End = nowPeriod + gaugemath.MinLockPeriods
		lock.Coefficient = gaugemath.CalcCoefficient(gaugemath.MinLockPeriods)
	}

	if err := e.depositToken.Transfer(sender, e.addr, amount); err != nil {
		return err
	}
	lock.Amount = lock.Amount.Add(amount)
	if err := e.locks.Set(target.Bytes(), lock); err != nil {
		return err
	}

	info := deriveInfo(lock, nowPeriod)
	if err := e.pushUpdates(now, target, info); err != nil {
		return err
	}

	logger.Info("lock amount extended", "user", target, "amount", lock.Amount, "vp", info.VotingPower)
	e.recorder.Record(now, "escrow", "extend_lock_amount", map[string]string{
		"user":   target.String(),
		"amount": lock.Amount.String(),
		"vAMP":   info.VotingPower.String(),
	})
	return nil
}

// ExtendLockTime pushes the caller's lock end further out. The new total
// duration from now must exceed the current remaining one and stay within
// the maximum; the boost coefficient is recomputed for the new duration.
func (e *Escrow) ExtendLockTime(now uint64, user stakehub.Address, durationSeconds uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("extend lock time", "user", user, "duration", durationSeconds)

	if err := e.assertNotBlacklisted(user); err != nil {
		return err
	}
	lock, ok, err := e.locks.Get(user.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.KindLockNotFound, "%s", user)
	}

	delta := durationSeconds / stakehub.WeekSeconds
	if delta == 0 {
		return errs.Newf(errs.KindCantBeZero, "extension shorter than one period")
	}

	nowPeriod := stakehub.Period(now)
	if nowPeriod >= lock.End {
		return errs.Newf(errs.KindLockExpired, "withdraw the expired lock instead")
	}
	newEnd := lock.End + delta
	duration := newEnd - nowPeriod
	if duration > gaugemath.MaxLockPeriods {
		return errs.Newf(errs.KindCantBeZero, "total duration %d exceeds %d periods", duration, gaugemath.MaxLockPeriods)
	}

	lock.Start = nowPeriod
	lock.End = newEnd
	lock.Coefficient = gaugemath.CalcCoefficient(duration)
	if err := e.locks.Set(user.Bytes(), lock); err != nil {
		return err
	}

	info := deriveInfo(lock, nowPeriod)
	if err := e.pushUpdates(now, user, info); err != nil {
		return err
	}

	logger.Info("lock time extended", "user", user, "end", lock.End, "vp", info.VotingPower)
	e.recorder.Record(now, "escrow", "extend_lock_time", map[string]string{
		"user": user.String(),
		"end":  stakehub.FormatUint(lock.End),
		"vAMP": info.VotingPower.String(),
	})
	return nil
}

// Withdraw returns the locked amount once the lock has expired.
func (e *Escrow) Withdraw(now uint64, user stakehub.Address) (bn.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("withdraw", "user", user)

	lock, ok, err := e.locks.Get(user.Bytes())
	if err != nil {
		return bn.Int{}, err
	}
	if !ok {
		return bn.Int{}, errs.Newf(errs.KindLockNotFound, "%s", user)
	}
	if stakehub.Period(now) < lock.End {
		return bn.Int{}, errs.Newf(errs.KindLockNotExpired, "unlocks at period %d", lock.End)
	}

	if err := e.depositToken.Transfer(e.addr, user, lock.Amount); err != nil {
		return bn.Int{}, err
	}
	if err := e.locks.Delete(user.Bytes()); err != nil {
		return bn.Int{}, err
	}

	// the lock is gone; observers drop the user's votes
	if err := e.pushUpdates(now, user, LockInfo{}); err != nil {
		return bn.Int{}, err
	}

	logger.Info("lock withdrawn", "user", user, "amount", lock.Amount)
	e.recorder.Record(now, "escrow", "withdraw", map[string]string{
		"user":   user.String(),
		"amount": lock.Amount.String(),
	})
	return lock.Amount, nil
}

// UpdateBlacklist adds and removes blacklist entries. Appended users lose
// their voting power immediately. Callable by the owner or the guardian.
func (e *Escrow) UpdateBlacklist(now uint64, sender stakehub.Address, appendAddrs, removeAddrs []stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("update blacklist", "sender", sender, "append", len(appendAddrs), "remove", len(removeAddrs))

	if err := e.assertOwnerOrGuardian(sender); err != nil {
		return err
	}
	for _, addr := range appendAddrs {
		if err := e.blacklist.Set(addr.Bytes(), true); err != nil {
			return err
		}
		if _, ok, err := e.locks.Get(addr.Bytes()); err != nil {
			return err
		} else if ok {
			if err := e.pushUpdates(now, addr, LockInfo{}); err != nil {
				return err
			}
		}
	}
	for _, addr := range removeAddrs {
		if err := e.blacklist.Delete(addr.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// SetGuardian configures the address allowed to manage the blacklist.
func (e *Escrow) SetGuardian(sender, guardian stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ownable.AssertOwner(sender); err != nil {
		return err
	}
	return e.guardian.Set(guardian)
}

func (e *Escrow) assertOwnerOrGuardian(sender stakehub.Address) error {
	guardian, ok, err := e.guardian.Get()
	if err != nil {
		return err
	}
	if ok && sender == guardian {
		return nil
	}
	return e.ownable.AssertOwner(sender)
}

// ProposeNewOwner stages an ownership handover.
func (e *Escrow) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (e *Escrow) DropOwnershipProposal(sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (e *Escrow) ClaimOwnership(now uint64, sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Claim(now, sender)
}
