// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package escrow

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// LockInfo returns the derived lock state of a user at the given time.
func (e *Escrow) LockInfo(now uint64, user stakehub.Address) (LockInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok, err := e.locks.Get(user.Bytes())
	if err != nil {
		return LockInfo{}, err
	}
	if !ok {
		return LockInfo{}, errs.Newf(errs.KindLockNotFound, "%s", user)
	}
	return deriveInfo(lock, stakehub.Period(now)), nil
}

// UserVotingPower returns the user's current voting power; zero if the
// user has no lock.
func (e *Escrow) UserVotingPower(now uint64, user stakehub.Address) (bn.Int, error) {
	return e.UserVotingPowerAt(stakehub.Period(now), user)
}

// UserVotingPowerAt evaluates the user's voting power at an arbitrary period.
func (e *Escrow) UserVotingPowerAt(period uint64, user stakehub.Address) (bn.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok, err := e.locks.Get(user.Bytes())
	if err != nil {
		return bn.Int{}, err
	}
	if !ok {
		return bn.Int{}, nil
	}
	return deriveInfo(lock, period).VotingPower, nil
}

// TotalVotingPower sums the voting power of all locks at now.
func (e *Escrow) TotalVotingPower(now uint64) (bn.Int, error) {
	return e.TotalVotingPowerAt(stakehub.Period(now))
}

// TotalVotingPowerAt sums the voting power of all locks at a period.
func (e *Escrow) TotalVotingPowerAt(period uint64) (bn.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total bn.Int
	err := e.locks.Iterate(kv.Range{}, false, func(_ []byte, lock Lock) (bool, error) {
		total = total.Add(deriveInfo(lock, period).VotingPower)
		return true, nil
	})
	return total, err
}

// BlacklistedVoters pages through the blacklist in address order.
func (e *Escrow) BlacklistedVoters(startAfter *stakehub.Address, limit *uint32) ([]stakehub.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	max := stakehub.ClampLimit(limit)
	var r kv.Range
	if startAfter != nil {
		// the range start is inclusive, step past the cursor
		r.Start = append(startAfter.Bytes(), 0)
	}

	var out []stakehub.Address
	err := e.blacklist.Iterate(r, false, func(key []byte, listed bool) (bool, error) {
		if !listed {
			return true, nil
		}
		out = append(out, stakehub.BytesToAddress(key))
		return len(out) < max, nil
	})
	return out, err
}

// IsBlacklisted reports whether the address is blacklisted.
func (e *Escrow) IsBlacklisted(addr stakehub.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	listed, ok, err := e.blacklist.Get(addr.Bytes())
	return ok && listed, err
}
