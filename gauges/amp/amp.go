// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package amp implements the voter-weighted validator gauges. Escrow
// holders split their voting power across validators in basis points;
// a vote takes effect at the next period and decays with the lock until
// only the fixed floor remains.
package amp

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/gauges"
	"github.com/stakehub-labs/stakehub/gauges/gaugemath"
	"github.com/stakehub-labs/stakehub/gauges/series"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/log"
	"github.com/stakehub-labs/stakehub/ownable"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

var logger = log.WithContext("pkg", "amp")

const (
	// VoteCooldown is the minimum wall-clock gap between two votes of
	// the same user. Push updates from the escrow are exempt.
	VoteCooldown uint64 = 10 * 86400

	// MinValidatorsLimit / MaxValidatorsLimit bound the tune result size.
	MinValidatorsLimit uint64 = 2
	MaxValidatorsLimit uint64 = 100

	defaultValidatorsLimit uint64 = 20
)

// VoteWeight is one entry of a user's vote.
type VoteWeight struct {
	Validator string `json:"validator"`
	BPS       uint16 `json:"bps"`
}

// UserInfo is the recorded state of a user's last vote. The decaying
// power, slope, fixed floor and lock end are snapshotted at vote time so
// a later cancel undoes exactly what was applied.
type UserInfo struct {
	VoteTS      uint64       `json:"voteTS"`
	VotingPower bn.Int       `json:"votingPower"`
	Slope       bn.Int       `json:"slope"`
	Fixed       bn.Int       `json:"fixed"`
	LockEnd     uint64       `json:"lockEnd"`
	Votes       []VoteWeight `json:"votes"`
}

// PowerSource resolves a user's current lock, typically the escrow.
type PowerSource interface {
	LockInfo(now uint64, user stakehub.Address) (escrow.LockInfo, error)
	IsBlacklisted(addr stakehub.Address) (bool, error)
}

// Amp is the amp gauge engine.
type Amp struct {
	mu sync.Mutex

	power    PowerSource
	vals     gauges.ValidatorSet
	recorder eventdb.Recorder

	series  *series.Series
	users   *store.Mapping[UserInfo]
	tune    *store.Item[gauges.TuneInfo]
	limit   *store.ConfigVariable
	ownable *ownable.Ownable
}

// New creates the amp gauges over the given store partition.
func New(s kv.Store, power PowerSource, vals gauges.ValidatorSet, owner stakehub.Address, recorder eventdb.Recorder) (*Amp, error) {
	own, err := ownable.New(s, owner)
	if err != nil {
		return nil, err
	}
	ser, err := series.New(s)
	if err != nil {
		return nil, err
	}
	return &Amp{
		power:    power,
		vals:     vals,
		recorder: recorder,
		series:   ser,
		users:    store.NewMapping[UserInfo](s, "user-info"),
		tune:     store.NewItem[gauges.TuneInfo](s, "tune-info"),
		limit:    store.NewConfigVariable(s, "validators-limit", defaultValidatorsLimit),
		ownable:  own,
	}, nil
}

// Vote casts or replaces the caller's vote. The previous vote is fully
// cancelled first; the new one takes effect at the next period.
func (a *Amp) Vote(now uint64, user stakehub.Address, votes []VoteWeight) error {
	// resolve the lock before taking the engine lock; the escrow calls
	// back into UpdateVote under its own lock
	listed, err := a.power.IsBlacklisted(user)
	if err != nil {
		return err
	}
	if listed {
		return errs.Newf(errs.KindBlacklisted, "%s", user)
	}
	info, err := a.power.LockInfo(now, user)
	if err != nil {
		if errs.Is(err, errs.KindLockNotFound) {
			return errs.Newf(errs.KindZeroVotingPower, "%s", user)
		}
		return err
	}
	if info.VotingPower.IsZero() {
		return errs.Newf(errs.KindZeroVotingPower, "%s", user)
	}
	// an expired lock still carries its fixed floor; only a running
	// lock may cast votes
	if info.End <= stakehub.Period(now) {
		return errs.Newf(errs.KindLockExpired, "lock ended at period %d", info.End)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	logger.Debug("vote", "user", user, "votes", len(votes))

	blockPeriod := stakehub.Period(now)

	ui, hasVoted, err := a.users.Get(user.Bytes())
	if err != nil {
		return err
	}
	if hasVoted && now < ui.VoteTS+VoteCooldown {
		return errs.Newf(errs.KindVotesTooRecent, "next vote at %d", ui.VoteTS+VoteCooldown)
	}

	if err := a.validateVotes(votes); err != nil {
		return err
	}

	if hasVoted {
		if err := a.removeUserVotes(blockPeriod, ui); err != nil {
			return err
		}
	}
	if err := a.applyUserVotes(now, blockPeriod, user, votes, info); err != nil {
		return err
	}

	logger.Info("vote cast", "user", user, "vp", info.VotingPower)
	a.recorder.Record(now, "amp", "vote", map[string]string{
		"user": user.String(),
		"vAMP": info.VotingPower.String(),
	})
	return nil
}

func (a *Amp) validateVotes(votes []VoteWeight) error {
	allowed, err := a.vals.Validators()
	if err != nil {
		return err
	}
	whitelist := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		whitelist[v] = true
	}

	seen := make(map[string]bool, len(votes))
	var totalBPS uint32
	for _, vote := range votes {
		if seen[vote.Validator] {
			return errs.Newf(errs.KindDuplicatedValidators, "%s", vote.Validator)
		}
		seen[vote.Validator] = true
		if !whitelist[vote.Validator] {
			return errs.Newf(errs.KindInvalidValidatorAddress, "%s", vote.Validator)
		}
		totalBPS += uint32(vote.BPS)
	}
	if totalBPS > stakehub.BpsDenominator {
		return errs.Newf(errs.KindCantBeZero, "vote weights sum to %d basis points, max %d", totalBPS, stakehub.BpsDenominator)
	}
	return nil
}

// UpdateVote is the escrow push handler: it re-applies the user's
// recorded votes at the new lock state, or drops them when the power is
// gone. Satisfies escrow.VoteObserver.
func (a *Amp) UpdateVote(now uint64, user stakehub.Address, lock escrow.LockInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	blockPeriod := stakehub.Period(now)
	ui, ok, err := a.users.Get(user.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := a.removeUserVotes(blockPeriod, ui); err != nil {
		return err
	}
	if lock.VotingPower.IsZero() {
		if err := a.users.Delete(user.Bytes()); err != nil {
			return err
		}
		logger.Debug("vote removed", "user", user)
		a.recorder.Record(now, "amp", "update_vote_removed", map[string]string{"user": user.String()})
		return nil
	}

	if err := a.applyUserVotes(now, blockPeriod, user, ui.Votes, lock); err != nil {
		return err
	}
	logger.Debug("vote updated", "user", user, "vp", lock.VotingPower)
	a.recorder.Record(now, "amp", "update_vote_changed", map[string]string{
		"user": user.String(),
		"vAMP": lock.VotingPower.String(),
	})
	return nil
}

// removeUserVotes cancels the effect of the user's recorded vote. The
// decaying component is undone only while the lock is still running; the
// fixed floor is removed unconditionally.
func (a *Amp) removeUserVotes(blockPeriod uint64, ui UserInfo) error {
	if ui.LockEnd > blockPeriod {
		votePeriod := stakehub.Period(ui.VoteTS)
		oldVP := gaugemath.Decay(ui.VotingPower, ui.Slope, blockPeriod-votePeriod)
		for _, vote := range ui.Votes {
			err := a.series.Cancel(blockPeriod+1, vote.Validator,
				gaugemath.ApplyBps(oldVP, vote.BPS), gaugemath.ApplyBps(ui.Slope, vote.BPS), ui.LockEnd)
			if err != nil {
				return err
			}
		}
	}
	for _, vote := range ui.Votes {
		if err := a.series.RemoveFixed(blockPeriod, vote.Validator, gaugemath.ApplyBps(ui.Fixed, vote.BPS)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Amp) applyUserVotes(now, blockPeriod uint64, user stakehub.Address, votes []VoteWeight, lock escrow.LockInfo) error {
	decaying := lock.VotingPower.SubSaturate(lock.Fixed)
	for _, vote := range votes {
		err := a.series.Apply(blockPeriod+1, vote.Validator,
			gaugemath.ApplyBps(decaying, vote.BPS), gaugemath.ApplyBps(lock.Slope, vote.BPS), lock.End)
		if err != nil {
			return err
		}
		if err := a.series.AddFixed(blockPeriod, vote.Validator, gaugemath.ApplyBps(lock.Fixed, vote.BPS)); err != nil {
			return err
		}
	}
	return a.users.Set(user.Bytes(), UserInfo{
		VoteTS:      now,
		VotingPower: decaying,
		Slope:       lock.Slope,
		Fixed:       lock.Fixed,
		LockEnd:     lock.End,
		Votes:       votes,
	})
}

// TuneVamp materialises the current scores: it brings every active
// validator forward to the current period, drops the empty ones, keeps
// the whitelisted top validators_limit by power and stores the result.
func (a *Amp) TuneVamp(now uint64, sender stakehub.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	logger.Debug("tune vamp", "sender", sender)

	if err := a.ownable.AssertOwner(sender); err != nil {
		return err
	}
	blockPeriod := stakehub.Period(now)

	points, err := gauges.TunePoints(a.series, a.vals, blockPeriod)
	if err != nil {
		return err
	}
	limit, err := a.limit.Get()
	if err != nil {
		return err
	}
	if uint64(len(points)) > limit {
		points = points[:limit]
	}
	if len(points) == 0 {
		return errs.New(errs.KindTuneNoValidators)
	}

	if err := a.tune.Set(gauges.TuneInfo{TuneTS: now, TunePeriod: blockPeriod, Points: points}); err != nil {
		return err
	}
	logger.Info("vamp tuned", "validators", len(points), "period", blockPeriod)
	a.recorder.Record(now, "amp", "tune_vamp", map[string]string{
		"validators": stakehub.FormatUint(uint64(len(points))),
	})
	return nil
}

// UpdateConfig changes the tune result size limit.
func (a *Amp) UpdateConfig(now uint64, sender stakehub.Address, validatorsLimit *uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ownable.AssertOwner(sender); err != nil {
		return err
	}
	if validatorsLimit != nil {
		n := *validatorsLimit
		if n < MinValidatorsLimit || n > MaxValidatorsLimit {
			return errs.Newf(errs.KindCantBeZero, "validators limit %d outside [%d, %d]", n, MinValidatorsLimit, MaxValidatorsLimit)
		}
		if err := a.limit.Set(n); err != nil {
			return err
		}
	}
	a.recorder.Record(now, "amp", "update_config", nil)
	return nil
}

// ProposeNewOwner stages an ownership handover.
func (a *Amp) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (a *Amp) DropOwnershipProposal(sender stakehub.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (a *Amp) ClaimOwnership(now uint64, sender stakehub.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownable.Claim(now, sender)
}
