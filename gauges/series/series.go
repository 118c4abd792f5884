// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package series keeps per-validator gauge power as sparse period
// snapshots. Power decomposes into a decaying component, tracked with
// scheduled slope drops at lock ends, and a fixed floor tracked as a
// step function of running totals. Reading power at a period walks the
// scheduled changes since the latest snapshot instead of the voters.
package series

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/gauges/gaugemath"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/store"
)

const cacheSize = 2048

// Info is the decaying aggregate of one validator at one period.
type Info struct {
	Amount bn.Int
	Slope  bn.Int
}

// Series is the period-indexed power bookkeeping for a set of
// validators. It is not safe for concurrent use; callers serialise.
type Series struct {
	snapshots    *store.Mapping[Info]   // validator -> period -> info
	slopeChanges *store.Mapping[bn.Int] // validator -> period -> slope delta
	fixed        *store.Mapping[bn.Int] // validator -> period -> running floor
	active       *store.Mapping[bool]   // validators with any recorded power
	cache        *lru.Cache
}

// New creates the series over the given store partition.
func New(s kv.Store) (*Series, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Series{
		snapshots:    store.NewMapping[Info](s, "validator-snapshots"),
		slopeChanges: store.NewMapping[bn.Int](s, "slope-changes"),
		fixed:        store.NewMapping[bn.Int](s, "fixed-power"),
		active:       store.NewMapping[bool](s, "active-validators"),
		cache:        cache,
	}, nil
}

// Apply folds a decaying contribution into the validator aggregate at
// period and schedules its slope drop for the period after lockEnd. A
// lock already ended before period contributes nothing decaying; its
// slope drop would land inside the reconstruction walk.
func (s *Series) Apply(period uint64, validator string, vp, slope bn.Int, lockEnd uint64) error {
	if lockEnd < period {
		return nil
	}
	endKey := store.U64Key(lockEnd + 1)
	changes := s.slopeChanges.Sub(validator)
	scheduled, _, err := changes.Get(endKey)
	if err != nil {
		return err
	}
	if err := changes.Set(endKey, scheduled.Add(slope)); err != nil {
		return err
	}
	return s.applyChange(period, validator, func(info Info) Info {
		info.Slope = info.Slope.Add(slope)
		info.Amount = info.Amount.Add(vp)
		return info
	})
}

// Cancel is the inverse of Apply, evaluated with the exact values that
// were applied so prior rounding is undone without residue.
func (s *Series) Cancel(period uint64, validator string, vp, slope bn.Int, lockEnd uint64) error {
	lastPeriod, found, err := s.lastSnapshotPeriod(validator, period)
	if err != nil {
		return err
	}
	if !found {
		lastPeriod = period
	}
	if lastPeriod < lockEnd+1 {
		endKey := store.U64Key(lockEnd + 1)
		changes := s.slopeChanges.Sub(validator)
		scheduled, _, err := changes.Get(endKey)
		if err != nil {
			return err
		}
		remaining := scheduled.SubSaturate(slope)
		if remaining.IsZero() {
			if err := changes.Delete(endKey); err != nil {
				return err
			}
		} else if err := changes.Set(endKey, remaining); err != nil {
			return err
		}
	}
	return s.applyChange(period, validator, func(info Info) Info {
		info.Slope = info.Slope.SubSaturate(slope)
		info.Amount = info.Amount.SubSaturate(vp)
		return info
	})
}

// applyChange brings the validator aggregate forward to period, applies
// the mutation and persists the snapshot.
func (s *Series) applyChange(period uint64, validator string, mutate func(Info) Info) error {
	if err := s.markActive(validator); err != nil {
		return err
	}
	info, err := s.reconstruct(validator, period, true)
	if err != nil {
		return err
	}
	s.cache.Purge()
	return s.snapshots.Sub(validator).Set(store.U64Key(period), mutate(info))
}

// Settle brings the validator aggregate forward to period, persisting
// the snapshot and every intermediate result.
func (s *Series) Settle(period uint64, validator string) (Info, error) {
	info, err := s.reconstruct(validator, period, true)
	if err != nil {
		return Info{}, err
	}
	s.cache.Purge()
	return info, s.snapshots.Sub(validator).Set(store.U64Key(period), info)
}

// At returns the decaying aggregate at period without writing anything.
func (s *Series) At(validator string, period uint64) (Info, error) {
	return s.reconstruct(validator, period, false)
}

// Fixed returns the fixed-floor running total at or before period.
func (s *Series) Fixed(validator string, period uint64) (bn.Int, error) {
	var last bn.Int
	err := s.fixed.Sub(validator).Iterate(kv.Range{Limit: store.U64Key(period + 1)}, true,
		func(_ []byte, value bn.Int) (bool, error) {
			last = value
			return false, nil
		})
	return last, err
}

// AddFixed raises the validator's floor from the period after period on.
func (s *Series) AddFixed(period uint64, validator string, amount bn.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := s.markActive(validator); err != nil {
		return err
	}
	return s.stepFixed(period+1, validator, amount, false)
}

// RemoveFixed lowers the validator's floor from the period after period on.
func (s *Series) RemoveFixed(period uint64, validator string, amount bn.Int) error {
	if amount.IsZero() {
		return nil
	}
	return s.stepFixed(period+1, validator, amount, true)
}

func (s *Series) stepFixed(period uint64, validator string, amount bn.Int, sub bool) error {
	last, err := s.Fixed(validator, period)
	if err != nil {
		return err
	}
	next := last.Add(amount)
	if sub {
		next = last.SubSaturate(amount)
	}
	s.cache.Purge()
	return s.fixed.Sub(validator).Set(store.U64Key(period), next)
}

// Actives lists the validators with any recorded power, in key order.
func (s *Series) Actives() ([]string, error) {
	var out []string
	err := s.active.Iterate(kv.Range{}, false, func(key []byte, _ bool) (bool, error) {
		out = append(out, string(key))
		return true, nil
	})
	return out, err
}

// Deactivate drops a validator from the active set once its power is gone.
func (s *Series) Deactivate(validator string) error {
	return s.active.Delete([]byte(validator))
}

func (s *Series) markActive(validator string) error {
	ok, err := s.active.Has([]byte(validator))
	if err != nil || ok {
		return err
	}
	return s.active.Set([]byte(validator), true)
}

// lastSnapshotPeriod finds the latest recorded period strictly before
// period for the validator.
func (s *Series) lastSnapshotPeriod(validator string, period uint64) (uint64, bool, error) {
	var (
		last  uint64
		found bool
	)
	err := s.snapshots.Sub(validator).Iterate(kv.Range{Limit: store.U64Key(period)}, true,
		func(key []byte, _ Info) (bool, error) {
			last = store.ParseU64Key(key)
			found = true
			return false, nil
		})
	return last, found, err
}

type cacheKey struct {
	validator string
	period    uint64
}

// reconstruct computes the decaying aggregate at period, starting from
// the latest snapshot at or before it and consuming the scheduled slope
// changes in between. With persist set, intermediate results are written
// back so later reads start closer.
func (s *Series) reconstruct(validator string, period uint64, persist bool) (Info, error) {
	snapshots := s.snapshots.Sub(validator)

	if info, ok, err := snapshots.Get(store.U64Key(period)); err != nil || ok {
		return info, err
	}
	if !persist {
		if cached, ok := s.cache.Get(cacheKey{validator, period}); ok {
			return cached.(Info), nil
		}
	}

	prev, found, err := s.lastSnapshotPeriod(validator, period)
	if err != nil {
		return Info{}, err
	}
	if !found {
		return Info{}, nil
	}
	info, _, err := snapshots.Get(store.U64Key(prev))
	if err != nil {
		return Info{}, err
	}

	changes := s.slopeChanges.Sub(validator)
	err = changes.Iterate(kv.Range{Start: store.U64Key(prev + 1), Limit: store.U64Key(period + 1)}, false,
		func(key []byte, change bn.Int) (bool, error) {
			at := store.ParseU64Key(key)
			info.Amount = gaugemath.Decay(info.Amount, info.Slope, at-prev)
			info.Slope = info.Slope.SubSaturate(change)
			prev = at
			if persist {
				if err := snapshots.Set(key, info); err != nil {
					return false, err
				}
			}
			return true, nil
		})
	if err != nil {
		return Info{}, err
	}

	info.Amount = gaugemath.Decay(info.Amount, info.Slope, period-prev)
	if !persist {
		s.cache.Add(cacheKey{validator, period}, info)
	}
	return info, nil
}
