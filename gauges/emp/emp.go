// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package emp implements the operator-assigned merit gauges. The owner
// grants validators merit points, either permanent or decaying over a
// chosen number of periods, and tuning materialises the current totals
// the same way the amp gauges do.
package emp

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
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

var logger = log.WithContext("pkg", "emp")

const defaultValidatorsLimit uint64 = 20

// Point is one merit grant. A zero DecayingPeriods adds permanently to
// the validator's floor; otherwise the grant decays to zero over that
// many periods, like a lock of the same duration.
type Point struct {
	UMeritPoints    bn.Int `json:"umeritPoints"`
	DecayingPeriods uint64 `json:"decayingPeriods,omitempty"`
}

// Grant assigns merit points to one validator.
type Grant struct {
	Validator string  `json:"validator"`
	Points    []Point `json:"points"`
}

// Emp is the emp gauge engine.
type Emp struct {
	mu sync.Mutex

	vals     gauges.ValidatorSet
	recorder eventdb.Recorder

	series  *series.Series
	tune    *store.Item[gauges.TuneInfo]
	limit   *store.ConfigVariable
	ownable *ownable.Ownable
}

// New creates the emp gauges over the given store partition.
func New(s kv.Store, vals gauges.ValidatorSet, owner stakehub.Address, recorder eventdb.Recorder) (*Emp, error) {
	own, err := ownable.New(s, owner)
	if err != nil {
		return nil, err
	}
	ser, err := series.New(s)
	if err != nil {
		return nil, err
	}
	return &Emp{
		vals:     vals,
		recorder: recorder,
		series:   ser,
		tune:     store.NewItem[gauges.TuneInfo](s, "tune-info"),
		limit:    store.NewConfigVariable(s, "validators-limit", defaultValidatorsLimit),
		ownable:  own,
	}, nil
}

// AddEmps applies merit grants. Owner only; validators must be
// whitelisted and may appear at most once per call.
func (e *Emp) AddEmps(now uint64, sender stakehub.Address, grants []Grant) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("add emps", "sender", sender, "grants", len(grants))

	if err := e.ownable.AssertOwner(sender); err != nil {
		return err
	}
	blockPeriod := stakehub.Period(now)

	allowed, err := e.vals.Validators()
	if err != nil {
		return err
	}
	whitelist := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		whitelist[v] = true
	}

	seen := make(map[string]bool, len(grants))
	for _, grant := range grants {
		if seen[grant.Validator] {
			return errs.Newf(errs.KindDuplicatedValidators, "%s", grant.Validator)
		}
		seen[grant.Validator] = true
		if !whitelist[grant.Validator] {
			return errs.Newf(errs.KindInvalidValidatorAddress, "%s", grant.Validator)
		}
	}

	for _, grant := range grants {
		for _, point := range grant.Points {
			if point.UMeritPoints.IsZero() {
				return errs.Newf(errs.KindInvalidZeroAmount, "merit points for %s", grant.Validator)
			}
			if point.DecayingPeriods > 0 {
				vp, slope := gaugemath.AdjustVpAndSlope(point.UMeritPoints, point.DecayingPeriods, bn.Int{})
				end := blockPeriod + point.DecayingPeriods
				if err := e.series.Apply(blockPeriod, grant.Validator, vp, slope, end); err != nil {
					return err
				}
			} else if err := e.series.AddFixed(blockPeriod, grant.Validator, point.UMeritPoints); err != nil {
				return err
			}
		}
	}

	logger.Info("emps added", "grants", len(grants))
	e.recorder.Record(now, "emp", "add_emps", map[string]string{
		"grants": stakehub.FormatUint(uint64(len(grants))),
	})
	return nil
}

// TuneEmp materialises the current merit totals into the stored tune
// result, analogous to the amp tune.
func (e *Emp) TuneEmp(now uint64, sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Debug("tune emp", "sender", sender)

	if err := e.ownable.AssertOwner(sender); err != nil {
		return err
	}
	blockPeriod := stakehub.Period(now)

	points, err := gauges.TunePoints(e.series, e.vals, blockPeriod)
	if err != nil {
		return err
	}
	limit, err := e.limit.Get()
	if err != nil {
		return err
	}
	if uint64(len(points)) > limit {
		points = points[:limit]
	}
	if len(points) == 0 {
		return errs.New(errs.KindTuneNoValidators)
	}

	if err := e.tune.Set(gauges.TuneInfo{TuneTS: now, TunePeriod: blockPeriod, Points: points}); err != nil {
		return err
	}
	logger.Info("emp tuned", "validators", len(points), "period", blockPeriod)
	e.recorder.Record(now, "emp", "tune_emp", map[string]string{
		"validators": stakehub.FormatUint(uint64(len(points))),
	})
	return nil
}

// UpdateConfig changes the tune result size limit.
func (e *Emp) UpdateConfig(now uint64, sender stakehub.Address, validatorsLimit *uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ownable.AssertOwner(sender); err != nil {
		return err
	}
	if validatorsLimit != nil {
		if *validatorsLimit == 0 {
			return errs.Newf(errs.KindCantBeZero, "validators limit")
		}
		if err := e.limit.Set(*validatorsLimit); err != nil {
			return err
		}
	}
	e.recorder.Record(now, "emp", "update_config", nil)
	return nil
}

// TuneInfo returns the latest tune result. The zero value means no tune
// has happened yet.
func (e *Emp) TuneInfo() (gauges.TuneInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, _, err := e.tune.Get()
	return info, err
}

// ValidatorInfo returns the validator's merit power at the current
// period, fixed floor included.
func (e *Emp) ValidatorInfo(now uint64, validator string) (series.Info, error) {
	return e.ValidatorInfoAt(validator, stakehub.Period(now))
}

// ValidatorInfoAt returns the validator's merit power at the given
// period, fixed floor included.
func (e *Emp) ValidatorInfoAt(validator string, period uint64) (series.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.series.At(validator, period)
	if err != nil {
		return series.Info{}, err
	}
	fixed, err := e.series.Fixed(validator, period)
	if err != nil {
		return series.Info{}, err
	}
	info.Amount = info.Amount.Add(fixed)
	return info, nil
}

// ProposeNewOwner stages an ownership handover.
func (e *Emp) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (e *Emp) DropOwnershipProposal(sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (e *Emp) ClaimOwnership(now uint64, sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Claim(now, sender)
}
