// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package planner computes the wanted per-validator delegation shares
// from the configured strategy and the gauge tune results. It is a pure
// read layer: the hub persists the outcome when told to.
package planner

import (
	"sort"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/gauges"
	"github.com/stakehub-labs/stakehub/gauges/series"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// GaugesParams parameterises the gauge-driven strategy.
type GaugesParams struct {
	AmpFactorBPS     uint16 `json:"ampFactorBPS"`
	MinDelegationBPS uint16 `json:"minDelegationBPS"`
	MaxDelegationBPS uint16 `json:"maxDelegationBPS"`
	ValidatorCount   uint8  `json:"validatorCount"`
	UseEmp           bool   `json:"useEmp"`
}

// Strategy selects how delegations are distributed. Mode is either
// Uniform or Gauges; Gauges carries its parameters inline so the whole
// value round-trips through storage.
type Strategy struct {
	Mode   uint8        `json:"mode"`
	Gauges GaugesParams `json:"gauges"`
}

// Strategy modes.
const (
	ModeUniform uint8 = iota
	ModeGauges
)

// UniformStrategy is the default when nothing is configured.
func UniformStrategy() Strategy {
	return Strategy{Mode: ModeUniform}
}

// GaugesStrategy builds a gauge-driven strategy.
func GaugesStrategy(params GaugesParams) Strategy {
	return Strategy{Mode: ModeGauges, Gauges: params}
}

// Validate checks the strategy parameters.
func (s Strategy) Validate() error {
	if s.Mode == ModeUniform {
		return nil
	}
	p := s.Gauges
	if p.AmpFactorBPS > stakehub.BpsDenominator {
		return errs.Newf(errs.KindCantBeZero, "amp factor %d exceeds %d basis points", p.AmpFactorBPS, stakehub.BpsDenominator)
	}
	if p.MaxDelegationBPS > stakehub.BpsDenominator || p.MinDelegationBPS >= p.MaxDelegationBPS {
		return errs.Newf(errs.KindCantBeZero, "delegation bounds [%d, %d] invalid", p.MinDelegationBPS, p.MaxDelegationBPS)
	}
	if p.ValidatorCount == 0 {
		return errs.Newf(errs.KindCantBeZero, "validator count")
	}
	return nil
}

// Share is one validator's wanted fraction of the total stake.
type Share struct {
	Validator string  `json:"validator"`
	Share     dec.Dec `json:"share"`
}

// WantedDelegationsShare is the planner output; shares sum to one.
type WantedDelegationsShare struct {
	TuneTime   uint64  `json:"tuneTime"`
	TunePeriod uint64  `json:"tunePeriod"`
	Shares     []Share `json:"shares"`
}

// Gauge is the read surface the planner needs from a gauge engine.
type Gauge interface {
	TuneInfo() (gauges.TuneInfo, error)
	ValidatorInfoAt(validator string, period uint64) (series.Info, error)
}

// Planner resolves wanted delegation shares.
type Planner struct {
	amp Gauge
	emp Gauge
}

// New creates a planner. emp may be nil when no emp gauges exist.
func New(amp, emp Gauge) *Planner {
	return &Planner{amp: amp, emp: emp}
}

// WantedDelegations computes the current wanted shares over the given
// whitelist. The second result reports whether the outcome should be
// persisted: uniform shares are always derivable, gauge shares are a
// snapshot of the tune results.
func (p *Planner) WantedDelegations(now uint64, validators []string, strategy Strategy) (WantedDelegationsShare, bool, error) {
	if strategy.Mode == ModeUniform {
		return uniformShares(now, validators), false, nil
	}

	ampPoints, err := tunedPoints(p.amp)
	if err != nil {
		return WantedDelegationsShare{}, false, err
	}
	var empPoints *pointSet
	if strategy.Gauges.UseEmp && p.emp != nil {
		empPoints, err = tunedPoints(p.emp)
		if err != nil {
			return WantedDelegationsShare{}, false, err
		}
	}
	shares, err := gaugeShares(validators, strategy.Gauges, ampPoints, empPoints)
	if err != nil {
		return WantedDelegationsShare{}, false, err
	}
	return WantedDelegationsShare{
		TuneTime:   now,
		TunePeriod: stakehub.Period(now),
		Shares:     shares,
	}, true, nil
}

// SimulateWantedDelegations evaluates the gauge shares at an arbitrary
// period, bypassing the stored tune results.
func (p *Planner) SimulateWantedDelegations(now uint64, validators []string, strategy Strategy, period uint64) (WantedDelegationsShare, error) {
	if strategy.Mode == ModeUniform {
		out := uniformShares(now, validators)
		out.TunePeriod = period
		return out, nil
	}

	ampPoints, err := pointsAtPeriod(p.amp, validators, period, errs.KindNoVamp)
	if err != nil {
		return WantedDelegationsShare{}, err
	}
	var empPoints *pointSet
	if strategy.Gauges.UseEmp && p.emp != nil {
		empPoints, err = pointsAtPeriod(p.emp, validators, period, errs.KindEmpNotTuned)
		if err != nil {
			return WantedDelegationsShare{}, err
		}
	}
	shares, err := gaugeShares(validators, strategy.Gauges, ampPoints, empPoints)
	if err != nil {
		return WantedDelegationsShare{}, err
	}
	return WantedDelegationsShare{
		TuneTime:   now,
		TunePeriod: period,
		Shares:     shares,
	}, nil
}

func uniformShares(now uint64, validators []string) WantedDelegationsShare {
	share := dec.FromRatio(1, uint64(len(validators)))
	shares := make([]Share, 0, len(validators))
	for _, v := range validators {
		shares = append(shares, Share{Validator: v, Share: share})
	}
	return WantedDelegationsShare{
		TuneTime:   now,
		TunePeriod: stakehub.Period(now),
		Shares:     shares,
	}
}

type pointSet struct {
	sum    bn.Int
	points map[string]bn.Int
}

func tunedPoints(g Gauge) (*pointSet, error) {
	info, err := g.TuneInfo()
	if err != nil {
		return nil, err
	}
	set := &pointSet{points: make(map[string]bn.Int, len(info.Points))}
	for _, point := range info.Points {
		set.points[point.Validator] = point.Amount
		set.sum = set.sum.Add(point.Amount)
	}
	return set, nil
}

func pointsAtPeriod(g Gauge, validators []string, period uint64, emptyKind errs.Kind) (*pointSet, error) {
	set := &pointSet{points: make(map[string]bn.Int, len(validators))}
	for _, v := range validators {
		info, err := g.ValidatorInfoAt(v, period)
		if err != nil {
			return nil, err
		}
		set.points[v] = info.Amount
		set.sum = set.sum.Add(info.Amount)
	}
	if set.sum.IsZero() {
		return nil, errs.New(emptyKind)
	}
	return set, nil
}

// gaugeShares blends the amp and emp point sets into normalised shares:
// raw = amp_factor * amp_share + (1 - amp_factor) * emp_share, capped at
// max_delegation, dropped at or below min_delegation, top validator_count
// by raw share, then renormalised over the capped scores.
func gaugeShares(validators []string, params GaugesParams, amp, emp *pointSet) ([]Share, error) {
	if amp.sum.IsZero() {
		return nil, errs.New(errs.KindNoVamp)
	}
	if emp != nil && emp.sum.IsZero() {
		return nil, errs.New(errs.KindEmpNotTuned)
	}

	minDelegation := dec.FromBps(uint64(params.MinDelegationBPS))
	maxDelegation := dec.FromBps(uint64(params.MaxDelegationBPS))
	ampFactor := dec.FromBps(uint64(params.AmpFactorBPS))
	empFactor := dec.One().SubSaturate(ampFactor)

	type scored struct {
		validator string
		score     dec.Dec
		raw       dec.Dec
	}
	var survivors []scored
	for _, v := range validators {
		raw := dec.FromIntRatio(amp.points[v], amp.sum)
		if emp != nil {
			ampShare := ampFactor.Mul(raw)
			empShare := empFactor.Mul(dec.FromIntRatio(emp.points[v], emp.sum))
			raw = ampShare.Add(empShare)
		}
		score := raw
		if score.Cmp(maxDelegation) > 0 {
			score = maxDelegation
		}
		if score.Cmp(minDelegation) <= 0 {
			continue
		}
		survivors = append(survivors, scored{validator: v, score: score, raw: raw})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].raw.Cmp(survivors[j].raw) > 0
	})
	if len(survivors) > int(params.ValidatorCount) {
		survivors = survivors[:params.ValidatorCount]
	}
	if len(survivors) == 0 {
		return nil, errs.New(errs.KindTuneNoValidators)
	}

	total := dec.Zero()
	for _, s := range survivors {
		total = total.Add(s.score)
	}
	shares := make([]Share, 0, len(survivors))
	for _, s := range survivors {
		shares = append(shares, Share{Validator: s.validator, Share: s.score.Div(total)})
	}
	return shares, nil
}
