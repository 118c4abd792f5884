// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/gauges"
	"github.com/stakehub-labs/stakehub/gauges/series"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
)

func at(n uint64) uint64 {
	return stakehub.EpochStart + n*stakehub.WeekSeconds
}

type fakeGauge struct {
	tune gauges.TuneInfo
	at   map[string]uint64
}

func (g *fakeGauge) TuneInfo() (gauges.TuneInfo, error) {
	return g.tune, nil
}

func (g *fakeGauge) ValidatorInfoAt(validator string, _ uint64) (series.Info, error) {
	return series.Info{Amount: bn.FromUint64(g.at[validator])}, nil
}

func tuned(points ...gauges.ValidatorPoint) gauges.TuneInfo {
	return gauges.TuneInfo{TuneTS: at(1), TunePeriod: 1, Points: points}
}

func point(validator string, amount uint64) gauges.ValidatorPoint {
	return gauges.ValidatorPoint{Validator: validator, Amount: bn.FromUint64(amount)}
}

func shareMap(shares []planner.Share) map[string]dec.Dec {
	out := make(map[string]dec.Dec, len(shares))
	for _, s := range shares {
		out[s.Validator] = s.Share
	}
	return out
}

func TestStrategyValidate(t *testing.T) {
	assert.NoError(t, planner.UniformStrategy().Validate())

	valid := planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 100,
		MaxDelegationBPS: 5000,
		ValidatorCount:   10,
	}
	assert.NoError(t, planner.GaugesStrategy(valid).Validate())

	bad := valid
	bad.AmpFactorBPS = 10001
	assert.Error(t, planner.GaugesStrategy(bad).Validate())

	bad = valid
	bad.MinDelegationBPS = 5000
	assert.Error(t, planner.GaugesStrategy(bad).Validate())

	bad = valid
	bad.MaxDelegationBPS = 10001
	assert.Error(t, planner.GaugesStrategy(bad).Validate())

	bad = valid
	bad.ValidatorCount = 0
	assert.Error(t, planner.GaugesStrategy(bad).Validate())
}

func TestUniformShares(t *testing.T) {
	p := planner.New(&fakeGauge{}, nil)

	out, persist, err := p.WantedDelegations(at(3), []string{"val1", "val2", "val3", "val4"}, planner.UniformStrategy())
	require.NoError(t, err)
	assert.False(t, persist)
	assert.Equal(t, uint64(3), out.TunePeriod)
	require.Len(t, out.Shares, 4)

	quarter := dec.FromRatio(1, 4)
	for _, s := range out.Shares {
		assert.Zero(t, quarter.Cmp(s.Share), s.Validator)
	}
}

func TestGaugeSharesAmpOnly(t *testing.T) {
	amp := &fakeGauge{tune: tuned(point("val1", 600), point("val2", 300), point("val3", 100))}
	p := planner.New(amp, nil)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
	})
	out, persist, err := p.WantedDelegations(at(1), []string{"val1", "val2", "val3"}, strategy)
	require.NoError(t, err)
	assert.True(t, persist)
	assert.Equal(t, uint64(1), out.TunePeriod)

	shares := shareMap(out.Shares)
	assert.Zero(t, dec.FromRatio(6, 10).Cmp(shares["val1"]))
	assert.Zero(t, dec.FromRatio(3, 10).Cmp(shares["val2"]))
	assert.Zero(t, dec.FromRatio(1, 10).Cmp(shares["val3"]))

	// highest raw share first
	assert.Equal(t, "val1", out.Shares[0].Validator)
	assert.Equal(t, "val3", out.Shares[2].Validator)
}

func TestGaugeSharesCapAndFilter(t *testing.T) {
	amp := &fakeGauge{tune: tuned(point("val1", 600), point("val2", 300), point("val3", 100))}
	p := planner.New(amp, nil)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 1500,
		MaxDelegationBPS: 5000,
		ValidatorCount:   10,
	})
	out, _, err := p.WantedDelegations(at(1), []string{"val1", "val2", "val3"}, strategy)
	require.NoError(t, err)

	// val1 capped at 0.5, val3 dropped at 0.1, renormalised over 0.8
	shares := shareMap(out.Shares)
	require.Len(t, shares, 2)
	assert.Zero(t, dec.FromRatio(5, 8).Cmp(shares["val1"]))
	assert.Zero(t, dec.FromRatio(3, 8).Cmp(shares["val2"]))
}

func TestGaugeSharesValidatorCount(t *testing.T) {
	amp := &fakeGauge{tune: tuned(point("val1", 500), point("val2", 300), point("val3", 200))}
	p := planner.New(amp, nil)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   2,
	})
	out, _, err := p.WantedDelegations(at(1), []string{"val1", "val2", "val3"}, strategy)
	require.NoError(t, err)

	shares := shareMap(out.Shares)
	require.Len(t, shares, 2)
	assert.Zero(t, dec.FromRatio(5, 8).Cmp(shares["val1"]))
	assert.Zero(t, dec.FromRatio(3, 8).Cmp(shares["val2"]))
}

func TestGaugeSharesBlend(t *testing.T) {
	amp := &fakeGauge{tune: tuned(point("val1", 800), point("val2", 200))}
	emp := &fakeGauge{tune: tuned(point("val1", 200), point("val2", 800))}
	p := planner.New(amp, emp)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     5000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
		UseEmp:           true,
	})
	out, _, err := p.WantedDelegations(at(1), []string{"val1", "val2"}, strategy)
	require.NoError(t, err)

	// 0.5*0.8 + 0.5*0.2 on both sides
	half := dec.FromRatio(1, 2)
	shares := shareMap(out.Shares)
	assert.Zero(t, half.Cmp(shares["val1"]))
	assert.Zero(t, half.Cmp(shares["val2"]))
}

func TestGaugeSharesEmpIgnoredWhenDisabled(t *testing.T) {
	amp := &fakeGauge{tune: tuned(point("val1", 800), point("val2", 200))}
	emp := &fakeGauge{tune: tuned(point("val1", 200), point("val2", 800))}
	p := planner.New(amp, emp)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     5000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
	})
	out, _, err := p.WantedDelegations(at(1), []string{"val1", "val2"}, strategy)
	require.NoError(t, err)

	shares := shareMap(out.Shares)
	assert.Zero(t, dec.FromRatio(8, 10).Cmp(shares["val1"]))
	assert.Zero(t, dec.FromRatio(2, 10).Cmp(shares["val2"]))
}

func TestGaugeSharesErrors(t *testing.T) {
	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     5000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
		UseEmp:           true,
	})

	p := planner.New(&fakeGauge{}, &fakeGauge{})
	_, _, err := p.WantedDelegations(at(1), []string{"val1"}, strategy)
	assert.True(t, errs.Is(err, errs.KindNoVamp))

	p = planner.New(&fakeGauge{tune: tuned(point("val1", 100))}, &fakeGauge{})
	_, _, err = p.WantedDelegations(at(1), []string{"val1"}, strategy)
	assert.True(t, errs.Is(err, errs.KindEmpNotTuned))

	// every validator filtered out
	tight := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 9999,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
	})
	p = planner.New(&fakeGauge{tune: tuned(point("val1", 100), point("val2", 100))}, nil)
	_, _, err = p.WantedDelegations(at(1), []string{"val1", "val2"}, tight)
	assert.True(t, errs.Is(err, errs.KindTuneNoValidators))
}

func TestSimulateWantedDelegations(t *testing.T) {
	amp := &fakeGauge{at: map[string]uint64{"val1": 300, "val2": 100}}
	p := planner.New(amp, nil)

	strategy := planner.GaugesStrategy(planner.GaugesParams{
		AmpFactorBPS:     10000,
		MinDelegationBPS: 0,
		MaxDelegationBPS: 10000,
		ValidatorCount:   10,
	})
	out, err := p.SimulateWantedDelegations(at(9), []string{"val1", "val2"}, strategy, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), out.TunePeriod)

	shares := shareMap(out.Shares)
	assert.Zero(t, dec.FromRatio(3, 4).Cmp(shares["val1"]))
	assert.Zero(t, dec.FromRatio(1, 4).Cmp(shares["val2"]))

	empty := planner.New(&fakeGauge{at: map[string]uint64{}}, nil)
	_, err = empty.SimulateWantedDelegations(at(9), []string{"val1"}, strategy, 5)
	assert.True(t, errs.Is(err, errs.KindNoVamp))
}
