// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gaugemath holds the voting-power arithmetic shared by the
// escrow and the gauges. Voting power decomposes into a fixed floor plus
// a linearly decaying component: vp(t) = fixed + slope * remaining_periods.
package gaugemath

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/stakehub"
)

const (
	// MinLockPeriods shortest allowed lock, in weeks.
	MinLockPeriods uint64 = 2

	// MaxLockPeriods longest allowed lock, in weeks.
	MaxLockPeriods uint64 = 104

	// BoostBase coefficient floor, applied at any duration.
	boostBase uint64 = 2

	// boostSpanNum/boostSpanDenom extra boost per period: 8/104 at MaxLockPeriods sums to 8.
	boostSpanNum   uint64 = 8
	boostSpanDenom        = MaxLockPeriods
)

// CalcCoefficient maps a lock duration in periods to the initial boost
// multiplier: 2 + 8 * periods / 104. A full-length lock boosts 10x.
func CalcCoefficient(periods uint64) dec.Dec {
	return dec.FromRatio(boostBase, 1).Add(dec.FromRatio(boostSpanNum*periods, boostSpanDenom))
}

// CalcVotingPower applies the coefficient to the locked amount, flooring.
func CalcVotingPower(coefficient dec.Dec, amount bn.Int) bn.Int {
	return coefficient.MulInt(amount)
}

// AdjustVpAndSlope derives the integer slope for a decay from vp down to
// endVp over dt periods, and re-quantises vp so the decay lands exactly
// on endVp: slope = (vp - endVp) / dt, vp' = slope*dt + endVp.
func AdjustVpAndSlope(vp bn.Int, dt uint64, endVp bn.Int) (adjusted, slope bn.Int) {
	if dt == 0 {
		return endVp, bn.Int{}
	}
	slope = vp.SubSaturate(endVp).Div(bn.FromUint64(dt))
	adjusted = slope.Mul(bn.FromUint64(dt)).Add(endVp)
	return adjusted, slope
}

// VotingPowerAt evaluates fixed + slope * remaining.
func VotingPowerAt(fixed, slope bn.Int, remaining uint64) bn.Int {
	return fixed.Add(slope.Mul(bn.FromUint64(remaining)))
}

// Decay evaluates vp - slope * dt, saturating at zero.
func Decay(vp, slope bn.Int, dt uint64) bn.Int {
	return vp.SubSaturate(slope.Mul(bn.FromUint64(dt)))
}

// ApplyBps scales an amount by basis points, flooring.
func ApplyBps(amount bn.Int, bps uint16) bn.Int {
	return amount.MulDiv(bn.FromUint64(uint64(bps)), bn.FromUint64(stakehub.BpsDenominator))
}
