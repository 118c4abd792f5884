// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gaugemath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/gauges/gaugemath"
)

func TestCalcCoefficient(t *testing.T) {
	assert.Equal(t, "2", gaugemath.CalcCoefficient(0).String())
	assert.Equal(t, "10", gaugemath.CalcCoefficient(104).String())
	// 2 + 8*52/104
	assert.Equal(t, "6", gaugemath.CalcCoefficient(52).String())
}

func TestThreeWeekLockDecay(t *testing.T) {
	amount := bn.FromUint64(100000)
	coeff := gaugemath.CalcCoefficient(3)

	raw := gaugemath.CalcVotingPower(coeff, amount)
	vp, slope := gaugemath.AdjustVpAndSlope(raw, 3, amount)

	assert.Equal(t, uint64(223075), vp.Uint64())
	assert.Equal(t, uint64(41025), slope.Uint64())
	assert.Equal(t, uint64(182050), gaugemath.VotingPowerAt(amount, slope, 2).Uint64())
	assert.Equal(t, uint64(141025), gaugemath.VotingPowerAt(amount, slope, 1).Uint64())
	// at and past expiry only the floor remains
	assert.Equal(t, uint64(100000), gaugemath.VotingPowerAt(amount, slope, 0).Uint64())
}

func TestAdjustZeroDt(t *testing.T) {
	vp, slope := gaugemath.AdjustVpAndSlope(bn.FromUint64(500), 0, bn.FromUint64(100))
	assert.Equal(t, uint64(100), vp.Uint64())
	assert.True(t, slope.IsZero())
}

func TestApplyBps(t *testing.T) {
	assert.Equal(t, uint64(2500), gaugemath.ApplyBps(bn.FromUint64(10000), 2500).Uint64())
	assert.Equal(t, uint64(33), gaugemath.ApplyBps(bn.FromUint64(10000), 33).Uint64())
	assert.True(t, gaugemath.ApplyBps(bn.FromUint64(10000), 0).IsZero())
}
