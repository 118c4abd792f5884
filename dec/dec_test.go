// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
)

func TestParseAndString(t *testing.T) {
	cases := []string{"0", "1", "1.5", "0.007", "2.076923076923076923"}
	for _, c := range cases {
		d, err := dec.Parse(c)
		require.NoError(t, err)
		assert.Equal(t, c, d.String())
	}

	_, err := dec.Parse("1.1234567890123456789")
	assert.Error(t, err)
	_, err = dec.Parse("-1")
	assert.Error(t, err)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "0.1", dec.FromBps(1000).String())
	assert.Equal(t, "1", dec.FromRatio(3, 3).String())
	assert.Equal(t, "1.5", dec.FromIntRatio(bn.FromUint64(150), bn.FromUint64(100)).String())
}

func TestArithmetic(t *testing.T) {
	half := dec.MustParse("0.5")
	three := dec.MustParse("3")

	assert.Equal(t, "1.5", half.Mul(three).String())
	assert.Equal(t, "6", three.Div(half).String())
	assert.Equal(t, "3.5", three.Add(half).String())
	assert.Equal(t, "2.5", three.Sub(half).String())
	assert.True(t, half.SubSaturate(three).IsZero())
	assert.Panics(t, func() { half.Sub(three) })
}

func TestMulInt(t *testing.T) {
	rate := dec.MustParse("1.02")
	assert.Equal(t, uint64(10200000), rate.MulInt(bn.FromUint64(10000000)).Uint64())

	// floors
	third := dec.FromRatio(1, 3)
	assert.Equal(t, uint64(33), third.MulInt(bn.FromUint64(100)).Uint64())
}

func TestFloor(t *testing.T) {
	assert.Equal(t, uint64(2), dec.MustParse("2.9").Floor().Uint64())
	assert.True(t, dec.MustParse("0.9").Floor().IsZero())
}
