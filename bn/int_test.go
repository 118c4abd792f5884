// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bn_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
)

func TestZeroValue(t *testing.T) {
	var i bn.Int
	assert.True(t, i.IsZero())
	assert.Equal(t, "0", i.String())
	assert.Equal(t, uint64(0), i.Uint64())
	assert.Equal(t, 0, i.Cmp(bn.FromUint64(0)))
}

func TestArithmetic(t *testing.T) {
	a := bn.FromUint64(1000)
	b := bn.FromUint64(400)

	assert.Equal(t, uint64(1400), a.Add(b).Uint64())
	assert.Equal(t, uint64(600), a.Sub(b).Uint64())
	assert.Equal(t, uint64(0), b.SubSaturate(a).Uint64())
	assert.Equal(t, uint64(400), bn.Min(a, b).Uint64())
	assert.Panics(t, func() { b.Sub(a) })

	// zero values on either side of a saturating sub
	var zero bn.Int
	assert.Equal(t, uint64(1000), a.SubSaturate(zero).Uint64())
	assert.Equal(t, uint64(0), zero.SubSaturate(a).Uint64())
}

func TestMulDiv(t *testing.T) {
	// supply * amount / bonded with an intermediate wider than 64 bits
	supply := bn.FromBig(new(big.Int).SetUint64(1e18))
	amount := bn.FromBig(new(big.Int).SetUint64(3e18))
	bonded := bn.FromBig(new(big.Int).SetUint64(2e18))

	out := supply.MulDiv(amount, bonded)
	assert.Equal(t, "1500000000000000000", out.String())

	// truncation
	assert.Equal(t, uint64(33), bn.FromUint64(100).MulDiv(bn.FromUint64(1), bn.FromUint64(3)).Uint64())
	assert.Panics(t, func() { supply.MulDiv(amount, bn.Int{}) })
}

func TestRLPRoundTrip(t *testing.T) {
	for _, v := range []bn.Int{{}, bn.FromUint64(1), bn.FromBig(new(big.Int).Lsh(big.NewInt(1), 200))} {
		data, err := rlp.EncodeToBytes(&v)
		require.NoError(t, err)

		var decoded bn.Int
		require.NoError(t, rlp.DecodeBytes(data, &decoded))
		assert.Equal(t, 0, v.Cmp(decoded))
	}
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(bn.FromUint64(123456789))
	require.NoError(t, err)
	assert.Equal(t, `"123456789"`, string(data))

	var decoded bn.Int
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(123456789), decoded.Uint64())
}
