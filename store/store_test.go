// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/store"
)

type record struct {
	Amount bn.Int
	Note   string
}

func TestItem(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	item := store.NewItem[record](db, "rec")

	_, ok, err := item.Get()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, item.Set(record{Amount: bn.FromUint64(7), Note: "x"}))
	got, ok, err := item.Get()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.Amount.Uint64())
	assert.Equal(t, "x", got.Note)

	require.NoError(t, item.Delete())
	_, ok, err = item.Get()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMappingIterate(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	m := store.NewMapping[uint64](db, "periods")
	for _, p := range []uint64{5, 1, 9, 3} {
		require.NoError(t, m.Set(store.U64Key(p), p*10))
	}

	var keys []uint64
	require.NoError(t, m.Iterate(kv.Range{}, false, func(key []byte, v uint64) (bool, error) {
		keys = append(keys, store.ParseU64Key(key))
		assert.Equal(t, store.ParseU64Key(key)*10, v)
		return true, nil
	}))
	assert.Equal(t, []uint64{1, 3, 5, 9}, keys)

	// descending, stop after the first
	keys = nil
	require.NoError(t, m.Iterate(kv.Range{}, true, func(key []byte, _ uint64) (bool, error) {
		keys = append(keys, store.ParseU64Key(key))
		return false, nil
	}))
	assert.Equal(t, []uint64{9}, keys)

	// bounded: periods in [3, 9)
	keys = nil
	require.NoError(t, m.Iterate(kv.Range{Start: store.U64Key(3), Limit: store.U64Key(9)}, false, func(key []byte, _ uint64) (bool, error) {
		keys = append(keys, store.ParseU64Key(key))
		return true, nil
	}))
	assert.Equal(t, []uint64{3, 5}, keys)
}

func TestMappingSubIsolated(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	base := store.NewMapping[uint64](db, "slopes")
	v1 := base.Sub("val1")
	v2 := base.Sub("val2")

	require.NoError(t, v1.Set(store.U64Key(1), 100))
	require.NoError(t, v2.Set(store.U64Key(1), 200))

	got, ok, err := v1.Get(store.U64Key(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), got)

	count := 0
	require.NoError(t, v2.Iterate(kv.Range{}, false, func(_ []byte, v uint64) (bool, error) {
		count++
		assert.Equal(t, uint64(200), v)
		return true, nil
	}))
	assert.Equal(t, 1, count)
}

func TestConfigVariable(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	c := store.NewConfigVariable(db, "limit", 30)
	v, err := c.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(30), v)

	require.NoError(t, c.Set(10))
	v, err = c.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
}
