// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/kv"
)

func TestGetPut(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	assert.True(t, db.IsNotFound(err))

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, db.Delete([]byte("k")))
	has, err = db.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBatch(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	batch := db.NewBatch()
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	assert.Equal(t, 2, batch.Len())

	// nothing visible before write
	has, _ := db.Has([]byte("a"))
	assert.False(t, has)

	require.NoError(t, batch.Write())
	val, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), val)
}

func TestIterate(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	for _, k := range []string{"a1", "a2", "a3", "b1"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}

	collect := func(r kv.Range, reverse bool) (keys []string) {
		iter := db.Iterate(r, reverse)
		defer iter.Release()
		for iter.Next() {
			keys = append(keys, string(iter.Key()))
		}
		require.NoError(t, iter.Error())
		return
	}

	assert.Equal(t, []string{"a1", "a2", "a3", "b1"}, collect(kv.Range{}, false))
	assert.Equal(t, []string{"b1", "a3", "a2", "a1"}, collect(kv.Range{}, true))
	assert.Equal(t, []string{"a2", "a3"}, collect(kv.Range{Start: []byte("a2"), Limit: []byte("b1")}, false))
	assert.Equal(t, []string{"a3", "a2"}, collect(kv.Range{Start: []byte("a2"), Limit: []byte("b1")}, true))
}

func TestBucket(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	b1 := kv.Bucket("b1-").NewStore(db)
	b2 := kv.Bucket("b2-").NewStore(db)

	require.NoError(t, b1.Put([]byte("k"), []byte("one")))
	require.NoError(t, b2.Put([]byte("k"), []byte("two")))

	val, err := b1.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), val)

	iter := b2.Iterate(kv.Range{}, false)
	defer iter.Release()
	require.True(t, iter.Next())
	assert.Equal(t, []byte("k"), iter.Key())
	assert.Equal(t, []byte("two"), iter.Value())
	assert.False(t, iter.Next())
}
