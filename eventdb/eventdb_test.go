// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package eventdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/eventdb"
)

func TestRecordAndFilter(t *testing.T) {
	db, err := eventdb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	for i := uint64(0); i < 100; i++ {
		component := "hub"
		if i%2 == 1 {
			component = "arbvault"
		}
		db.Record(1000+i, component, "bond", map[string]string{
			"amount": "100",
		})
	}

	events, err := db.Filter(&eventdb.Filter{
		Component: "hub",
		Range:     &eventdb.Range{From: 1000, To: 1010},
		Options:   &eventdb.Options{Offset: 0, Limit: 5},
	})
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, uint64(1000), events[0].Time)
	assert.Equal(t, "hub", events[0].Component)
	assert.Equal(t, "bond", events[0].Action)
	assert.Equal(t, "100", events[0].Attrs["amount"])

	events, err = db.Filter(&eventdb.Filter{
		Component: "arbvault",
		Order:     eventdb.DESC,
	})
	require.NoError(t, err)
	require.Len(t, events, 50)
	assert.Equal(t, uint64(1099), events[0].Time)

	events, err = db.Filter(&eventdb.Filter{Action: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFilterNilReturnsAll(t *testing.T) {
	db, err := eventdb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	db.Record(1, "escrow", "create_lock", nil)
	db.Record(2, "escrow", "withdraw", nil)

	events, err := db.Filter(nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].Attrs)
	assert.True(t, events[0].ID < events[1].ID)
}
