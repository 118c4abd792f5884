// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package emp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/gauges/emp"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
)

var (
	owner    = stakehub.NamedAddress("owner")
	stranger = stakehub.NamedAddress("stranger")
)

const (
	val1 = "val1"
	val2 = "val2"
)

func at(n uint64) uint64 {
	return stakehub.EpochStart + n*stakehub.WeekSeconds
}

type fakeValidatorSet struct {
	list []string
}

func (f *fakeValidatorSet) Validators() ([]string, error) {
	return f.list, nil
}

func newGauges(t *testing.T) *emp.Emp {
	db := kv.NewMem()
	t.Cleanup(func() { db.Close() })

	g, err := emp.New(db, &fakeValidatorSet{list: []string{val1, val2}}, owner, eventdb.Noop())
	require.NoError(t, err)
	return g
}

func power(t *testing.T, g *emp.Emp, validator string, period uint64) uint64 {
	info, err := g.ValidatorInfoAt(validator, period)
	require.NoError(t, err)
	return info.Amount.Uint64()
}

func TestAddEmpsValidation(t *testing.T) {
	g := newGauges(t)

	err := g.AddEmps(at(0), stranger, nil)
	assert.True(t, errs.Is(err, errs.KindUnauthorized))

	err = g.AddEmps(at(0), owner, []emp.Grant{
		{Validator: val1, Points: []emp.Point{{UMeritPoints: bn.FromUint64(1)}}},
		{Validator: val1, Points: []emp.Point{{UMeritPoints: bn.FromUint64(1)}}},
	})
	assert.True(t, errs.Is(err, errs.KindDuplicatedValidators))

	err = g.AddEmps(at(0), owner, []emp.Grant{
		{Validator: "unknown", Points: []emp.Point{{UMeritPoints: bn.FromUint64(1)}}},
	})
	assert.True(t, errs.Is(err, errs.KindInvalidValidatorAddress))

	err = g.AddEmps(at(0), owner, []emp.Grant{
		{Validator: val1, Points: []emp.Point{{}}},
	})
	assert.True(t, errs.Is(err, errs.KindInvalidZeroAmount))
}

// A decaying grant falls linearly to zero; a permanent grant raises the
// floor from the next period on and never expires.
func TestGrantDecay(t *testing.T) {
	g := newGauges(t)

	require.NoError(t, g.AddEmps(at(0), owner, []emp.Grant{{
		Validator: val1,
		Points: []emp.Point{
			{UMeritPoints: bn.FromUint64(10000), DecayingPeriods: 4},
			{UMeritPoints: bn.FromUint64(5000)},
		},
	}}))

	assert.Equal(t, uint64(10000), power(t, g, val1, 0))
	assert.Equal(t, uint64(12500), power(t, g, val1, 1))
	assert.Equal(t, uint64(10000), power(t, g, val1, 2))
	assert.Equal(t, uint64(5000), power(t, g, val1, 4))
	assert.Equal(t, uint64(5000), power(t, g, val1, 100))
}

func TestTuneEmp(t *testing.T) {
	g := newGauges(t)

	err := g.TuneEmp(at(1), owner)
	assert.True(t, errs.Is(err, errs.KindTuneNoValidators))

	require.NoError(t, g.AddEmps(at(0), owner, []emp.Grant{
		{Validator: val1, Points: []emp.Point{{UMeritPoints: bn.FromUint64(3000)}}},
		{Validator: val2, Points: []emp.Point{{UMeritPoints: bn.FromUint64(9000)}}},
	}))

	require.NoError(t, g.TuneEmp(at(1), owner))
	tune, err := g.TuneInfo()
	require.NoError(t, err)
	require.Len(t, tune.Points, 2)
	assert.Equal(t, val2, tune.Points[0].Validator)
	assert.Equal(t, uint64(9000), tune.Points[0].Amount.Uint64())
	assert.Equal(t, val1, tune.Points[1].Validator)
	assert.Equal(t, uint64(1), tune.TunePeriod)
}
