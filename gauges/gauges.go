// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gauges defines the types shared by the amp and emp gauge
// engines and their consumers.
package gauges

import (
	"sort"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/gauges/series"
)

// ValidatorPoint is one validator's score in a tune result.
type ValidatorPoint struct {
	Validator string `json:"validator"`
	Amount    bn.Int `json:"amount"`
}

// TuneInfo is the stored outcome of the latest tune of a gauge.
type TuneInfo struct {
	TuneTS     uint64           `json:"tuneTS"`
	TunePeriod uint64           `json:"tunePeriod"`
	Points     []ValidatorPoint `json:"points"`
}

// ValidatorSet reports the validators currently whitelisted by the hub.
type ValidatorSet interface {
	Validators() ([]string, error)
}

// TunePoints settles every active validator of the series at period and
// returns the whitelisted non-zero totals, fixed floor included, sorted
// by power descending.
func TunePoints(ser *series.Series, vals ValidatorSet, period uint64) ([]ValidatorPoint, error) {
	actives, err := ser.Actives()
	if err != nil {
		return nil, err
	}
	allowed, err := vals.Validators()
	if err != nil {
		return nil, err
	}
	whitelist := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		whitelist[v] = true
	}

	var points []ValidatorPoint
	for _, validator := range actives {
		info, err := ser.Settle(period, validator)
		if err != nil {
			return nil, err
		}
		fixed, err := ser.Fixed(validator, period)
		if err != nil {
			return nil, err
		}
		total := info.Amount.Add(fixed)
		if total.IsZero() {
			if err := ser.Deactivate(validator); err != nil {
				return nil, err
			}
			continue
		}
		if whitelist[validator] {
			points = append(points, ValidatorPoint{Validator: validator, Amount: total})
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Amount.Cmp(points[j].Amount) > 0
	})
	return points, nil
}
