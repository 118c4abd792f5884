// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package amp

import (
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/gauges"
	"github.com/stakehub-labs/stakehub/gauges/series"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// UserInfo returns the user's recorded vote.
func (a *Amp) UserInfo(user stakehub.Address) (UserInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ui, ok, err := a.users.Get(user.Bytes())
	if err != nil {
		return UserInfo{}, err
	}
	if !ok {
		return UserInfo{}, errs.Newf(errs.KindZeroVotingPower, "%s has not voted", user)
	}
	return ui, nil
}

// TuneInfo returns the latest tune result. The zero value means no tune
// has happened yet.
func (a *Amp) TuneInfo() (gauges.TuneInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, _, err := a.tune.Get()
	return info, err
}

// ValidatorInfo returns the validator's aggregate power at the current
// period, fixed floor included.
func (a *Amp) ValidatorInfo(now uint64, validator string) (series.Info, error) {
	return a.ValidatorInfoAt(validator, stakehub.Period(now))
}

// ValidatorInfoAt returns the validator's aggregate power at the given
// period, fixed floor included.
func (a *Amp) ValidatorInfoAt(validator string, period uint64) (series.Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.series.At(validator, period)
	if err != nil {
		return series.Info{}, err
	}
	fixed, err := a.series.Fixed(validator, period)
	if err != nil {
		return series.Info{}, err
	}
	info.Amount = info.Amount.Add(fixed)
	return info, nil
}
