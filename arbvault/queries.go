// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package arbvault

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

type ConfigResponse struct {
	Owner        stakehub.Address   `json:"owner"`
	NewOwner     *stakehub.Address  `json:"newOwner"`
	UToken       string             `json:"utoken"`
	UnbondPeriod uint64             `json:"unbondTimeS"`
	Steps        []UtilizationStep  `json:"utilizationMethod"`
	FeeConfig    FeeConfig          `json:"feeConfig"`
	Whitelist    []stakehub.Address `json:"whitelist"`
	LSDs         []string           `json:"lsds"`
}

type TakeableStep struct {
	WantedProfit dec.Dec `json:"wantedProfit"`
	Takeable     bn.Int  `json:"takeable"`
}

type TakeableResponse struct {
	Takeable *bn.Int        `json:"takeable"`
	Steps    []TakeableStep `json:"steps"`
}

type ClaimBalance struct {
	Name         string `json:"name"`
	Withdrawable bn.Int `json:"withdrawable"`
	Unbonding    bn.Int `json:"unbonding"`
}

type StateDetails struct {
	Claims        []ClaimBalance `json:"claims"`
	TakeableSteps []TakeableStep `json:"takeableSteps"`
}

type StateResponse struct {
	ExchangeRate  dec.Dec       `json:"exchangeRate"`
	TotalLPSupply bn.Int        `json:"totalLpSupply"`
	Balances      Balances      `json:"balances"`
	Details       *StateDetails `json:"details,omitempty"`
}

type UserInfoResponse struct {
	LPAmount     bn.Int `json:"lpAmount"`
	UTokenAmount bn.Int `json:"utokenAmount"`
}

type UnbondRequestItem struct {
	ID                  uint64 `json:"id"`
	StartTime           uint64 `json:"startTime"`
	ReleaseTime         uint64 `json:"releaseTime"`
	AmountAsset         bn.Int `json:"amountAsset"`
	Released            bool   `json:"released"`
	WithdrawProtocolFee bn.Int `json:"withdrawProtocolFee"`
	WithdrawPoolFee     bn.Int `json:"withdrawPoolFee"`
}

type ExchangeRateItem struct {
	TimeS uint64  `json:"timeS"`
	Rate  dec.Dec `json:"rate"`
}

type ExchangeRatesResponse struct {
	Rates []ExchangeRateItem `json:"exchangeRates"`
	// APR over the two most recent samples, nil with fewer than two.
	APR *dec.Dec `json:"apr"`
}

func (v *Vault) Config() (ConfigResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	owner, err := v.ownable.Owner()
	if err != nil {
		return ConfigResponse{}, err
	}
	proposed, err := v.ownable.Proposed()
	if err != nil {
		return ConfigResponse{}, err
	}
	period, _, err := v.unbondPeriod.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	steps, _, err := v.steps.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	whitelist, _, err := v.whitelist.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	names := make([]string, 0, len(v.lsds))
	for _, l := range v.lsds {
		names = append(names, l.Name())
	}
	return ConfigResponse{
		Owner:        owner,
		NewOwner:     proposed,
		UToken:       v.denom,
		UnbondPeriod: period,
		Steps:        steps,
		FeeConfig:    feeConfig,
		Whitelist:    whitelist,
		LSDs:         names,
	}, nil
}

// Takeable reports the executor draw ceiling, either for one profit
// tier or across all of them.
func (v *Vault) Takeable(now uint64, wantedProfit *dec.Dec) (TakeableResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, err := v.balances(now)
	if err != nil {
		return TakeableResponse{}, err
	}
	var out TakeableResponse
	if wantedProfit != nil {
		takeable, err := v.takeableForProfit(b, *wantedProfit)
		if err != nil {
			return TakeableResponse{}, err
		}
		out.Takeable = &takeable
	}
	out.Steps, err = v.takeableSteps(b)
	return out, err
}

func (v *Vault) takeableSteps(b Balances) ([]TakeableStep, error) {
	steps, _, err := v.steps.Get()
	if err != nil {
		return nil, err
	}
	out := make([]TakeableStep, 0, len(steps))
	for _, s := range steps {
		takeable, err := v.takeableForProfit(b, s.WantedProfit)
		if err != nil {
			return nil, err
		}
		out = append(out, TakeableStep{WantedProfit: s.WantedProfit, Takeable: takeable})
	}
	return out, nil
}

func (v *Vault) State(now uint64, details bool) (StateResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, err := v.balances(now)
	if err != nil {
		return StateResponse{}, err
	}
	supply, err := v.lp.TotalSupply()
	if err != nil {
		return StateResponse{}, err
	}
	rate := dec.One()
	if !supply.IsZero() {
		rate = dec.FromIntRatio(b.VaultTotal, supply)
	}
	out := StateResponse{
		ExchangeRate:  rate,
		TotalLPSupply: supply,
		Balances:      b,
	}
	if details {
		claims := make([]ClaimBalance, 0, len(v.lsds))
		for _, l := range v.lsds {
			u, err := l.Unbonding(now, v.addr)
			if err != nil {
				return StateResponse{}, err
			}
			w, err := l.Withdrawable(now, v.addr)
			if err != nil {
				return StateResponse{}, err
			}
			claims = append(claims, ClaimBalance{Name: l.Name(), Withdrawable: w, Unbonding: u})
		}
		steps, err := v.takeableSteps(b)
		if err != nil {
			return StateResponse{}, err
		}
		out.Details = &StateDetails{Claims: claims, TakeableSteps: steps}
	}
	return out, nil
}

func (v *Vault) UserInfo(now uint64, user stakehub.Address) (UserInfoResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	lpAmount, err := v.lp.Balance(user)
	if err != nil {
		return UserInfoResponse{}, err
	}
	supply, err := v.lp.TotalSupply()
	if err != nil {
		return UserInfoResponse{}, err
	}
	var utoken bn.Int
	if !supply.IsZero() && !lpAmount.IsZero() {
		b, err := v.balances(now)
		if err != nil {
			return UserInfoResponse{}, err
		}
		utoken = b.VaultTotal.MulDiv(lpAmount, supply)
	}
	return UserInfoResponse{LPAmount: lpAmount, UTokenAmount: utoken}, nil
}

// UnbondRequests pages through the user's pending withdrawals along
// with the fees an early claim would pay right now.
func (v *Vault) UnbondRequests(now uint64, user stakehub.Address, startAfter *uint64, limit *uint32) ([]UnbondRequestItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return nil, err
	}

	r := prefixRange(user.Bytes())
	if startAfter != nil {
		r.Start = userUnbondKey(user, *startAfter+1)
	}
	max := stakehub.ClampLimit(limit)

	var out []UnbondRequestItem
	err = v.history.Iterate(r, false, func(key []byte, item UnbondHistory) (bool, error) {
		out = append(out, UnbondRequestItem{
			ID:                  store.ParseU64Key(key[stakehub.AddressLength:]),
			StartTime:           item.StartTime,
			ReleaseTime:         item.ReleaseTime,
			AmountAsset:         item.AmountAsset,
			Released:            item.ReleaseTime <= now,
			WithdrawProtocolFee: item.ProtocolFee,
			WithdrawPoolFee:     calcPoolFee(feeConfig, item.AmountAsset, item.poolFeeFactor(now)),
		})
		return len(out) < max, nil
	})
	return out, err
}

// ExchangeRates lists the daily rate samples newest first.
func (v *Vault) ExchangeRates(startAfterDay *uint64, limit *uint32) (ExchangeRatesResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var r kv.Range
	if startAfterDay != nil {
		r.Limit = store.U64Key(*startAfterDay)
	}
	max := stakehub.ClampLimit(limit)

	var out ExchangeRatesResponse
	err := v.rates.Iterate(r, true, func(_ []byte, item ExchangeHistory) (bool, error) {
		out.Rates = append(out.Rates, ExchangeRateItem{TimeS: item.TimeS, Rate: item.Rate})
		return len(out.Rates) < max, nil
	})
	if err != nil {
		return ExchangeRatesResponse{}, err
	}
	if len(out.Rates) >= 2 {
		last, prev := out.Rates[0], out.Rates[1]
		if last.TimeS > prev.TimeS && !prev.Rate.IsZero() {
			delta := last.Rate.SubSaturate(prev.Rate)
			apr := delta.Mul(dec.FromRatio(secondsPerDay, last.TimeS-prev.TimeS)).Div(prev.Rate)
			out.APR = &apr
		}
	}
	return out, nil
}
