// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package extractor

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/stakehub"
)

type ConfigResponse struct {
	Owner                stakehub.Address  `json:"owner"`
	NewOwner             *stakehub.Address `json:"newOwner"`
	YieldSink            stakehub.Address  `json:"yieldSink"`
	YieldExtractFraction dec.Dec           `json:"yieldExtractFraction"`
}

type StateResponse struct {
	TotalLP        bn.Int `json:"totalLp"`
	StakeBalance   bn.Int `json:"stakeBalance"`
	StakeExtracted bn.Int `json:"stakeExtracted"`
	StakeHarvested bn.Int `json:"stakeHarvested"`
	StakeAvailable bn.Int `json:"stakeAvailable"`

	ExchangeRateLPStake dec.Dec `json:"exchangeRateLpStake"`
	ExchangeRateStake   dec.Dec `json:"exchangeRateStake"`
	TVLUToken           bn.Int  `json:"tvlUtoken"`
}

type ShareResponse struct {
	Share         bn.Int `json:"share"`
	ReceivedAsset bn.Int `json:"receivedAsset"`
	TotalLP       bn.Int `json:"totalLp"`
}

func (e *Extractor) Config() (ConfigResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, err := e.ownable.Owner()
	if err != nil {
		return ConfigResponse{}, err
	}
	proposed, err := e.ownable.Proposed()
	if err != nil {
		return ConfigResponse{}, err
	}
	params, _, err := e.params.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	return ConfigResponse{
		Owner:                owner,
		NewOwner:             proposed,
		YieldSink:            params.YieldSink,
		YieldExtractFraction: params.YieldExtractFraction,
	}, nil
}

// State reports the extractor book-keeping with the pending skim
// simulated, so the answer matches what the next mutation will see.
func (e *Extractor) State() (StateResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	params, _, err := e.params.Get()
	if err != nil {
		return StateResponse{}, err
	}
	extracted, _, err := e.extracted.Get()
	if err != nil {
		return StateResponse{}, err
	}
	harvested, _, err := e.harvested.Get()
	if err != nil {
		return StateResponse{}, err
	}
	last, _, err := e.lastRate.Get()
	if err != nil {
		return StateResponse{}, err
	}
	current, err := e.rates.ExchangeRate()
	if err != nil {
		return StateResponse{}, err
	}
	supply, err := e.lp.TotalSupply()
	if err != nil {
		return StateResponse{}, err
	}
	balance, err := e.stake.Balance(e.addr)
	if err != nil {
		return StateResponse{}, err
	}

	available := balance.SubSaturate(extracted)
	if current.Cmp(last) > 0 && !last.IsZero() {
		diff := current.Sub(last).Div(current)
		toExtract := diff.Mul(params.YieldExtractFraction).MulInt(available)
		extracted = extracted.Add(toExtract)
		available = balance.SubSaturate(extracted)
	}

	rateLP := dec.Zero()
	if !supply.IsZero() {
		rateLP = dec.FromIntRatio(available, supply)
	}
	return StateResponse{
		TotalLP:             supply,
		StakeBalance:        balance,
		StakeExtracted:      extracted,
		StakeHarvested:      harvested,
		StakeAvailable:      available,
		ExchangeRateLPStake: rateLP,
		ExchangeRateStake:   current,
		TVLUToken:           current.MulInt(balance),
	}, nil
}

// Share reports the stake a holder's LP shares would redeem for right
// now, before any pending skim.
func (e *Extractor) Share(user stakehub.Address) (ShareResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	extracted, _, err := e.extracted.Get()
	if err != nil {
		return ShareResponse{}, err
	}
	supply, err := e.lp.TotalSupply()
	if err != nil {
		return ShareResponse{}, err
	}
	balance, err := e.stake.Balance(e.addr)
	if err != nil {
		return ShareResponse{}, err
	}
	share, err := e.lp.Balance(user)
	if err != nil {
		return ShareResponse{}, err
	}

	available := balance.SubSaturate(extracted)
	var received bn.Int
	if !supply.IsZero() {
		received = share.MulDiv(available, supply)
	}
	return ShareResponse{
		Share:         share,
		ReceivedAsset: received,
		TotalLP:       supply,
	}, nil
}
