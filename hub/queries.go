// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import (
	"sort"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

// Coin pairs a denom with an amount.
type Coin struct {
	Denom  string `json:"denom"`
	Amount bn.Int `json:"amount"`
}

// ConfigResponse is the Config query result.
type ConfigResponse struct {
	Owner          stakehub.Address  `json:"owner"`
	NewOwner       *stakehub.Address `json:"newOwner,omitempty"`
	Denom          string            `json:"denom"`
	EpochPeriod    uint64            `json:"epochPeriod"`
	UnbondPeriod   uint64            `json:"unbondPeriod"`
	Validators     []string          `json:"validators"`
	FeeConfig      FeeConfig         `json:"feeConfig"`
	Strategy       planner.Strategy  `json:"strategy"`
	AllowDonations bool              `json:"allowDonations"`
}

// StateResponse is the State query result.
type StateResponse struct {
	TotalStake    bn.Int  `json:"totalStake"`
	TotalBonded   bn.Int  `json:"totalBonded"`
	ExchangeRate  dec.Dec `json:"exchangeRate"`
	UnlockedCoins []Coin  `json:"unlockedCoins"`
	TVL           bn.Int  `json:"tvlUtoken"`
}

// UnbondRequestByBatchItem is one user's claim within a batch.
type UnbondRequestByBatchItem struct {
	User   stakehub.Address `json:"user"`
	Shares bn.Int           `json:"shares"`
}

// UnbondRequestByUserItem is one batch claim of a user.
type UnbondRequestByUserItem struct {
	ID     uint64 `json:"id"`
	Shares bn.Int `json:"shares"`
}

// Claim states reported by UnbondRequestsByUserDetails.
const (
	UnbondStatePending   = "PENDING"
	UnbondStateUnbonding = "UNBONDING"
	UnbondStateCompleted = "COMPLETED"
)

// UnbondRequestDetails is a user claim annotated with its progress.
type UnbondRequestDetails struct {
	ID          uint64 `json:"id"`
	Shares      bn.Int `json:"shares"`
	State       string `json:"state"`
	ReleaseTime *uint64 `json:"releaseTime,omitempty"`
}

// Config returns the hub configuration.
func (h *Hub) Config() (ConfigResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owner, err := h.ownable.Owner()
	if err != nil {
		return ConfigResponse{}, err
	}
	newOwner, err := h.ownable.Proposed()
	if err != nil {
		return ConfigResponse{}, err
	}
	validators, err := h.validatorList()
	if err != nil {
		return ConfigResponse{}, err
	}
	feeConfig, _, err := h.feeConfig.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	strategy, err := h.loadStrategy()
	if err != nil {
		return ConfigResponse{}, err
	}
	allowDonations, _, err := h.allowDonations.Get()
	if err != nil {
		return ConfigResponse{}, err
	}
	return ConfigResponse{
		Owner:          owner,
		NewOwner:       newOwner,
		Denom:          h.denom,
		EpochPeriod:    h.epochPeriod,
		UnbondPeriod:   h.unbondPeriod,
		Validators:     validators,
		FeeConfig:      feeConfig,
		Strategy:       strategy,
		AllowDonations: allowDonations,
	}, nil
}

// ExchangeRate returns underlying per receipt token, one when no
// receipt tokens exist.
func (h *Hub) ExchangeRate() (dec.Dec, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exchangeRate()
}

func (h *Hub) exchangeRate() (dec.Dec, error) {
	supply, err := h.stakeToken.TotalSupply()
	if err != nil {
		return dec.Dec{}, err
	}
	if supply.IsZero() {
		return dec.One(), nil
	}
	delegations, err := h.staking.Delegations()
	if err != nil {
		return dec.Dec{}, err
	}
	return dec.FromIntRatio(totalDelegated(delegations), supply), nil
}

// State returns the live accounting of the hub.
func (h *Hub) State() (StateResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	supply, err := h.stakeToken.TotalSupply()
	if err != nil {
		return StateResponse{}, err
	}
	delegations, err := h.staking.Delegations()
	if err != nil {
		return StateResponse{}, err
	}
	bonded := totalDelegated(delegations)

	rate := dec.One()
	if !supply.IsZero() {
		rate = dec.FromIntRatio(bonded, supply)
	}

	var coins []Coin
	err = h.unlocked.Iterate(kv.Range{}, false, func(key []byte, amount bn.Int) (bool, error) {
		coins = append(coins, Coin{Denom: string(key), Amount: amount})
		return true, nil
	})
	if err != nil {
		return StateResponse{}, err
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Denom < coins[j].Denom })

	tvl := bonded
	for _, c := range coins {
		if c.Denom == h.denom {
			tvl = tvl.Add(c.Amount)
		}
	}
	return StateResponse{
		TotalStake:    supply,
		TotalBonded:   bonded,
		ExchangeRate:  rate,
		UnlockedCoins: coins,
		TVL:           tvl,
	}, nil
}

// WantedDelegations computes the current wanted shares from the live
// gauge state.
func (h *Hub) WantedDelegations(now uint64) (planner.WantedDelegationsShare, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	validators, err := h.validatorList()
	if err != nil {
		return planner.WantedDelegationsShare{}, err
	}
	strategy, err := h.loadStrategy()
	if err != nil {
		return planner.WantedDelegationsShare{}, err
	}
	wanted, _, err := h.planner.WantedDelegations(now, validators, strategy)
	return wanted, err
}

// SimulateWantedDelegations evaluates the gauges at a chosen period,
// defaulting to the upcoming one.
func (h *Hub) SimulateWantedDelegations(now uint64, period *uint64) (planner.WantedDelegationsShare, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	validators, err := h.validatorList()
	if err != nil {
		return planner.WantedDelegationsShare{}, err
	}
	strategy, err := h.loadStrategy()
	if err != nil {
		return planner.WantedDelegationsShare{}, err
	}
	at := stakehub.Period(now) + 1
	if period != nil {
		at = *period
	}
	return h.planner.SimulateWantedDelegations(now, validators, strategy, at)
}

// PendingBatch returns the batch currently collecting unbond requests.
func (h *Hub) PendingBatch() (PendingBatch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pending, _, err := h.pending.Get()
	return pending, err
}

// PreviousBatch returns one sealed batch by id.
func (h *Hub) PreviousBatch(id uint64) (Batch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	batch, ok, err := h.batches.Get(store.U64Key(id))
	if err != nil {
		return Batch{}, err
	}
	if !ok {
		return Batch{}, errs.Newf(errs.KindNothingToWithdraw, "batch %d not found", id)
	}
	return batch, nil
}

// PreviousBatches pages through sealed batches in id order.
func (h *Hub) PreviousBatches(startAfter *uint64, limit *uint32) ([]Batch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var r kv.Range
	if startAfter != nil {
		r.Start = store.U64Key(*startAfter + 1)
	}
	max := stakehub.ClampLimit(limit)

	var out []Batch
	err := h.batches.Iterate(r, false, func(_ []byte, b Batch) (bool, error) {
		out = append(out, b)
		return len(out) < max, nil
	})
	return out, err
}

// UnbondRequestsByBatch pages through the claims of one batch.
func (h *Hub) UnbondRequestsByBatch(id uint64, startAfter *stakehub.Address, limit *uint32) ([]UnbondRequestByBatchItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := prefixRange(store.U64Key(id))
	if startAfter != nil {
		r.Start = append(batchUserKey(id, *startAfter), 0)
	}
	max := stakehub.ClampLimit(limit)

	var out []UnbondRequestByBatchItem
	err := h.requestsByID.Iterate(r, false, func(key []byte, shares bn.Int) (bool, error) {
		out = append(out, UnbondRequestByBatchItem{
			User:   stakehub.BytesToAddress(key[8:]),
			Shares: shares,
		})
		return len(out) < max, nil
	})
	return out, err
}

// UnbondRequestsByUser pages through one user's claims.
func (h *Hub) UnbondRequestsByUser(user stakehub.Address, startAfter *uint64, limit *uint32) ([]UnbondRequestByUserItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unbondRequestsByUser(user, startAfter, limit)
}

func (h *Hub) unbondRequestsByUser(user stakehub.Address, startAfter *uint64, limit *uint32) ([]UnbondRequestByUserItem, error) {
	r := prefixRange(user.Bytes())
	if startAfter != nil {
		r.Start = userBatchKey(user, *startAfter+1)
	}
	max := stakehub.ClampLimit(limit)

	var out []UnbondRequestByUserItem
	err := h.requestsByUser.Iterate(r, false, func(key []byte, shares bn.Int) (bool, error) {
		out = append(out, UnbondRequestByUserItem{
			ID:     store.ParseU64Key(key[stakehub.AddressLength:]),
			Shares: shares,
		})
		return len(out) < max, nil
	})
	return out, err
}

// UnbondRequestsByUserDetails annotates the user's claims with their
// progress through the batch state machine.
func (h *Hub) UnbondRequestsByUserDetails(now uint64, user stakehub.Address, startAfter *uint64, limit *uint32) ([]UnbondRequestDetails, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	items, err := h.unbondRequestsByUser(user, startAfter, limit)
	if err != nil {
		return nil, err
	}
	pending, _, err := h.pending.Get()
	if err != nil {
		return nil, err
	}

	out := make([]UnbondRequestDetails, 0, len(items))
	for _, item := range items {
		details := UnbondRequestDetails{ID: item.ID, Shares: item.Shares}
		if item.ID == pending.ID {
			details.State = UnbondStatePending
			releaseTime := pending.EstUnbondStartTime + h.unbondPeriod
			details.ReleaseTime = &releaseTime
		} else if batch, ok, err := h.batches.Get(store.U64Key(item.ID)); err != nil {
			return nil, err
		} else if !ok || (batch.Reconciled && batch.EstUnbondEndTime < now) {
			details.State = UnbondStateCompleted
		} else {
			details.State = UnbondStateUnbonding
			releaseTime := batch.EstUnbondEndTime
			details.ReleaseTime = &releaseTime
		}
		out = append(out, details)
	}
	return out, nil
}
