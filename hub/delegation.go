// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/staking"
)

// Redelegation moves stake from one validator to another.
type Redelegation struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Amount bn.Int `json:"amount"`
}

// computeMintAmount converts a deposit into receipt tokens at the
// current exchange rate, 1:1 when nothing is bonded yet.
func computeMintAmount(supply, toBond bn.Int, delegations []staking.Delegation) bn.Int {
	bonded := totalDelegated(delegations)
	if bonded.IsZero() {
		return toBond
	}
	return supply.MulDiv(toBond, bonded)
}

// computeUnbondAmount converts receipt tokens back into underlying.
// Supply cannot be zero while there are receipt tokens to burn.
func computeUnbondAmount(supply, toBurn bn.Int, delegations []staking.Delegation) bn.Int {
	return totalDelegated(delegations).MulDiv(toBurn, supply)
}

func totalDelegated(delegations []staking.Delegation) bn.Int {
	var total bn.Int
	for _, d := range delegations {
		total = total.Add(d.Amount)
	}
	return total
}

// delegationTargets resolves the wanted absolute stake per validator for
// a given total. Integer division leaves a remainder; it is corrected on
// the first validator the caller walks, so targets sum exactly to the
// distributed total.
type delegationTargets struct {
	perValidator map[string]bn.Int
	add          bn.Int
	remove       bn.Int
}

func (t *delegationTargets) targetFor(validator string) bn.Int {
	target := t.perValidator[validator]
	if !t.add.IsZero() {
		target = target.Add(t.add)
		t.add = bn.Int{}
	}
	if !t.remove.IsZero() && target.Cmp(t.remove) >= 0 {
		target = target.Sub(t.remove)
		t.remove = bn.Int{}
	}
	return target
}

func (h *Hub) delegationTargets(toDistribute bn.Int, validators []string) (*delegationTargets, error) {
	goal, ok, err := h.goal.Get()
	if err != nil {
		return nil, err
	}

	per := make(map[string]bn.Int, len(validators))
	if ok && len(goal.Shares) > 0 {
		for _, s := range goal.Shares {
			per[s.Validator] = s.Share.MulInt(toDistribute)
		}
	} else {
		each := toDistribute.Div(bn.FromUint64(uint64(len(validators))))
		for _, v := range validators {
			per[v] = each
		}
	}

	var total bn.Int
	for _, amount := range per {
		total = total.Add(amount)
	}
	targets := &delegationTargets{perValidator: per}
	switch total.Cmp(toDistribute) {
	case -1:
		targets.add = toDistribute.Sub(total)
	case 1:
		targets.remove = total.Sub(toDistribute)
	}
	return targets, nil
}

// mergeWithValidators extends the delegation list with zero entries for
// whitelisted validators that currently hold no stake.
func mergeWithValidators(delegations []staking.Delegation, validators []string) []staking.Delegation {
	present := make(map[string]bool, len(delegations))
	for _, d := range delegations {
		present[d.Validator] = true
	}
	merged := append([]staking.Delegation(nil), delegations...)
	for _, v := range validators {
		if !present[v] {
			merged = append(merged, staking.Delegation{Validator: v})
		}
	}
	return merged
}

// computeUndelegations spreads toUnbond over the validators so that the
// remaining delegations land as close to their targets as possible.
func (h *Hub) computeUndelegations(toUnbond bn.Int, delegations []staking.Delegation, validators []string) ([]staking.Delegation, error) {
	staked := totalDelegated(delegations)
	targets, err := h.delegationTargets(staked.SubSaturate(toUnbond), validators)
	if err != nil {
		return nil, err
	}

	var out []staking.Delegation
	available := toUnbond
	for _, d := range mergeWithValidators(delegations, validators) {
		target := targets.targetFor(d.Validator)
		amount := d.Amount.SubSaturate(target)
		amount = bn.Min(amount, available)
		available = available.Sub(amount)

		if !amount.IsZero() {
			out = append(out, staking.Delegation{Validator: d.Validator, Amount: amount})
		}
		if available.IsZero() {
			break
		}
	}
	return out, nil
}

// computeRedelegationsForRemoval moves the removed validator's stake to
// the survivors, filling whoever is furthest below target first in walk
// order.
func (h *Hub) computeRedelegationsForRemoval(removed staking.Delegation, delegations []staking.Delegation, validators []string) ([]Redelegation, error) {
	staked := totalDelegated(delegations)
	targets, err := h.delegationTargets(staked.Add(removed.Amount), validators)
	if err != nil {
		return nil, err
	}

	var out []Redelegation
	available := removed.Amount
	for _, d := range mergeWithValidators(delegations, validators) {
		target := targets.targetFor(d.Validator)
		amount := target.SubSaturate(d.Amount)
		amount = bn.Min(amount, available)
		available = available.Sub(amount)

		if !amount.IsZero() {
			out = append(out, Redelegation{Src: removed.Validator, Dst: d.Validator, Amount: amount})
		}
		if available.IsZero() {
			break
		}
	}
	return out, nil
}

// computeRedelegationsForRebalancing matches over-target validators with
// under-target ones, greedily moving min(src surplus, dst deficit).
func (h *Hub) computeRedelegationsForRebalancing(delegations []staking.Delegation, validators []string) ([]Redelegation, error) {
	staked := totalDelegated(delegations)
	targets, err := h.delegationTargets(staked, validators)
	if err != nil {
		return nil, err
	}

	var src, dst []staking.Delegation
	for _, d := range mergeWithValidators(delegations, validators) {
		target := targets.targetFor(d.Validator)
		switch d.Amount.Cmp(target) {
		case 1:
			src = append(src, staking.Delegation{Validator: d.Validator, Amount: d.Amount.Sub(target)})
		case -1:
			dst = append(dst, staking.Delegation{Validator: d.Validator, Amount: target.Sub(d.Amount)})
		}
	}

	var out []Redelegation
	for len(src) > 0 && len(dst) > 0 {
		amount := bn.Min(src[0].Amount, dst[0].Amount)
		out = append(out, Redelegation{Src: src[0].Validator, Dst: dst[0].Validator, Amount: amount})

		if src[0].Amount.Cmp(amount) == 0 {
			src = src[1:]
		} else {
			src[0].Amount = src[0].Amount.Sub(amount)
		}
		if dst[0].Amount.Cmp(amount) == 0 {
			dst = dst[1:]
		} else {
			dst[0].Amount = dst[0].Amount.Sub(amount)
		}
	}
	return out, nil
}
