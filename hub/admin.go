// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import (
	"fmt"
	"strings"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/staking"
)

// TuneDelegations refreshes the delegation goal from the planner. A
// uniform strategy needs no stored goal, so it clears any old one.
func (h *Hub) TuneDelegations(now uint64, sender stakehub.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("tune delegations", "sender", sender)

	if err := h.ownable.AssertOwner(sender); err != nil {
		return err
	}
	validators, err := h.validatorList()
	if err != nil {
		return err
	}
	strategy, err := h.loadStrategy()
	if err != nil {
		return err
	}

	wanted, persist, err := h.planner.WantedDelegations(now, validators, strategy)
	if err != nil {
		return err
	}

	attrs := map[string]string{}
	if persist {
		if err := h.goal.Set(wanted); err != nil {
			return err
		}
		goals := make([]string, 0, len(wanted.Shares))
		for _, s := range wanted.Shares {
			goals = append(goals, fmt.Sprintf("%s=%s", s.Validator, s.Share))
		}
		attrs["goal_delegation"] = strings.Join(goals, ",")
	} else if err := h.goal.Delete(); err != nil {
		return err
	}

	logger.Info("delegations tuned", "persisted", persist, "shares", len(wanted.Shares))
	h.recorder.Record(now, "hub", "tune_delegations", attrs)
	return nil
}

// Rebalance redelegates stake until every validator sits at its target.
// Moves at or below minRedelegation are skipped to bound message count.
func (h *Hub) Rebalance(now uint64, sender stakehub.Address, minRedelegation bn.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("rebalance", "sender", sender)

	if err := h.ownable.AssertOwner(sender); err != nil {
		return err
	}
	delegations, err := h.staking.Delegations()
	if err != nil {
		return err
	}
	validators, err := h.validatorList()
	if err != nil {
		return err
	}

	all, err := h.computeRedelegationsForRebalancing(delegations, validators)
	if err != nil {
		return err
	}
	redelegations := all[:0]
	for _, r := range all {
		if r.Amount.Cmp(minRedelegation) > 0 {
			redelegations = append(redelegations, r)
		}
	}

	var moved bn.Int
	if len(redelegations) > 0 {
		snapshot, err := h.balance()
		if err != nil {
			return err
		}
		for _, r := range redelegations {
			if err := h.staking.Redelegate(r.Src, r.Dst, r.Amount); err != nil {
				return err
			}
			moved = moved.Add(r.Amount)
		}
		if err := h.checkReceivedCoin(now, snapshot); err != nil {
			return err
		}
	}

	logger.Info("rebalanced", "moved", moved, "moves", len(redelegations))
	h.recorder.Record(now, "hub", "rebalance", map[string]string{
		"uluna_moved": moved.String(),
	})
	return nil
}

// AddValidator whitelists a validator that exists on chain.
func (h *Hub) AddValidator(now uint64, sender stakehub.Address, validator string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ownable.AssertOwner(sender); err != nil {
		return err
	}
	if err := h.assertValidatorExists(validator); err != nil {
		return err
	}
	validators, err := h.validatorList()
	if err != nil {
		return err
	}
	for _, v := range validators {
		if v == validator {
			return errs.Newf(errs.KindValidatorWhitelisted, "%s", validator)
		}
	}
	if err := h.validators.Set(append(validators, validator)); err != nil {
		return err
	}

	logger.Info("validator added", "validator", validator)
	h.recorder.Record(now, "hub", "add_validator", map[string]string{
		"validator": validator,
	})
	return nil
}

// RemoveValidator drops a validator from the whitelist. Under the
// uniform strategy its stake is redelegated to the survivors right away;
// under gauges the stake stays until the next tune-and-rebalance so that
// undelegation targets remain consistent.
func (h *Hub) RemoveValidator(now uint64, sender stakehub.Address, validator string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ownable.AssertOwner(sender); err != nil {
		return err
	}
	validators, err := h.validatorList()
	if err != nil {
		return err
	}
	kept := validators[:0]
	for _, v := range validators {
		if v != validator {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(validators) {
		return errs.Newf(errs.KindValidatorNotWhitelisted, "%s", validator)
	}
	// bonds and uniform targets need at least one validator
	if len(kept) == 0 {
		return errs.Newf(errs.KindCantBeZero, "cannot remove the last validator %s", validator)
	}
	if err := h.validators.Set(kept); err != nil {
		return err
	}

	strategy, err := h.loadStrategy()
	if err != nil {
		return err
	}
	if strategy.Mode == planner.ModeUniform {
		if err := h.redelegateAway(now, validator, kept); err != nil {
			return err
		}
	}

	logger.Info("validator removed", "validator", validator)
	h.recorder.Record(now, "hub", "remove_validator", map[string]string{
		"validator": validator,
	})
	return nil
}

func (h *Hub) redelegateAway(now uint64, validator string, survivors []string) error {
	delegations, err := h.staking.Delegations()
	if err != nil {
		return err
	}
	removed := staking.Delegation{Validator: validator}
	kept := delegations[:0]
	for _, d := range delegations {
		if d.Validator == validator {
			removed = d
		} else {
			kept = append(kept, d)
		}
	}
	if removed.Amount.IsZero() {
		return nil
	}

	redelegations, err := h.computeRedelegationsForRemoval(removed, kept, survivors)
	if err != nil {
		return err
	}
	if len(redelegations) == 0 {
		return nil
	}

	snapshot, err := h.balance()
	if err != nil {
		return err
	}
	for _, r := range redelegations {
		if err := h.staking.Redelegate(r.Src, r.Dst, r.Amount); err != nil {
			return err
		}
	}
	return h.checkReceivedCoin(now, snapshot)
}

// UpdateConfig changes the fee routing, strategy or donations flag.
// Nil fields stay untouched.
func (h *Hub) UpdateConfig(now uint64, sender stakehub.Address, feeSink *stakehub.Address, rewardFee *dec.Dec, strategy *planner.Strategy, allowDonations *bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ownable.AssertOwner(sender); err != nil {
		return err
	}

	if feeSink != nil || rewardFee != nil {
		feeConfig, _, err := h.feeConfig.Get()
		if err != nil {
			return err
		}
		if feeSink != nil {
			feeConfig.FeeSink = *feeSink
		}
		if rewardFee != nil {
			if rewardFee.Cmp(rewardFeeCap) > 0 {
				return errs.New(errs.KindProtocolRewardFeeTooHigh)
			}
			feeConfig.ProtocolRewardFee = *rewardFee
		}
		if err := h.feeConfig.Set(feeConfig); err != nil {
			return err
		}
	}
	if strategy != nil {
		if err := strategy.Validate(); err != nil {
			return err
		}
		if err := h.strategy.Set(*strategy); err != nil {
			return err
		}
	}
	if allowDonations != nil {
		if err := h.allowDonations.Set(*allowDonations); err != nil {
			return err
		}
	}

	logger.Info("config updated")
	h.recorder.Record(now, "hub", "update_config", map[string]string{})
	return nil
}

// ProposeNewOwner stages an ownership handover.
func (h *Hub) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (h *Hub) DropOwnershipProposal(sender stakehub.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (h *Hub) ClaimOwnership(now uint64, sender stakehub.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ownable.Claim(now, sender)
}
