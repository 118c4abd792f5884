// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import (
	"strings"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

// Unbond requests are stored twice, keyed by (batch, user) and by
// (user, batch), so both query directions are a prefix scan.
func batchUserKey(id uint64, user stakehub.Address) []byte {
	return append(store.U64Key(id), user.Bytes()...)
}

func userBatchKey(user stakehub.Address, id uint64) []byte {
	return append(user.Bytes(), store.U64Key(id)...)
}

func prefixRange(prefix []byte) kv.Range {
	limit := append([]byte(nil), prefix...)
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			return kv.Range{Start: prefix, Limit: limit[: i+1 : i+1]}
		}
	}
	return kv.Range{Start: prefix}
}

// QueueUnbond burns-in-waiting: the sender's receipt tokens are moved to
// the hub and recorded against the pending batch for the receiver. The
// batch is submitted right away once its submit time has passed.
func (h *Hub) QueueUnbond(now uint64, sender, receiver stakehub.Address, shares bn.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("queue unbond", "sender", sender, "receiver", receiver, "shares", shares)

	if shares.IsZero() {
		return errs.New(errs.KindInvalidZeroAmount)
	}
	if err := h.stakeToken.Transfer(sender, h.addr, shares); err != nil {
		return err
	}

	pending, _, err := h.pending.Get()
	if err != nil {
		return err
	}
	pending.StakeToBurn = pending.StakeToBurn.Add(shares)
	if err := h.pending.Set(pending); err != nil {
		return err
	}

	existing, _, err := h.requestsByID.Get(batchUserKey(pending.ID, receiver))
	if err != nil {
		return err
	}
	total := existing.Add(shares)
	if err := h.requestsByID.Set(batchUserKey(pending.ID, receiver), total); err != nil {
		return err
	}
	if err := h.requestsByUser.Set(userBatchKey(receiver, pending.ID), total); err != nil {
		return err
	}

	startTime := stakehub.FormatUint(pending.EstUnbondStartTime)
	if now >= pending.EstUnbondStartTime {
		startTime = "immediate"
	}
	h.recorder.Record(now, "hub", "queue_unbond", map[string]string{
		"id":                    stakehub.FormatUint(pending.ID),
		"receiver":              receiver.String(),
		"ustake_to_burn":        shares.String(),
		"est_unbond_start_time": startTime,
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "queue_unbond"})

	if now >= pending.EstUnbondStartTime {
		return h.submitBatch(now)
	}
	return nil
}

// SubmitBatch seals the pending batch: undelegates the underlying,
// burns the queued receipt tokens and starts the unbonding clock.
func (h *Hub) SubmitBatch(now uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitBatch(now)
}

func (h *Hub) submitBatch(now uint64) error {
	pending, _, err := h.pending.Get()
	if err != nil {
		return err
	}
	if now < pending.EstUnbondStartTime {
		return errs.Newf(errs.KindSubmitBatchAfter, "%d", pending.EstUnbondStartTime)
	}
	if pending.StakeToBurn.IsZero() {
		// nothing queued, just roll the submit window forward
		pending.EstUnbondStartTime = now + h.epochPeriod
		return h.pending.Set(pending)
	}

	delegations, err := h.staking.Delegations()
	if err != nil {
		return err
	}
	supply, err := h.stakeToken.TotalSupply()
	if err != nil {
		return err
	}
	validators, err := h.validatorList()
	if err != nil {
		return err
	}

	toUnbond := computeUnbondAmount(supply, pending.StakeToBurn, delegations)
	undelegations, err := h.computeUndelegations(toUnbond, delegations, validators)
	if err != nil {
		return err
	}

	snapshot, err := h.balance()
	if err != nil {
		return err
	}
	for _, u := range undelegations {
		if err := h.staking.Undelegate(now, u.Validator, u.Amount); err != nil {
			return err
		}
	}
	if err := h.stakeToken.Burn(h.addr, pending.StakeToBurn); err != nil {
		return err
	}

	if err := h.batches.Set(store.U64Key(pending.ID), Batch{
		ID:               pending.ID,
		TotalShares:      pending.StakeToBurn,
		TokenUnclaimed:   toUnbond,
		EstUnbondEndTime: now + h.unbondPeriod,
	}); err != nil {
		return err
	}
	if err := h.pending.Set(PendingBatch{
		ID:                 pending.ID + 1,
		EstUnbondStartTime: now + h.epochPeriod,
	}); err != nil {
		return err
	}
	if err := h.checkReceivedCoin(now, snapshot); err != nil {
		return err
	}

	logger.Info("batch submitted", "id", pending.ID, "unbonded", toUnbond, "burned", pending.StakeToBurn)
	h.recorder.Record(now, "hub", "submit_batch", map[string]string{
		"id":             stakehub.FormatUint(pending.ID),
		"uluna_unbonded": toUnbond.String(),
		"ustake_burned":  pending.StakeToBurn.String(),
	})
	metricBatchCount().Add(1)
	return nil
}

// Reconcile settles all batches whose unbonding window has passed. When
// less cash arrived than the books expect, the shortfall is spread
// evenly over the affected batches; this models slashing losses.
func (h *Hub) Reconcile(now uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("reconcile")

	var batches []Batch
	err := h.batches.Iterate(kv.Range{}, false, func(_ []byte, b Batch) (bool, error) {
		if !b.Reconciled && now > b.EstUnbondEndTime {
			batches = append(batches, b)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	var expectedReceived bn.Int
	for _, b := range batches {
		expectedReceived = expectedReceived.Add(b.TokenUnclaimed)
	}
	if expectedReceived.IsZero() {
		return nil
	}

	unlocked, err := h.unlockedAmount(h.denom)
	if err != nil {
		return err
	}
	expected := expectedReceived.Add(unlocked)
	actual, err := h.balance()
	if err != nil {
		return err
	}

	var deducted bn.Int
	if actual.Cmp(expected) < 0 {
		deducted = expected.Sub(actual)
		count := bn.FromUint64(uint64(len(batches)))
		perBatch := deducted.Div(count)
		remainder := deducted.Sub(perBatch.Mul(count)).Uint64()

		for i := range batches {
			cut := perBatch
			if uint64(i) < remainder {
				cut = cut.Add(bn.FromUint64(1))
			}
			batches[i].TokenUnclaimed = batches[i].TokenUnclaimed.SubSaturate(cut)
		}
	}

	ids := make([]string, 0, len(batches))
	for i := range batches {
		batches[i].Reconciled = true
		if err := h.batches.Set(store.U64Key(batches[i].ID), batches[i]); err != nil {
			return err
		}
		ids = append(ids, stakehub.FormatUint(batches[i].ID))
	}

	logger.Info("reconciled", "ids", ids, "deducted", deducted)
	h.recorder.Record(now, "hub", "reconcile", map[string]string{
		"ids":            strings.Join(ids, ","),
		"uluna_deducted": deducted.String(),
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "reconcile"})
	return nil
}

// WithdrawUnbonded pays out every claim of the user whose batch has been
// reconciled and finished unbonding. Fails when nothing is withdrawable.
func (h *Hub) WithdrawUnbonded(now uint64, user, receiver stakehub.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("withdraw unbonded", "user", user)

	type claim struct {
		id     uint64
		shares bn.Int
	}
	var claims []claim
	err := h.requestsByUser.Iterate(prefixRange(user.Bytes()), false, func(key []byte, shares bn.Int) (bool, error) {
		claims = append(claims, claim{id: store.ParseU64Key(key[stakehub.AddressLength:]), shares: shares})
		return true, nil
	})
	if err != nil {
		return err
	}

	var total bn.Int
	var ids []string
	for _, c := range claims {
		batch, ok, err := h.batches.Get(store.U64Key(c.id))
		if err != nil {
			return err
		}
		if !ok || !batch.Reconciled || batch.EstUnbondEndTime >= now {
			continue
		}

		refund := batch.TokenUnclaimed.MulDiv(c.shares, batch.TotalShares)
		total = total.Add(refund)
		batch.TotalShares = batch.TotalShares.Sub(c.shares)
		batch.TokenUnclaimed = batch.TokenUnclaimed.Sub(refund)

		if batch.TotalShares.IsZero() {
			if err := h.batches.Delete(store.U64Key(c.id)); err != nil {
				return err
			}
		} else if err := h.batches.Set(store.U64Key(c.id), batch); err != nil {
			return err
		}
		if err := h.requestsByID.Delete(batchUserKey(c.id, user)); err != nil {
			return err
		}
		if err := h.requestsByUser.Delete(userBatchKey(user, c.id)); err != nil {
			return err
		}
		ids = append(ids, stakehub.FormatUint(c.id))
	}

	if total.IsZero() {
		return errs.Newf(errs.KindCantBeZero, "withdrawable amount")
	}
	if err := h.bank.Send(h.addr, receiver, h.denom, total); err != nil {
		return err
	}

	logger.Info("unbonded withdrawn", "user", user, "amount", total)
	h.recorder.Record(now, "hub", "withdraw_unbonded", map[string]string{
		"ids":            strings.Join(ids, ","),
		"user":           user.String(),
		"receiver":       receiver.String(),
		"uluna_refunded": total.String(),
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "withdraw_unbonded"})
	return nil
}
