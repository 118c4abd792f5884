// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package arbvault

import (
	"strings"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

// History items are keyed (user, id) so a user's requests are one
// prefix scan.
func userUnbondKey(user stakehub.Address, id uint64) []byte {
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

// calcPoolFee prices the early-exit fee. The factor is 1 for immediate
// withdrawals, decays linearly while unbonding and is 0 after release.
func calcPoolFee(fee FeeConfig, amount bn.Int, poolFeeFactor dec.Dec) bn.Int {
	return poolFeeFactor.Mul(fee.ImmediateWithdrawFee).MulInt(amount)
}

// Unbond burns the sender's LP shares. Immediate withdrawals pay the
// full pool fee and leave right away; otherwise the amount is locked
// for the unbond period and claimed later without pool fee.
func (v *Vault) Unbond(now uint64, sender stakehub.Address, lpAmount bn.Int, immediate bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	logger.Debug("unbond", "sender", sender, "lp", lpAmount, "immediate", immediate)

	if err := v.assertNotNested(); err != nil {
		return err
	}
	if lpAmount.IsZero() {
		return errs.Newf(errs.KindInvalidZeroAmount, "lp amount")
	}

	b, err := v.balances(now)
	if err != nil {
		return err
	}
	supply, err := v.lp.TotalSupply()
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return errs.Newf(errs.KindCantBeZero, "lp supply")
	}
	withdrawAmount := b.VaultTotal.MulDiv(lpAmount, supply)
	if withdrawAmount.IsZero() {
		return errs.Newf(errs.KindCantBeZero, "withdraw amount")
	}
	if err := v.lp.Burn(sender, lpAmount); err != nil {
		return err
	}
	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return err
	}
	protocolFee := feeConfig.WithdrawFee.MulInt(withdrawAmount)

	attrs := map[string]string{
		"sender":       sender.String(),
		"lp_burned":    lpAmount.String(),
		"total_amount": withdrawAmount.String(),
	}

	if immediate {
		if err := v.payout(now, sender, withdrawAmount, protocolFee, dec.One(), b, attrs); err != nil {
			return err
		}
	} else {
		period, _, err := v.unbondPeriod.Get()
		if err != nil {
			return err
		}
		if err := v.addToHistory(sender, UnbondHistory{
			StartTime:   now,
			ReleaseTime: now + period,
			AmountAsset: withdrawAmount,
			ProtocolFee: protocolFee,
		}); err != nil {
			return err
		}
		attrs["release_time"] = stakehub.FormatUint(now + period)
	}

	rate := rateAfterBurn(b, supply, lpAmount)
	if err := v.saveRate(now, rate); err != nil {
		return err
	}

	v.recorder.Record(now, "arbvault", "unbond_liquidity", attrs)
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "unbond_liquidity"})
	return nil
}

// rateAfterBurn reports the exchange rate with the burned shares and
// their claim removed. The pool fee of immediate withdrawals accretes to
// it later, when funds actually move.
func rateAfterBurn(b Balances, supply, burned bn.Int) dec.Dec {
	remaining := supply.Sub(burned)
	if remaining.IsZero() {
		return dec.One()
	}
	left := b.VaultTotal.SubSaturate(b.VaultTotal.MulDiv(burned, supply))
	return dec.FromIntRatio(left, remaining)
}

func (v *Vault) addToHistory(user stakehub.Address, item UnbondHistory) error {
	locked, _, err := v.locked.Get()
	if err != nil {
		return err
	}
	if err := v.locked.Set(locked.Add(item.AmountAsset)); err != nil {
		return err
	}
	id, _, err := v.unbondID.Get()
	if err != nil {
		return err
	}
	if err := v.history.Set(userUnbondKey(user, id), item); err != nil {
		return err
	}
	return v.unbondID.Set(id + 1)
}

// payout settles a withdrawal from pool cash: the protocol fee goes to
// the sink, the pool fee stays in the vault, the rest to the user.
func (v *Vault) payout(now uint64, user stakehub.Address, amount, protocolFee bn.Int, poolFeeFactor dec.Dec, b Balances, attrs map[string]string) error {
	if b.VaultAvailable.Cmp(amount) < 0 {
		return errs.Newf(errs.KindNotEnoughAssetsInPool, "available %s, need %s", b.VaultAvailable, amount)
	}
	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return err
	}
	poolFee := calcPoolFee(feeConfig, amount, poolFeeFactor)
	net := amount.SubSaturate(protocolFee).SubSaturate(poolFee)

	if err := v.bank.Send(v.addr, user, v.denom, net); err != nil {
		return err
	}
	if !protocolFee.IsZero() {
		if err := v.bank.Send(v.addr, feeConfig.FeeSink, v.denom, protocolFee); err != nil {
			return err
		}
	}

	attrs["withdraw_amount"] = net.String()
	attrs["protocol_fee"] = protocolFee.String()
	attrs["pool_fee"] = poolFee.String()
	return nil
}

// WithdrawImmediate settles one unbonding request before its release
// time, paying the pool fee pro rata to the time remaining.
func (v *Vault) WithdrawImmediate(now uint64, sender stakehub.Address, id uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := userUnbondKey(sender, id)
	item, ok, err := v.history.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.KindNothingToWithdraw, "request %d", id)
	}

	locked, _, err := v.locked.Get()
	if err != nil {
		return err
	}
	if err := v.locked.Set(locked.SubSaturate(item.AmountAsset)); err != nil {
		return err
	}
	if err := v.history.Delete(key); err != nil {
		return err
	}

	b, err := v.balances(now)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"sender": sender.String(),
		"id":     stakehub.FormatUint(id),
	}
	if err := v.payout(now, sender, item.AmountAsset, item.ProtocolFee, item.poolFeeFactor(now), b, attrs); err != nil {
		return err
	}

	v.recorder.Record(now, "arbvault", "withdraw_immediate", attrs)
	return nil
}

// WithdrawUnbonded settles every released unbonding request of the
// sender in one transfer.
func (v *Vault) WithdrawUnbonded(now uint64, sender stakehub.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	type claim struct {
		id   uint64
		item UnbondHistory
	}
	var claims []claim
	err := v.history.Iterate(prefixRange(sender.Bytes()), false, func(key []byte, item UnbondHistory) (bool, error) {
		if item.ReleaseTime <= now {
			id := store.ParseU64Key(key[stakehub.AddressLength:])
			claims = append(claims, claim{id, item})
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return errs.New(errs.KindNothingToWithdraw)
	}

	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return err
	}

	var total, fees bn.Int
	var ids []string
	for _, c := range claims {
		total = total.Add(c.item.AmountAsset)
		fees = fees.Add(c.item.ProtocolFee)
		ids = append(ids, stakehub.FormatUint(c.id))
		if err := v.history.Delete(userUnbondKey(sender, c.id)); err != nil {
			return err
		}
	}

	locked, _, err := v.locked.Get()
	if err != nil {
		return err
	}
	if err := v.locked.Set(locked.SubSaturate(total)); err != nil {
		return err
	}

	net := total.SubSaturate(fees)
	if err := v.bank.Send(v.addr, sender, v.denom, net); err != nil {
		return err
	}
	if !fees.IsZero() {
		if err := v.bank.Send(v.addr, feeConfig.FeeSink, v.denom, fees); err != nil {
			return err
		}
	}

	logger.Debug("withdrew unbonded", "sender", sender, "amount", net)
	v.recorder.Record(now, "arbvault", "withdraw_unbonded", map[string]string{
		"sender":          sender.String(),
		"ids":             strings.Join(ids, ","),
		"withdraw_amount": net.String(),
		"protocol_fee":    fees.String(),
	})
	return nil
}
