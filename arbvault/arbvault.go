// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package arbvault implements the arbitrage vault. Liquidity providers
// deposit the underlying token for LP shares; whitelisted executors
// borrow pool cash for an atomic arbitrage whose profit is asserted on
// return, with the received derivative queued straight into unbonding.
// A utilisation curve caps how deep each profit tier may draw the pool.
package arbvault

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/log"
	"github.com/stakehub-labs/stakehub/ownable"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
	"github.com/stakehub-labs/stakehub/token"
)

var logger = log.WithContext("pkg", "arbvault")

const secondsPerDay uint64 = 86400

// minWantedProfit is the lowest profit tier executors may target.
var minWantedProfit = dec.MustParse("0.005")

// slippageTolerance lets realised profit fall 10% short of the wanted
// tier before the arbitrage is rejected.
var slippageTolerance = dec.MustParse("0.9")

// UtilizationStep maps a profit tier to the pool share it may draw.
type UtilizationStep struct {
	WantedProfit  dec.Dec `json:"wantedProfit"`
	TakeableShare dec.Dec `json:"takeableShare"`
}

// FeeConfig routes the vault's fees.
type FeeConfig struct {
	FeeSink              stakehub.Address `json:"feeSink"`
	PerformanceFee       dec.Dec          `json:"performanceFee"`
	WithdrawFee          dec.Dec          `json:"withdrawFee"`
	ImmediateWithdrawFee dec.Dec          `json:"immediateWithdrawFee"`
}

func (f FeeConfig) validate() error {
	one := dec.One()
	if f.PerformanceFee.Cmp(one) > 0 || f.WithdrawFee.Cmp(one) > 0 || f.ImmediateWithdrawFee.Cmp(one) > 0 {
		return errs.Newf(errs.KindFeeTooHigh, "fee above 1")
	}
	return nil
}

// Config carries the instantiation parameters.
type Config struct {
	Owner        stakehub.Address
	UToken       string
	UnbondPeriod uint64
	Steps        []UtilizationStep
	FeeConfig    FeeConfig
	Whitelist    []stakehub.Address
}

// balanceCheckpoint is the executing latch. Its presence marks an
// arbitrage in flight; the snapshot is what the profit is measured
// against.
type balanceCheckpoint struct {
	VaultAvailable bn.Int `json:"vaultAvailable"`
	TVLUToken      bn.Int `json:"tvlUtoken"`
}

// UnbondHistory is one LP-side unbonding request. The protocol fee is
// priced at unbond time; later fee config changes do not reprice
// already-queued requests.
type UnbondHistory struct {
	StartTime   uint64 `json:"startTime"`
	ReleaseTime uint64 `json:"releaseTime"`
	AmountAsset bn.Int `json:"amountAsset"`
	ProtocolFee bn.Int `json:"withdrawProtocolFee"`
}

// poolFeeFactor decays linearly from 1 at start to 0 at release.
func (u UnbondHistory) poolFeeFactor(now uint64) dec.Dec {
	if now >= u.ReleaseTime {
		return dec.Zero()
	}
	progress := dec.FromRatio(now-u.StartTime, u.ReleaseTime-u.StartTime)
	return dec.One().Sub(progress)
}

// ExchangeHistory is one daily exchange rate sample.
type ExchangeHistory struct {
	TimeS uint64  `json:"timeS"`
	Rate  dec.Dec `json:"exchangeRate"`
}

// Balances is the vault's asset breakdown in the underlying token.
type Balances struct {
	TVLUToken             bn.Int `json:"tvlUtoken"`
	LSDUnbonding          bn.Int `json:"lsdUnbonding"`
	LSDWithdrawable       bn.Int `json:"lsdWithdrawable"`
	VaultTotal            bn.Int `json:"vaultTotal"`
	VaultAvailable        bn.Int `json:"vaultAvailable"`
	VaultTakeable         bn.Int `json:"vaultTakeable"`
	LockedUserWithdrawals bn.Int `json:"lockedUserWithdrawals"`
}

// Executor runs the borrower side of an arbitrage. Execute is called
// with the borrowed funds already transferred to Address.
type Executor interface {
	Address() stakehub.Address
	Execute(now uint64, funds bn.Int) error
}

// Vault is the arbitrage vault engine.
type Vault struct {
	mu sync.Mutex

	addr     stakehub.Address
	denom    string
	bank     token.Bank
	lp       token.Ledger
	lsds     []LSD
	recorder eventdb.Recorder

	steps        *store.Item[[]UtilizationStep]
	unbondPeriod *store.Item[uint64]
	feeConfig    *store.Item[FeeConfig]
	whitelist    *store.Item[[]stakehub.Address]
	locked       *store.Item[bn.Int]
	checkpoint   *store.Item[balanceCheckpoint]
	unbondID     *store.Item[uint64]
	history      *store.Mapping[UnbondHistory]
	rates        *store.Mapping[ExchangeHistory]
	ownable      *ownable.Ownable
}

// New creates the vault over the given store partition, seeding initial
// state from cfg when the store is fresh.
func New(s kv.Store, bank token.Bank, lp token.Ledger, lsds []LSD, cfg Config, recorder eventdb.Recorder) (*Vault, error) {
	if cfg.UnbondPeriod == 0 {
		return nil, errs.Newf(errs.KindCantBeZero, "unbond period")
	}
	if err := validateSteps(cfg.Steps); err != nil {
		return nil, err
	}
	if err := cfg.FeeConfig.validate(); err != nil {
		return nil, err
	}
	if err := assertUniqueLSDs(lsds); err != nil {
		return nil, err
	}

	own, err := ownable.New(s, cfg.Owner)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		addr:         stakehub.NamedAddress("arb-vault"),
		denom:        cfg.UToken,
		bank:         bank,
		lp:           lp,
		lsds:         lsds,
		recorder:     recorder,
		steps:        store.NewItem[[]UtilizationStep](s, "utilization-steps"),
		unbondPeriod: store.NewItem[uint64](s, "unbond-period"),
		feeConfig:    store.NewItem[FeeConfig](s, "fee-config"),
		whitelist:    store.NewItem[[]stakehub.Address](s, "whitelist"),
		locked:       store.NewItem[bn.Int](s, "balance-locked"),
		checkpoint:   store.NewItem[balanceCheckpoint](s, "balance-checkpoint"),
		unbondID:     store.NewItem[uint64](s, "unbond-id"),
		history:      store.NewMapping[UnbondHistory](s, "unbond-history"),
		rates:        store.NewMapping[ExchangeHistory](s, "exchange-history"),
		ownable:      own,
	}
	if err := v.seed(cfg); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) seed(cfg Config) error {
	if _, ok, err := v.unbondID.Get(); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := v.steps.Set(cfg.Steps); err != nil {
		return err
	}
	if err := v.unbondPeriod.Set(cfg.UnbondPeriod); err != nil {
		return err
	}
	if err := v.feeConfig.Set(cfg.FeeConfig); err != nil {
		return err
	}
	if err := v.whitelist.Set(cfg.Whitelist); err != nil {
		return err
	}
	if err := v.locked.Set(bn.Int{}); err != nil {
		return err
	}
	return v.unbondID.Set(0)
}

func validateSteps(steps []UtilizationStep) error {
	if len(steps) == 0 {
		return errs.Newf(errs.KindCantBeZero, "utilization steps")
	}
	one := dec.One()
	for i, s := range steps {
		if s.WantedProfit.Cmp(minWantedProfit) < 0 {
			return errs.Newf(errs.KindNotSupportedProfitStep, "%s below minimum", s.WantedProfit)
		}
		if s.TakeableShare.Cmp(one) > 0 {
			return errs.Newf(errs.KindNotSupportedProfitStep, "takeable share above 1")
		}
		if i > 0 {
			if s.WantedProfit.Cmp(steps[i-1].WantedProfit) <= 0 {
				return errs.Newf(errs.KindNotSupportedProfitStep, "profit steps not ascending")
			}
			if s.TakeableShare.Cmp(steps[i-1].TakeableShare) < 0 {
				return errs.Newf(errs.KindNotSupportedProfitStep, "takeable shares not increasing")
			}
		}
	}
	if steps[len(steps)-1].TakeableShare.Cmp(one) != 0 {
		return errs.Newf(errs.KindNotSupportedProfitStep, "last takeable share must be 1")
	}
	return nil
}

func assertUniqueLSDs(lsds []LSD) error {
	seen := make(map[string]bool, len(lsds))
	for _, l := range lsds {
		if seen[l.Name()] {
			return errs.Newf(errs.KindDuplicatedPools, "%s", l.Name())
		}
		seen[l.Name()] = true
	}
	return nil
}

// Address returns the account the vault holds funds under.
func (v *Vault) Address() stakehub.Address {
	return v.addr
}

func (v *Vault) assertNotNested() error {
	_, ok, err := v.checkpoint.Get()
	if err != nil {
		return err
	}
	if ok {
		return errs.New(errs.KindAlreadyExecuting)
	}
	return nil
}

func (v *Vault) assertNested() (balanceCheckpoint, error) {
	cp, ok, err := v.checkpoint.Get()
	if err != nil {
		return balanceCheckpoint{}, err
	}
	if !ok {
		return balanceCheckpoint{}, errs.New(errs.KindNotExecuting)
	}
	return cp, nil
}

func (v *Vault) assertWhitelisted(sender stakehub.Address) error {
	list, _, err := v.whitelist.Get()
	if err != nil {
		return err
	}
	for _, a := range list {
		if a == sender {
			return nil
		}
	}
	return errs.Newf(errs.KindNotWhitelisted, "%s", sender)
}

// balances assembles the asset breakdown from pool cash, derivative
// claims and the locked user withdrawals.
func (v *Vault) balances(now uint64) (Balances, error) {
	available, err := v.bank.Balance(v.addr, v.denom)
	if err != nil {
		return Balances{}, err
	}
	locked, _, err := v.locked.Get()
	if err != nil {
		return Balances{}, err
	}

	var unbonding, withdrawable bn.Int
	for _, l := range v.lsds {
		u, err := l.Unbonding(now, v.addr)
		if err != nil {
			return Balances{}, err
		}
		w, err := l.Withdrawable(now, v.addr)
		if err != nil {
			return Balances{}, err
		}
		unbonding = unbonding.Add(u)
		withdrawable = withdrawable.Add(w)
	}

	tvl := available.Add(unbonding).Add(withdrawable)
	return Balances{
		TVLUToken:             tvl,
		LSDUnbonding:          unbonding,
		LSDWithdrawable:       withdrawable,
		VaultTotal:            tvl.SubSaturate(locked),
		VaultAvailable:        available,
		VaultTakeable:         available.SubSaturate(locked),
		LockedUserWithdrawals: locked,
	}, nil
}

// takeableForProfit caps the executor draw so the pool cannot be pushed
// below (1 - share) of TVL at the given tier.
func (v *Vault) takeableForProfit(b Balances, wantedProfit dec.Dec) (bn.Int, error) {
	steps, _, err := v.steps.Get()
	if err != nil {
		return bn.Int{}, err
	}
	for _, s := range steps {
		if s.WantedProfit.Cmp(wantedProfit) == 0 {
			ceiling := s.TakeableShare.MulInt(b.TVLUToken).Add(b.VaultTakeable)
			return ceiling.SubSaturate(b.TVLUToken), nil
		}
	}
	return bn.Int{}, errs.Newf(errs.KindNotSupportedProfitStep, "%s", wantedProfit)
}

func (v *Vault) lsd(name string) (LSD, error) {
	for _, l := range v.lsds {
		if l.Name() == name {
			return l, nil
		}
	}
	return nil, errs.Newf(errs.KindAssetUnknown, "%s", name)
}

// saveRate keeps one exchange rate sample per day.
func (v *Vault) saveRate(now uint64, rate dec.Dec) error {
	return v.rates.Set(store.U64Key(now/secondsPerDay), ExchangeHistory{TimeS: now, Rate: rate})
}

// ProvideLiquidity deposits the underlying token for LP shares, minted
// at the vault exchange rate before the deposit.
func (v *Vault) ProvideLiquidity(now uint64, sender stakehub.Address, amount bn.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertNotNested(); err != nil {
		return err
	}
	if amount.IsZero() {
		return errs.Newf(errs.KindInvalidZeroAmount, "deposit")
	}
	if err := v.bank.Send(sender, v.addr, v.denom, amount); err != nil {
		return err
	}

	b, err := v.balances(now)
	if err != nil {
		return err
	}
	totalBefore := b.VaultTotal.SubSaturate(amount)

	supply, err := v.lp.TotalSupply()
	if err != nil {
		return err
	}
	shares := amount
	if !supply.IsZero() && !totalBefore.IsZero() {
		shares = amount.MulDiv(supply, totalBefore)
	}
	if err := v.lp.Mint(sender, shares); err != nil {
		return err
	}

	rate := dec.FromIntRatio(b.VaultTotal, supply.Add(shares))
	if err := v.saveRate(now, rate); err != nil {
		return err
	}

	logger.Debug("liquidity provided", "sender", sender, "amount", amount, "shares", shares)
	v.recorder.Record(now, "arbvault", "provide_liquidity", map[string]string{
		"sender":        sender.String(),
		"amount":        amount.String(),
		"shares":        shares.String(),
		"exchange_rate": rate.String(),
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "provide_liquidity"})
	return nil
}

// ExecuteArbitrage lends pool cash to the executor and asserts the
// profit when it returns. The received derivative is queued into
// unbonding in the same call so the executor cannot leave unredeemed
// balances behind.
func (v *Vault) ExecuteArbitrage(now uint64, sender stakehub.Address, executor Executor, funds bn.Int, resultToken string, wantedProfit dec.Dec) error {
	v.mu.Lock()

	if err := v.prepareArbitrage(now, sender, funds, resultToken, wantedProfit, executor.Address()); err != nil {
		v.mu.Unlock()
		return err
	}

	// executor-controlled code runs without the engine lock; the
	// checkpoint latch keeps every mutating entry point out until the
	// result is asserted
	v.mu.Unlock()
	execErr := executor.Execute(now, funds)
	v.mu.Lock()
	defer v.mu.Unlock()

	if execErr != nil {
		return execErr
	}
	return v.assertResult(now, resultToken, wantedProfit)
}

func (v *Vault) prepareArbitrage(now uint64, sender stakehub.Address, funds bn.Int, resultToken string, wantedProfit dec.Dec, executorAddr stakehub.Address) error {
	if err := v.assertWhitelisted(sender); err != nil {
		return err
	}
	if err := v.assertNotNested(); err != nil {
		return err
	}
	if wantedProfit.Cmp(minWantedProfit) < 0 {
		return errs.Newf(errs.KindNotEnoughProfit, "wanted profit %s below minimum", wantedProfit)
	}
	if funds.IsZero() {
		return errs.Newf(errs.KindInvalidZeroAmount, "funds")
	}
	if _, err := v.lsd(resultToken); err != nil {
		return err
	}

	// outstanding claims must be collected first so the profit baseline
	// is not polluted by previous arbitrages
	for _, l := range v.lsds {
		w, err := l.Withdrawable(now, v.addr)
		if err != nil {
			return err
		}
		if !w.IsZero() {
			return errs.Newf(errs.KindWithdrawBeforeExecute, "%s has withdrawable claims", l.Name())
		}
	}

	b, err := v.balances(now)
	if err != nil {
		return err
	}
	takeable, err := v.takeableForProfit(b, wantedProfit)
	if err != nil {
		return err
	}
	if takeable.Cmp(funds) < 0 {
		return errs.Newf(errs.KindNotEnoughFundsTakeable, "takeable %s, wanted %s", takeable, funds)
	}

	if err := v.checkpoint.Set(balanceCheckpoint{
		VaultAvailable: b.VaultAvailable,
		TVLUToken:      b.TVLUToken,
	}); err != nil {
		return err
	}
	return v.bank.Send(v.addr, executorAddr, v.denom, funds)
}

// assertResult verifies the arbitrage outcome against the checkpoint,
// takes the performance fee and queues the received derivative into
// unbonding.
func (v *Vault) assertResult(now uint64, resultToken string, wantedProfit dec.Dec) error {
	cp, err := v.assertNested()
	if err != nil {
		return err
	}
	lsd, err := v.lsd(resultToken)
	if err != nil {
		return err
	}

	b, err := v.balances(now)
	if err != nil {
		return err
	}
	supply, err := v.lp.TotalSupply()
	if err != nil {
		return err
	}

	xbalance, err := lsd.Balance(v.addr)
	if err != nil {
		return err
	}
	if xbalance.IsZero() {
		return errs.New(errs.KindNothingToUnbond)
	}
	xfactor, err := lsd.ExchangeRate()
	if err != nil {
		return err
	}
	xvalue := xfactor.MulInt(xbalance)

	newValue := b.TVLUToken.Add(xvalue)
	if newValue.Cmp(cp.TVLUToken) < 0 {
		return errs.Newf(errs.KindNotEnoughProfit, "value decreased")
	}
	profit := newValue.Sub(cp.TVLUToken)
	used := cp.VaultAvailable.SubSaturate(b.VaultAvailable)
	if used.IsZero() {
		return errs.Newf(errs.KindNotEnoughProfit, "no funds used")
	}

	profitPct := dec.FromIntRatio(profit, used)
	minPct := wantedProfit.Mul(slippageTolerance)
	if profitPct.Cmp(minPct) < 0 {
		return errs.Newf(errs.KindNotEnoughProfit, "profit %s below %s", profitPct, minPct)
	}
	if b.VaultAvailable.Cmp(b.LockedUserWithdrawals) < 0 {
		return errs.Newf(errs.KindNotEnoughFundsTakeable, "locked balance was taken")
	}

	feeConfig, _, err := v.feeConfig.Get()
	if err != nil {
		return err
	}
	fee := feeConfig.PerformanceFee.MulInt(profit)
	unbondX := xbalance

	attrs := map[string]string{
		"type":         lsd.Name(),
		"old_value":    cp.TVLUToken.String(),
		"new_value":    newValue.String(),
		"used_balance": used.String(),
		"profit":       profit.String(),
		"xfactor":      xfactor.String(),
	}
	if b.VaultTakeable.Cmp(fee) >= 0 {
		// fee in the underlying when the pool can spare it
		if err := v.bank.Send(v.addr, feeConfig.FeeSink, v.denom, fee); err != nil {
			return err
		}
		attrs["fee_amount"] = fee.String()
	} else {
		feeX := dec.FromInt(fee).Div(xfactor).Floor()
		unbondX = unbondX.SubSaturate(feeX)
		if err := lsd.Transfer(v.addr, feeConfig.FeeSink, feeX); err != nil {
			return err
		}
		attrs["fee_xamount"] = feeX.String()
	}

	if err := lsd.QueueUnbond(now, v.addr, unbondX); err != nil {
		return err
	}
	if err := v.checkpoint.Delete(); err != nil {
		return err
	}

	// rebuild balances so the sample counts the freshly queued unbonding
	after, err := v.balances(now)
	if err != nil {
		return err
	}
	rate := dec.One()
	if !supply.IsZero() {
		rate = dec.FromIntRatio(after.VaultTotal, supply)
	}
	if err := v.saveRate(now, rate); err != nil {
		return err
	}
	attrs["exchange_rate"] = rate.String()

	logger.Info("arbitrage asserted", "type", lsd.Name(), "profit", profit, "used", used)
	v.recorder.Record(now, "arbvault", "assert_result", attrs)
	metricExecutionCount().Add(1)
	return nil
}

// WithdrawFromLiquidStaking claims every derivative's withdrawable
// amount back into pool cash.
func (v *Vault) WithdrawFromLiquidStaking(now uint64, sender stakehub.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertWhitelisted(sender); err != nil {
		return err
	}

	attrs := map[string]string{}
	for _, l := range v.lsds {
		w, err := l.Withdrawable(now, v.addr)
		if err != nil {
			return err
		}
		if w.IsZero() {
			continue
		}
		if err := l.Withdraw(now, v.addr); err != nil {
			return err
		}
		attrs[l.Name()] = w.String()
	}
	if len(attrs) == 0 {
		return errs.New(errs.KindNoWithdrawableAsset)
	}

	logger.Debug("withdrew from liquid staking", "claims", len(attrs))
	v.recorder.Record(now, "arbvault", "withdraw_liquidity", attrs)
	return nil
}

// ConfigUpdate carries the mutable configuration. Nil or empty fields
// stay untouched.
type ConfigUpdate struct {
	Steps           []UtilizationStep
	UnbondPeriod    *uint64
	FeeConfig       *FeeConfig
	SetWhitelist    []stakehub.Address
	RemoveWhitelist bool
	AddLSDs         []LSD
}

// UpdateConfig applies an owner change to the vault configuration.
func (v *Vault) UpdateConfig(now uint64, sender stakehub.Address, upd ConfigUpdate) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ownable.AssertOwner(sender); err != nil {
		return err
	}

	if upd.Steps != nil {
		if err := validateSteps(upd.Steps); err != nil {
			return err
		}
		if err := v.steps.Set(upd.Steps); err != nil {
			return err
		}
	}
	if upd.UnbondPeriod != nil {
		if *upd.UnbondPeriod == 0 {
			return errs.Newf(errs.KindCantBeZero, "unbond period")
		}
		if err := v.unbondPeriod.Set(*upd.UnbondPeriod); err != nil {
			return err
		}
	}
	if upd.FeeConfig != nil {
		if err := upd.FeeConfig.validate(); err != nil {
			return err
		}
		if err := v.feeConfig.Set(*upd.FeeConfig); err != nil {
			return err
		}
	}
	if upd.RemoveWhitelist {
		if err := v.whitelist.Set(nil); err != nil {
			return err
		}
	} else if upd.SetWhitelist != nil {
		if err := v.whitelist.Set(upd.SetWhitelist); err != nil {
			return err
		}
	}
	if len(upd.AddLSDs) > 0 {
		merged := append(append([]LSD(nil), v.lsds...), upd.AddLSDs...)
		if err := assertUniqueLSDs(merged); err != nil {
			return err
		}
		v.lsds = merged
	}

	logger.Info("config updated", "sender", sender)
	v.recorder.Record(now, "arbvault", "update_config", nil)
	return nil
}

// ProposeNewOwner stages an ownership handover.
func (v *Vault) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (v *Vault) DropOwnershipProposal(sender stakehub.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (v *Vault) ClaimOwnership(now uint64, sender stakehub.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownable.Claim(now, sender)
}
