// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package extractor implements the yield extractor, a thin wrapper
// around the hub receipt token. It skims a configured fraction of the
// exchange-rate appreciation into a harvestable bucket; depositors hold
// LP shares over the remaining, non-extracted stake.
package extractor

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

var logger = log.WithContext("pkg", "extractor")

// RateSource reports the stake token's exchange rate in the underlying.
// The hub satisfies this.
type RateSource interface {
	ExchangeRate() (dec.Dec, error)
}

// Config carries the instantiation parameters.
type Config struct {
	Owner stakehub.Address
	// YieldSink receives the harvested stake.
	YieldSink stakehub.Address
	// Fraction of the yield to extract, between 0 and 1.
	YieldExtractFraction dec.Dec
}

type extractParams struct {
	YieldSink            stakehub.Address `json:"yieldSink"`
	YieldExtractFraction dec.Dec          `json:"yieldExtractFraction"`
}

func (p extractParams) validate() error {
	if p.YieldExtractFraction.Cmp(dec.One()) > 0 {
		return errs.Newf(errs.KindFeeTooHigh, "yield extract fraction above 1")
	}
	return nil
}

// Extractor is the yield extractor engine.
type Extractor struct {
	mu sync.Mutex

	addr     stakehub.Address
	stake    token.Ledger
	lp       token.Ledger
	rates    RateSource
	recorder eventdb.Recorder

	params    *store.Item[extractParams]
	extracted *store.Item[bn.Int]
	harvested *store.Item[bn.Int]
	lastRate  *store.Item[dec.Dec]
	ownable   *ownable.Ownable
}

// New creates the extractor over the given store partition, seeding
// initial state from cfg when the store is fresh.
func New(s kv.Store, stake, lp token.Ledger, rates RateSource, cfg Config, recorder eventdb.Recorder) (*Extractor, error) {
	params := extractParams{
		YieldSink:            cfg.YieldSink,
		YieldExtractFraction: cfg.YieldExtractFraction,
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	own, err := ownable.New(s, cfg.Owner)
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		addr:      stakehub.NamedAddress("yield-extractor"),
		stake:     stake,
		lp:        lp,
		rates:     rates,
		recorder:  recorder,
		params:    store.NewItem[extractParams](s, "extract-params"),
		extracted: store.NewItem[bn.Int](s, "stake-extracted"),
		harvested: store.NewItem[bn.Int](s, "stake-harvested"),
		lastRate:  store.NewItem[dec.Dec](s, "last-exchange-rate"),
		ownable:   own,
	}
	if _, ok, err := e.params.Get(); err != nil {
		return nil, err
	} else if ok {
		return e, nil
	}
	if err := e.params.Set(params); err != nil {
		return nil, err
	}
	if err := e.extracted.Set(bn.Int{}); err != nil {
		return nil, err
	}
	if err := e.harvested.Set(bn.Int{}); err != nil {
		return nil, err
	}
	if err := e.lastRate.Set(dec.Zero()); err != nil {
		return nil, err
	}
	return e, nil
}

// Address returns the account the extractor holds stake under.
func (e *Extractor) Address() stakehub.Address {
	return e.addr
}

// extract skims the rate appreciation since the last observation into
// the extracted bucket and returns the stake available to LP holders.
// offset excludes a just-received deposit from the skim base. Rate
// decreases are ignored; nothing is extracted until the rate recovers.
func (e *Extractor) extract(offset bn.Int) (bn.Int, error) {
	params, _, err := e.params.Get()
	if err != nil {
		return bn.Int{}, err
	}
	extracted, _, err := e.extracted.Get()
	if err != nil {
		return bn.Int{}, err
	}
	last, _, err := e.lastRate.Get()
	if err != nil {
		return bn.Int{}, err
	}
	current, err := e.rates.ExchangeRate()
	if err != nil {
		return bn.Int{}, err
	}

	balance, err := e.stake.Balance(e.addr)
	if err != nil {
		return bn.Int{}, err
	}
	balance = balance.SubSaturate(offset)
	available := balance.SubSaturate(extracted)

	if current.Cmp(last) <= 0 {
		return available, nil
	}
	if last.IsZero() {
		return available, e.lastRate.Set(current)
	}

	diff := current.Sub(last).Div(current)
	toExtract := diff.Mul(params.YieldExtractFraction).MulInt(available)

	extracted = extracted.Add(toExtract)
	if err := e.extracted.Set(extracted); err != nil {
		return bn.Int{}, err
	}
	if err := e.lastRate.Set(current); err != nil {
		return bn.Int{}, err
	}
	return balance.SubSaturate(extracted), nil
}

// Deposit takes stake tokens from the sender and mints LP shares over
// the non-extracted stake.
func (e *Extractor) Deposit(now uint64, sender stakehub.Address, amount bn.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.IsZero() {
		return errs.Newf(errs.KindInvalidZeroAmount, "deposit")
	}
	if err := e.stake.Transfer(sender, e.addr, amount); err != nil {
		return err
	}

	available, err := e.extract(amount)
	if err != nil {
		return err
	}
	supply, err := e.lp.TotalSupply()
	if err != nil {
		return err
	}
	shares := amount
	if !available.IsZero() {
		shares = amount.MulDiv(supply, available)
	}
	if err := e.lp.Mint(sender, shares); err != nil {
		return err
	}

	logger.Debug("deposited", "sender", sender, "amount", amount, "shares", shares)
	e.recorder.Record(now, "extractor", "deposit", map[string]string{
		"receiver":        sender.String(),
		"stake_deposited": amount.String(),
		"lp_minted":       shares.String(),
	})
	return nil
}

// Withdraw burns the sender's LP shares and returns the matching slice
// of the non-extracted stake.
func (e *Extractor) Withdraw(now uint64, sender stakehub.Address, lpAmount bn.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lpAmount.IsZero() {
		return errs.Newf(errs.KindInvalidZeroAmount, "lp amount")
	}
	available, err := e.extract(bn.Int{})
	if err != nil {
		return err
	}
	supply, err := e.lp.TotalSupply()
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return errs.Newf(errs.KindNoTokensAvailable, "lp supply")
	}
	withdrawAmount := lpAmount.MulDiv(available, supply)

	if err := e.lp.Burn(sender, lpAmount); err != nil {
		return err
	}
	if err := e.stake.Transfer(e.addr, sender, withdrawAmount); err != nil {
		return err
	}

	logger.Debug("withdrawn", "sender", sender, "amount", withdrawAmount, "lp", lpAmount)
	e.recorder.Record(now, "extractor", "withdraw", map[string]string{
		"user":            sender.String(),
		"stake_withdrawn": withdrawAmount.String(),
		"lp_burned":       lpAmount.String(),
	})
	return nil
}

// Harvest sends the extracted stake to the yield sink. Callable by
// anyone.
func (e *Extractor) Harvest(now uint64, sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.extract(bn.Int{}); err != nil {
		return err
	}
	params, _, err := e.params.Get()
	if err != nil {
		return err
	}
	extracted, _, err := e.extracted.Get()
	if err != nil {
		return err
	}
	harvested, _, err := e.harvested.Get()
	if err != nil {
		return err
	}

	if err := e.extracted.Set(bn.Int{}); err != nil {
		return err
	}
	if err := e.harvested.Set(harvested.Add(extracted)); err != nil {
		return err
	}
	if !extracted.IsZero() {
		if err := e.stake.Transfer(e.addr, params.YieldSink, extracted); err != nil {
			return err
		}
	}

	logger.Debug("harvested", "sender", sender, "amount", extracted)
	e.recorder.Record(now, "extractor", "harvest", map[string]string{
		"user":            sender.String(),
		"stake_extracted": extracted.String(),
	})
	return nil
}

// UpdateConfig applies an owner change to the extraction parameters.
// Nil fields stay untouched.
func (e *Extractor) UpdateConfig(now uint64, sender stakehub.Address, yieldSink *stakehub.Address, fraction *dec.Dec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ownable.AssertOwner(sender); err != nil {
		return err
	}
	params, _, err := e.params.Get()
	if err != nil {
		return err
	}
	if yieldSink != nil {
		params.YieldSink = *yieldSink
	}
	if fraction != nil {
		params.YieldExtractFraction = *fraction
	}
	if err := params.validate(); err != nil {
		return err
	}
	if err := e.params.Set(params); err != nil {
		return err
	}

	e.recorder.Record(now, "extractor", "update_config", nil)
	return nil
}

// ProposeNewOwner stages an ownership handover.
func (e *Extractor) ProposeNewOwner(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Propose(now, sender, newOwner, expiresIn)
}

// DropOwnershipProposal cancels a staged handover.
func (e *Extractor) DropOwnershipProposal(sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Drop(sender)
}

// ClaimOwnership completes a staged handover.
func (e *Extractor) ClaimOwnership(now uint64, sender stakehub.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownable.Claim(now, sender)
}
