// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package hub implements the liquid staking engine. Users bond the
// native staking token and receive a receipt token whose exchange rate
// appreciates as rewards are reinvested; unbonding goes through periodic
// batches that share one unbonding window.
package hub

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/log"
	"github.com/stakehub-labs/stakehub/ownable"
	"github.com/stakehub-labs/stakehub/planner"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/staking"
	"github.com/stakehub-labs/stakehub/store"
	"github.com/stakehub-labs/stakehub/token"
)

var logger = log.WithContext("pkg", "hub")

// rewardFeeCap bounds the protocol fee taken from staking rewards.
var rewardFeeCap = dec.MustParse("0.1")

// FeeConfig routes a fraction of harvested rewards to the fee sink.
type FeeConfig struct {
	FeeSink           stakehub.Address `json:"feeSink"`
	ProtocolRewardFee dec.Dec          `json:"protocolRewardFee"`
}

// PendingBatch collects unbond requests until its submit time.
type PendingBatch struct {
	ID                 uint64 `json:"id"`
	StakeToBurn        bn.Int `json:"stakeToBurn"`
	EstUnbondStartTime uint64 `json:"estUnbondStartTime"`
}

// Batch is a sealed unbonding batch.
type Batch struct {
	ID               uint64 `json:"id"`
	Reconciled       bool   `json:"reconciled"`
	TotalShares      bn.Int `json:"totalShares"`
	TokenUnclaimed   bn.Int `json:"tokenUnclaimed"`
	EstUnbondEndTime uint64 `json:"estUnbondEndTime"`
}

// Config carries the instantiation parameters. They are persisted on
// first start and ignored when the store already holds state.
type Config struct {
	Owner        stakehub.Address
	Denom        string
	EpochPeriod  uint64
	UnbondPeriod uint64
	Validators   []string
	FeeConfig    FeeConfig
	Strategy     planner.Strategy
}

// Hub is the staking engine.
type Hub struct {
	mu sync.Mutex

	addr       stakehub.Address
	denom      string
	bank       token.Bank
	stakeToken token.Ledger
	staking    staking.Module
	planner    *planner.Planner
	recorder   eventdb.Recorder

	epochPeriod  uint64
	unbondPeriod uint64

	validators     *store.Item[[]string]
	feeConfig      *store.Item[FeeConfig]
	strategy       *store.Item[planner.Strategy]
	goal           *store.Item[planner.WantedDelegationsShare]
	allowDonations *store.Item[bool]
	unlocked       *store.Mapping[bn.Int]
	pending        *store.Item[PendingBatch]
	batches        *store.Mapping[Batch]
	requestsByID   *store.Mapping[bn.Int]
	requestsByUser *store.Mapping[bn.Int]
	ownable        *ownable.Ownable
}

// New creates the hub over the given store partition, seeding initial
// state from cfg when the store is fresh.
func New(now uint64, s kv.Store, bank token.Bank, stakeToken token.Ledger, stakingModule staking.Module, pl *planner.Planner, cfg Config, recorder eventdb.Recorder) (*Hub, error) {
	if cfg.EpochPeriod == 0 {
		return nil, errs.Newf(errs.KindCantBeZero, "epoch period")
	}
	if cfg.UnbondPeriod == 0 {
		return nil, errs.Newf(errs.KindCantBeZero, "unbond period")
	}
	if cfg.FeeConfig.ProtocolRewardFee.Cmp(rewardFeeCap) > 0 {
		return nil, errs.New(errs.KindProtocolRewardFeeTooHigh)
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}

	own, err := ownable.New(s, cfg.Owner)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		addr:           stakehub.NamedAddress("hub"),
		denom:          cfg.Denom,
		bank:           bank,
		stakeToken:     stakeToken,
		staking:        stakingModule,
		planner:        pl,
		recorder:       recorder,
		epochPeriod:    cfg.EpochPeriod,
		unbondPeriod:   cfg.UnbondPeriod,
		validators:     store.NewItem[[]string](s, "validators"),
		feeConfig:      store.NewItem[FeeConfig](s, "fee-config"),
		strategy:       store.NewItem[planner.Strategy](s, "delegation-strategy"),
		goal:           store.NewItem[planner.WantedDelegationsShare](s, "delegation-goal"),
		allowDonations: store.NewItem[bool](s, "allow-donations"),
		unlocked:       store.NewMapping[bn.Int](s, "unlocked-coins"),
		pending:        store.NewItem[PendingBatch](s, "pending-batch"),
		batches:        store.NewMapping[Batch](s, "previous-batches"),
		requestsByID:   store.NewMapping[bn.Int](s, "unbond-requests"),
		requestsByUser: store.NewMapping[bn.Int](s, "unbond-requests-by-user"),
		ownable:        own,
	}
	if err := h.seed(now, cfg); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hub) seed(now uint64, cfg Config) error {
	if _, ok, err := h.pending.Get(); err != nil {
		return err
	} else if ok {
		return nil
	}

	validators := dedupe(cfg.Validators)
	if len(validators) == 0 {
		return errs.Newf(errs.KindCantBeZero, "validators")
	}
	for _, v := range validators {
		if err := h.assertValidatorExists(v); err != nil {
			return err
		}
	}
	if err := h.validators.Set(validators); err != nil {
		return err
	}
	if err := h.feeConfig.Set(cfg.FeeConfig); err != nil {
		return err
	}
	if err := h.strategy.Set(cfg.Strategy); err != nil {
		return err
	}
	if err := h.allowDonations.Set(false); err != nil {
		return err
	}
	return h.pending.Set(PendingBatch{
		ID:                 1,
		EstUnbondStartTime: now + h.epochPeriod,
	})
}

// Address returns the account the hub holds funds under.
func (h *Hub) Address() stakehub.Address {
	return h.addr
}

// SetPlanner wires the delegation planner after construction. The gauges
// need the hub as their validator set, so the planner can only be built
// once the hub exists.
func (h *Hub) SetPlanner(p *planner.Planner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.planner = p
}

// Validators implements gauges.ValidatorSet. It deliberately skips the
// engine mutex: the gauges call in while holding their own lock, and the
// whitelist is a single store read.
func (h *Hub) Validators() ([]string, error) {
	return h.validatorList()
}

func (h *Hub) validatorList() ([]string, error) {
	validators, _, err := h.validators.Get()
	return validators, err
}

func (h *Hub) loadStrategy() (planner.Strategy, error) {
	strategy, ok, err := h.strategy.Get()
	if err != nil {
		return planner.Strategy{}, err
	}
	if !ok {
		return planner.UniformStrategy(), nil
	}
	return strategy, nil
}

func (h *Hub) assertValidatorExists(validator string) error {
	ok, err := h.staking.HasValidator(validator)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.KindInvalidValidatorAddress, "%s", validator)
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (h *Hub) balance() (bn.Int, error) {
	return h.bank.Balance(h.addr, h.denom)
}

func (h *Hub) unlockedAmount(denom string) (bn.Int, error) {
	amount, _, err := h.unlocked.Get([]byte(denom))
	return amount, err
}

func (h *Hub) addUnlocked(denom string, amount bn.Int) error {
	current, _, err := h.unlocked.Get([]byte(denom))
	if err != nil {
		return err
	}
	return h.unlocked.Set([]byte(denom), current.Add(amount))
}

// checkReceivedCoin books any balance above the snapshot as unlocked,
// catching coins that arrive as side effects of staking operations.
func (h *Hub) checkReceivedCoin(now uint64, snapshot bn.Int) error {
	current, err := h.balance()
	if err != nil {
		return err
	}
	if current.Cmp(snapshot) <= 0 {
		return nil
	}
	received := current.Sub(snapshot)
	if err := h.addUnlocked(h.denom, received); err != nil {
		return err
	}
	h.recorder.Record(now, "hub", "received", map[string]string{
		"received_coin": received.String() + h.denom,
	})
	return nil
}

// findNewDelegation picks the validator with the smallest delegation.
// Under gauges only validators that already hold stake are considered,
// the rest are inactive until the next tune.
func (h *Hub) findNewDelegation() (string, []staking.Delegation, error) {
	strategy, err := h.loadStrategy()
	if err != nil {
		return "", nil, err
	}
	validators, err := h.validatorList()
	if err != nil {
		return "", nil, err
	}

	delegations, err := h.staking.Delegations()
	if err != nil {
		return "", nil, err
	}
	if strategy.Mode == planner.ModeUniform {
		delegations = mergeWithValidators(delegations, validators)
	} else if len(delegations) == 0 {
		delegations = []staking.Delegation{{Validator: validators[0]}}
	}

	pick := delegations[0]
	for _, d := range delegations[1:] {
		if d.Amount.Cmp(pick.Amount) < 0 {
			pick = d
		}
	}
	return pick.Validator, delegations, nil
}

// Bond stakes amount of the native token and mints receipt tokens to
// the receiver at the current exchange rate.
func (h *Hub) Bond(now uint64, sender, receiver stakehub.Address, amount bn.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bond(now, sender, receiver, amount, false)
}

// Donate stakes amount without minting, raising the exchange rate for
// all holders. Requires the donations flag.
func (h *Hub) Donate(now uint64, sender stakehub.Address, amount bn.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bond(now, sender, sender, amount, true)
}

func (h *Hub) bond(now uint64, sender, receiver stakehub.Address, amount bn.Int, donate bool) error {
	logger.Debug("bond", "sender", sender, "amount", amount, "donate", donate)

	if amount.IsZero() {
		return errs.New(errs.KindInvalidZeroAmount)
	}
	if donate {
		if allowed, _, err := h.allowDonations.Get(); err != nil {
			return err
		} else if !allowed {
			return errs.New(errs.KindDonationsDisabled)
		}
	}

	if err := h.bank.Send(sender, h.addr, h.denom, amount); err != nil {
		return err
	}
	balance, err := h.balance()
	if err != nil {
		return err
	}
	snapshot := balance.Sub(amount)

	validator, delegations, err := h.findNewDelegation()
	if err != nil {
		return err
	}

	var minted bn.Int
	if !donate {
		supply, err := h.stakeToken.TotalSupply()
		if err != nil {
			return err
		}
		minted = computeMintAmount(supply, amount, delegations)
	}

	if err := h.staking.Delegate(validator, amount); err != nil {
		return err
	}
	if !donate {
		if err := h.stakeToken.Mint(receiver, minted); err != nil {
			return err
		}
	}
	if err := h.checkReceivedCoin(now, snapshot); err != nil {
		return err
	}

	logger.Info("bonded", "receiver", receiver, "amount", amount, "minted", minted, "validator", validator)
	action := "bond"
	if donate {
		action = "donate"
	}
	h.recorder.Record(now, "hub", action, map[string]string{
		"receiver":      receiver.String(),
		"uluna_bonded":  amount.String(),
		"ustake_minted": minted.String(),
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": action})
	return nil
}

// Harvest withdraws staking rewards from every delegation and reinvests
// them net of the protocol fee.
func (h *Hub) Harvest(now uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	logger.Debug("harvest")

	snapshot, err := h.balance()
	if err != nil {
		return err
	}
	if err := h.staking.WithdrawRewards(); err != nil {
		return err
	}
	if err := h.checkReceivedCoin(now, snapshot); err != nil {
		return err
	}
	return h.reinvest(now)
}

// reinvest takes the unlocked native coins, skims the protocol fee and
// delegates the rest to the most under-delegated validator.
func (h *Hub) reinvest(now uint64) error {
	available, err := h.unlockedAmount(h.denom)
	if err != nil {
		return err
	}
	if available.IsZero() {
		return errs.Newf(errs.KindNoTokensAvailable, "%s", h.denom)
	}
	feeConfig, _, err := h.feeConfig.Get()
	if err != nil {
		return err
	}

	feeAmount := feeConfig.ProtocolRewardFee.MulInt(available)
	toBond := available.SubSaturate(feeAmount)

	validator, _, err := h.findNewDelegation()
	if err != nil {
		return err
	}
	if err := h.unlocked.Delete([]byte(h.denom)); err != nil {
		return err
	}

	if err := h.staking.Delegate(validator, toBond); err != nil {
		return err
	}
	if !feeAmount.IsZero() {
		if err := h.bank.Send(h.addr, feeConfig.FeeSink, h.denom, feeAmount); err != nil {
			return err
		}
	}

	logger.Info("reinvested", "amount", toBond, "fee", feeAmount, "validator", validator)
	h.recorder.Record(now, "hub", "reinvest", map[string]string{
		"uluna_bonded":       toBond.String(),
		"uluna_protocol_fee": feeAmount.String(),
	})
	metricOperationCount().AddWithLabel(1, map[string]string{"action": "reinvest"})
	return nil
}
