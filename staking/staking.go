// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package staking defines the interface of the chain's delegated-staking
// module as seen by the hub, plus a deterministic in-memory implementation
// used by tests and the dev daemon.
package staking

import (
	"sort"
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/token"
)

// Delegation is the stake the hub has with one validator.
type Delegation struct {
	Validator string
	Amount    bn.Int
}

// Module is the staking surface the hub drives.
type Module interface {
	// HasValidator reports whether the validator exists on chain.
	HasValidator(validator string) (bool, error)

	// Delegate moves amount of the staking denom from the hub to the validator.
	Delegate(validator string, amount bn.Int) error

	// Undelegate starts unbonding; the coins return to the hub after the
	// module's unbonding window.
	Undelegate(now uint64, validator string, amount bn.Int) error

	// Redelegate moves stake between validators without unbonding.
	Redelegate(src, dst string, amount bn.Int) error

	// Delegations returns the hub's delegations, in validator name order.
	Delegations() ([]Delegation, error)

	// WithdrawRewards credits all accrued rewards to the hub's bank balance.
	WithdrawRewards() error
}

type unbonding struct {
	validator string
	amount    bn.Int
	release   uint64
}

// MemModule is an in-memory staking module with an explicit clock.
// Rewards accrue only through AccrueReward; slashing only through the
// Slash hooks. Matured unbondings release on ProcessUnbondings.
type MemModule struct {
	mu sync.Mutex

	bank      *token.MemBank
	delegator stakehub.Address
	pool      stakehub.Address
	denom     string

	unbondPeriod uint64
	validators   map[string]bool
	delegations  map[string]bn.Int
	rewards      map[string]bn.Int
	unbondings   []unbonding
}

// NewMemModule creates a module holding stake for the given delegator.
func NewMemModule(bank *token.MemBank, delegator stakehub.Address, denom string, unbondPeriod uint64) *MemModule {
	return &MemModule{
		bank:         bank,
		delegator:    delegator,
		pool:         stakehub.NamedAddress("staking-pool"),
		denom:        denom,
		unbondPeriod: unbondPeriod,
		validators:   make(map[string]bool),
		delegations:  make(map[string]bn.Int),
		rewards:      make(map[string]bn.Int),
	}
}

// RegisterValidator adds a validator to the chain's active set.
func (m *MemModule) RegisterValidator(validator string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[validator] = true
}

func (m *MemModule) HasValidator(validator string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validators[validator], nil
}

func (m *MemModule) Delegate(validator string, amount bn.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.validators[validator] {
		return errs.Newf(errs.KindInvalidValidatorAddress, "%s", validator)
	}
	if err := m.bank.Send(m.delegator, m.pool, m.denom, amount); err != nil {
		return err
	}
	m.delegations[validator] = m.delegations[validator].Add(amount)
	return nil
}

func (m *MemModule) Undelegate(now uint64, validator string, amount bn.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegations[validator].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "undelegate %v exceeds delegation %v", amount, m.delegations[validator])
	}
	m.delegations[validator] = m.delegations[validator].Sub(amount)
	if m.delegations[validator].IsZero() {
		delete(m.delegations, validator)
	}
	m.unbondings = append(m.unbondings, unbonding{
		validator: validator,
		amount:    amount,
		release:   now + m.unbondPeriod,
	})
	return nil
}

func (m *MemModule) Redelegate(src, dst string, amount bn.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.validators[dst] {
		return errs.Newf(errs.KindInvalidValidatorAddress, "%s", dst)
	}
	if m.delegations[src].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "redelegate %v exceeds delegation %v", amount, m.delegations[src])
	}
	m.delegations[src] = m.delegations[src].Sub(amount)
	if m.delegations[src].IsZero() {
		delete(m.delegations, src)
	}
	m.delegations[dst] = m.delegations[dst].Add(amount)
	return nil
}

func (m *MemModule) Delegations() ([]Delegation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delegation, 0, len(m.delegations))
	for v, amt := range m.delegations {
		out = append(out, Delegation{Validator: v, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validator < out[j].Validator })
	return out, nil
}

func (m *MemModule) WithdrawRewards() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, amt := range m.rewards {
		if err := m.bank.Deposit(m.delegator, m.denom, amt); err != nil {
			return err
		}
		delete(m.rewards, v)
	}
	return nil
}

// AccrueReward adds pending rewards for a validator.
func (m *MemModule) AccrueReward(validator string, amount bn.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[validator] = m.rewards[validator].Add(amount)
}

// ProcessUnbondings releases matured unbondings to the delegator.
func (m *MemModule) ProcessUnbondings(now uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.unbondings[:0]
	for _, u := range m.unbondings {
		if u.release <= now {
			if err := m.bank.Send(m.pool, m.delegator, m.denom, u.amount); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, u)
	}
	m.unbondings = kept
	return nil
}

// SlashUnbonding burns amount out of in-flight unbondings, oldest first.
// Models validators slashed while stake is unbonding.
func (m *MemModule) SlashUnbonding(amount bn.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := amount
	for i := range m.unbondings {
		if remaining.IsZero() {
			break
		}
		cut := bn.Min(remaining, m.unbondings[i].amount)
		m.unbondings[i].amount = m.unbondings[i].amount.Sub(cut)
		remaining = remaining.Sub(cut)
		if err := m.bank.Burn(m.pool, m.denom, cut); err != nil {
			return err
		}
	}
	if !remaining.IsZero() {
		return errs.Newf(errs.KindNoTokensAvailable, "slash %v exceeds unbonding stake", amount)
	}
	return nil
}

// SlashDelegation burns amount out of a live delegation.
func (m *MemModule) SlashDelegation(validator string, amount bn.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegations[validator].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "slash %v exceeds delegation %v", amount, m.delegations[validator])
	}
	m.delegations[validator] = m.delegations[validator].Sub(amount)
	return m.bank.Burn(m.pool, m.denom, amount)
}

// TotalBonded sums all delegations.
func (m *MemModule) TotalBonded() bn.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total bn.Int
	for _, amt := range m.delegations {
		total = total.Add(amt)
	}
	return total
}
