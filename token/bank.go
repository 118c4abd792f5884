// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package token

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// Bank tracks native coin balances per account and denom.
type Bank interface {
	Balance(of stakehub.Address, denom string) (bn.Int, error)
	Send(from, to stakehub.Address, denom string, amount bn.Int) error
	// Deposit credits freshly issued coins, e.g. staking rewards.
	Deposit(to stakehub.Address, denom string, amount bn.Int) error
}

type bankKey struct {
	addr  stakehub.Address
	denom string
}

// MemBank is an in-memory Bank.
type MemBank struct {
	mu       sync.Mutex
	balances map[bankKey]bn.Int
}

// NewMemBank creates an empty bank.
func NewMemBank() *MemBank {
	return &MemBank{balances: make(map[bankKey]bn.Int)}
}

func (b *MemBank) Balance(of stakehub.Address, denom string) (bn.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[bankKey{of, denom}], nil
}

func (b *MemBank) Send(from, to stakehub.Address, denom string, amount bn.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fk := bankKey{from, denom}
	if b.balances[fk].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "send %v %s exceeds balance %v", amount, denom, b.balances[fk])
	}
	b.balances[fk] = b.balances[fk].Sub(amount)
	tk := bankKey{to, denom}
	b.balances[tk] = b.balances[tk].Add(amount)
	return nil
}

func (b *MemBank) Deposit(to stakehub.Address, denom string, amount bn.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := bankKey{to, denom}
	b.balances[k] = b.balances[k].Add(amount)
	return nil
}

// Burn destroys coins held by the given account, used by tests to model
// slashing of in-flight unbondings.
func (b *MemBank) Burn(of stakehub.Address, denom string, amount bn.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := bankKey{of, denom}
	if b.balances[k].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "burn %v %s exceeds balance %v", amount, denom, b.balances[k])
	}
	b.balances[k] = b.balances[k].Sub(amount)
	return nil
}
