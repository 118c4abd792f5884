// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package token defines the fungible-token collaborators of the protocol:
// a CW20-style ledger for receipt and LP tokens and a bank for native
// denominations. Only the operations the engines invoke are modeled.
package token

import (
	"sync"

	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// Ledger is the minimal fungible token surface: mint, burn, transfer,
// balance and total supply.
type Ledger interface {
	Mint(to stakehub.Address, amount bn.Int) error
	Burn(from stakehub.Address, amount bn.Int) error
	Transfer(from, to stakehub.Address, amount bn.Int) error
	Balance(of stakehub.Address) (bn.Int, error)
	TotalSupply() (bn.Int, error)
}

// MemLedger is an in-memory Ledger.
type MemLedger struct {
	mu       sync.Mutex
	balances map[stakehub.Address]bn.Int
	supply   bn.Int
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[stakehub.Address]bn.Int)}
}

func (l *MemLedger) Mint(to stakehub.Address, amount bn.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = l.balances[to].Add(amount)
	l.supply = l.supply.Add(amount)
	return nil
}

func (l *MemLedger) Burn(from stakehub.Address, amount bn.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "burn %v exceeds balance %v", amount, l.balances[from])
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.supply = l.supply.Sub(amount)
	return nil
}

func (l *MemLedger) Transfer(from, to stakehub.Address, amount bn.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from].Cmp(amount) < 0 {
		return errs.Newf(errs.KindNoTokensAvailable, "transfer %v exceeds balance %v", amount, l.balances[from])
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

func (l *MemLedger) Balance(of stakehub.Address) (bn.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[of], nil
}

func (l *MemLedger) TotalSupply() (bn.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply, nil
}
