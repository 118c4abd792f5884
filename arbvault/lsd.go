// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package arbvault

import (
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/token"
)

// LSD adapts one liquid staking derivative to the vault. Amounts are
// denominated in the derivative's own token unless stated otherwise.
type LSD interface {
	Name() string

	// ExchangeRate converts derivative tokens to the underlying.
	ExchangeRate() (dec.Dec, error)

	Balance(of stakehub.Address) (bn.Int, error)
	Transfer(from, to stakehub.Address, amount bn.Int) error

	// QueueUnbond starts unbonding the holder's derivative tokens.
	QueueUnbond(now uint64, from stakehub.Address, amount bn.Int) error

	// Unbonding and Withdrawable report the holder's in-flight and
	// claimable amounts in the underlying token.
	Unbonding(now uint64, of stakehub.Address) (bn.Int, error)
	Withdrawable(now uint64, of stakehub.Address) (bn.Int, error)

	// Withdraw claims everything withdrawable to the holder.
	Withdraw(now uint64, of stakehub.Address) error
}

// HubLSD adapts the staking hub's receipt token.
type HubLSD struct {
	name       string
	hub        *hub.Hub
	stakeToken token.Ledger
}

// NewHubLSD wraps a hub and its receipt token ledger.
func NewHubLSD(name string, h *hub.Hub, stakeToken token.Ledger) *HubLSD {
	return &HubLSD{name: name, hub: h, stakeToken: stakeToken}
}

func (l *HubLSD) Name() string { return l.name }

func (l *HubLSD) ExchangeRate() (dec.Dec, error) {
	return l.hub.ExchangeRate()
}

func (l *HubLSD) Balance(of stakehub.Address) (bn.Int, error) {
	return l.stakeToken.Balance(of)
}

func (l *HubLSD) Transfer(from, to stakehub.Address, amount bn.Int) error {
	return l.stakeToken.Transfer(from, to, amount)
}

func (l *HubLSD) QueueUnbond(now uint64, from stakehub.Address, amount bn.Int) error {
	return l.hub.QueueUnbond(now, from, from, amount)
}

func (l *HubLSD) Unbonding(now uint64, of stakehub.Address) (bn.Int, error) {
	_, unbonding, err := l.claims(now, of)
	return unbonding, err
}

func (l *HubLSD) Withdrawable(now uint64, of stakehub.Address) (bn.Int, error) {
	withdrawable, _, err := l.claims(now, of)
	return withdrawable, err
}

func (l *HubLSD) Withdraw(now uint64, of stakehub.Address) error {
	return l.hub.WithdrawUnbonded(now, of, of)
}

// claims walks the holder's unbond requests and values them in the
// underlying token. Requests not yet submitted are valued at the current
// exchange rate, sealed ones pro rata against their batch.
func (l *HubLSD) claims(now uint64, of stakehub.Address) (withdrawable, unbonding bn.Int, err error) {
	rate := dec.Dec{}
	var startAfter *uint64
	for {
		details, err := l.hub.UnbondRequestsByUserDetails(now, of, startAfter, nil)
		if err != nil {
			return bn.Int{}, bn.Int{}, err
		}
		if len(details) == 0 {
			break
		}
		for _, d := range details {
			switch d.State {
			case hub.UnbondStatePending:
				if rate.IsZero() {
					if rate, err = l.hub.ExchangeRate(); err != nil {
						return bn.Int{}, bn.Int{}, err
					}
				}
				unbonding = unbonding.Add(rate.MulInt(d.Shares))
			case hub.UnbondStateUnbonding:
				amount, err := l.batchValue(d.ID, d.Shares)
				if err != nil {
					return bn.Int{}, bn.Int{}, err
				}
				unbonding = unbonding.Add(amount)
			case hub.UnbondStateCompleted:
				amount, err := l.batchValue(d.ID, d.Shares)
				if err != nil {
					return bn.Int{}, bn.Int{}, err
				}
				withdrawable = withdrawable.Add(amount)
			}
		}
		last := details[len(details)-1].ID
		startAfter = &last
	}
	return withdrawable, unbonding, nil
}

func (l *HubLSD) batchValue(id uint64, shares bn.Int) (bn.Int, error) {
	batch, err := l.hub.PreviousBatch(id)
	if err != nil {
		if errs.Is(err, errs.KindNothingToWithdraw) {
			return bn.Int{}, nil
		}
		return bn.Int{}, err
	}
	return batch.TokenUnclaimed.MulDiv(shares, batch.TotalShares), nil
}
