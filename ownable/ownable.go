// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ownable implements the ownership handover shared by the
// engines: the owner proposes a successor, who must claim the role
// before an optional deadline. Dropping the proposal cancels it.
package ownable

import (
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/store"
)

type proposal struct {
	NewOwner stakehub.Address
	Expires  uint64 // unix seconds, zero means no deadline
}

// Ownable tracks an owner and a pending ownership proposal.
type Ownable struct {
	owner    *store.Item[stakehub.Address]
	proposal *store.Item[proposal]
}

// New creates the ownership state, seeding owner on first use.
func New(s kv.Store, owner stakehub.Address) (*Ownable, error) {
	o := &Ownable{
		owner:    store.NewItem[stakehub.Address](s, "owner"),
		proposal: store.NewItem[proposal](s, "owner-proposal"),
	}
	if _, ok, err := o.owner.Get(); err != nil {
		return nil, err
	} else if !ok {
		if err := o.owner.Set(owner); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Owner returns the current owner.
func (o *Ownable) Owner() (stakehub.Address, error) {
	owner, _, err := o.owner.Get()
	return owner, err
}

// Proposed returns the staged new owner, nil when no proposal is open.
func (o *Ownable) Proposed() (*stakehub.Address, error) {
	p, ok, err := o.proposal.Get()
	if err != nil || !ok {
		return nil, err
	}
	addr := p.NewOwner
	return &addr, nil
}

// AssertOwner fails with Unauthorized unless sender is the owner.
func (o *Ownable) AssertOwner(sender stakehub.Address) error {
	owner, err := o.Owner()
	if err != nil {
		return err
	}
	if sender != owner {
		return errs.Newf(errs.KindUnauthorized, "sender %s is not the owner", sender)
	}
	return nil
}

// Propose stages an ownership transfer to newOwner. expiresIn of zero
// leaves the proposal open indefinitely.
func (o *Ownable) Propose(now uint64, sender, newOwner stakehub.Address, expiresIn uint64) error {
	if err := o.AssertOwner(sender); err != nil {
		return err
	}
	p := proposal{NewOwner: newOwner}
	if expiresIn > 0 {
		p.Expires = now + expiresIn
	}
	return o.proposal.Set(p)
}

// Drop cancels the pending proposal.
func (o *Ownable) Drop(sender stakehub.Address) error {
	if err := o.AssertOwner(sender); err != nil {
		return err
	}
	return o.proposal.Delete()
}

// Claim completes the transfer. Only the proposed owner may claim, and
// only before the deadline.
func (o *Ownable) Claim(now uint64, sender stakehub.Address) error {
	p, ok, err := o.proposal.Get()
	if err != nil {
		return err
	}
	if !ok || sender != p.NewOwner {
		return errs.Newf(errs.KindSenderNotNewOwner, "%s", sender)
	}
	if p.Expires > 0 && now > p.Expires {
		return errs.Newf(errs.KindSenderNotNewOwner, "proposal expired at %d", p.Expires)
	}
	if err := o.owner.Set(p.NewOwner); err != nil {
		return err
	}
	return o.proposal.Delete()
}
