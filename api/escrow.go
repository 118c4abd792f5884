// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/stakehub"
)

type escrowAPI struct {
	escrow *escrow.Escrow
	now    Clock
}

func newEscrowAPI(e *escrow.Escrow, now Clock) *escrowAPI {
	return &escrowAPI{e, now}
}

func (a *escrowAPI) handleGetLock(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	lock, err := a.escrow.LockInfo(a.now(), user)
	if err != nil {
		return notFound(err, errs.KindLockNotFound)
	}
	return restutil.WriteJSON(w, lock)
}

func (a *escrowAPI) handleGetVotingPower(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	period, err := restutil.OptionalUint("period", req.URL.Query().Get("period"))
	if err != nil {
		return err
	}
	var power bn.Int
	if period != nil {
		power, err = a.escrow.UserVotingPowerAt(*period, user)
	} else {
		power, err = a.escrow.UserVotingPower(a.now(), user)
	}
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"votingPower": power})
}

func (a *escrowAPI) handleGetTotalVotingPower(w http.ResponseWriter, req *http.Request) error {
	period, err := restutil.OptionalUint("period", req.URL.Query().Get("period"))
	if err != nil {
		return err
	}
	var power bn.Int
	if period != nil {
		power, err = a.escrow.TotalVotingPowerAt(*period)
	} else {
		power, err = a.escrow.TotalVotingPower(a.now())
	}
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"votingPower": power})
}

func (a *escrowAPI) handleGetBlacklist(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	var startAfter *stakehub.Address
	if s := query.Get("startAfter"); s != "" {
		addr, err := restutil.ParseAddress("startAfter", s)
		if err != nil {
			return err
		}
		startAfter = &addr
	}
	limit, err := restutil.OptionalLimit(query.Get("limit"))
	if err != nil {
		return err
	}
	voters, err := a.escrow.BlacklistedVoters(startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, voters)
}

func (a *escrowAPI) handleGetBlacklisted(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	blacklisted, err := a.escrow.IsBlacklisted(user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"blacklisted": blacklisted})
}

func (a *escrowAPI) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/total-voting-power").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetTotalVotingPower))
	sub.Path("/blacklist").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetBlacklist))
	sub.Path("/blacklist/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetBlacklisted))
	sub.Path("/locks/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetLock))
	sub.Path("/voting-power/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetVotingPower))
}
