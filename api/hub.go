// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/stakehub"
)

// notFound maps lookup misses onto 404, leaving other engine errors as
// internal.
func notFound(err error, kinds ...errs.Kind) error {
	for _, kind := range kinds {
		if errs.Is(err, kind) {
			return restutil.HTTPError(err, http.StatusNotFound)
		}
	}
	return err
}

type hubAPI struct {
	hub *hub.Hub
	now Clock
}

func newHubAPI(h *hub.Hub, now Clock) *hubAPI {
	return &hubAPI{h, now}
}

func (a *hubAPI) handleGetConfig(w http.ResponseWriter, _ *http.Request) error {
	config, err := a.hub.Config()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, config)
}

func (a *hubAPI) handleGetState(w http.ResponseWriter, _ *http.Request) error {
	state, err := a.hub.State()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, state)
}

func (a *hubAPI) handleGetExchangeRate(w http.ResponseWriter, _ *http.Request) error {
	rate, err := a.hub.ExchangeRate()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"exchangeRate": rate})
}

// ?period= switches to a simulation of a future tune period.
func (a *hubAPI) handleGetWantedDelegations(w http.ResponseWriter, req *http.Request) error {
	period, err := restutil.OptionalUint("period", req.URL.Query().Get("period"))
	if err != nil {
		return err
	}
	if period != nil {
		wanted, err := a.hub.SimulateWantedDelegations(a.now(), period)
		if err != nil {
			return err
		}
		return restutil.WriteJSON(w, wanted)
	}
	wanted, err := a.hub.WantedDelegations(a.now())
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, wanted)
}

func (a *hubAPI) handleGetPendingBatch(w http.ResponseWriter, _ *http.Request) error {
	pending, err := a.hub.PendingBatch()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, pending)
}

func (a *hubAPI) handleGetBatch(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
	batch, err := a.hub.PreviousBatch(id)
	if err != nil {
		return notFound(err, errs.KindNothingToWithdraw)
	}
	return restutil.WriteJSON(w, batch)
}

func (a *hubAPI) handleGetBatches(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	startAfter, err := restutil.OptionalUint("startAfter", query.Get("startAfter"))
	if err != nil {
		return err
	}
	limit, err := restutil.OptionalLimit(query.Get("limit"))
	if err != nil {
		return err
	}
	batches, err := a.hub.PreviousBatches(startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, batches)
}

func (a *hubAPI) handleGetBatchRequests(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
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
	requests, err := a.hub.UnbondRequestsByBatch(id, startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, requests)
}

func (a *hubAPI) handleGetUserRequests(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	query := req.URL.Query()
	startAfter, err := restutil.OptionalUint("startAfter", query.Get("startAfter"))
	if err != nil {
		return err
	}
	limit, err := restutil.OptionalLimit(query.Get("limit"))
	if err != nil {
		return err
	}
	if query.Get("details") == "true" {
		details, err := a.hub.UnbondRequestsByUserDetails(a.now(), user, startAfter, limit)
		if err != nil {
			return err
		}
		return restutil.WriteJSON(w, details)
	}
	requests, err := a.hub.UnbondRequestsByUser(user, startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, requests)
}

func (a *hubAPI) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/config").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetConfig))
	sub.Path("/state").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetState))
	sub.Path("/exchange-rate").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetExchangeRate))
	sub.Path("/wanted-delegations").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetWantedDelegations))
	sub.Path("/batches").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetBatches))
	sub.Path("/batches/pending").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetPendingBatch))
	sub.Path("/batches/{id}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetBatch))
	sub.Path("/batches/{id}/unbond-requests").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetBatchRequests))
	sub.Path("/unbond-requests/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetUserRequests))
}
