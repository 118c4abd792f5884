// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/arbvault"
)

type vaultAPI struct {
	vault *arbvault.Vault
	now   Clock
}

func newVaultAPI(v *arbvault.Vault, now Clock) *vaultAPI {
	return &vaultAPI{v, now}
}

func (a *vaultAPI) handleGetConfig(w http.ResponseWriter, _ *http.Request) error {
	config, err := a.vault.Config()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, config)
}

// ?details=true adds the per-derivative claim breakdown.
func (a *vaultAPI) handleGetState(w http.ResponseWriter, req *http.Request) error {
	details := req.URL.Query().Get("details") == "true"
	state, err := a.vault.State(a.now(), details)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, state)
}

func (a *vaultAPI) handleGetTakeable(w http.ResponseWriter, req *http.Request) error {
	profit, err := restutil.OptionalDec("wantedProfit", req.URL.Query().Get("wantedProfit"))
	if err != nil {
		return err
	}
	takeable, err := a.vault.Takeable(a.now(), profit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, takeable)
}

func (a *vaultAPI) handleGetUser(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	info, err := a.vault.UserInfo(a.now(), user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, info)
}

func (a *vaultAPI) handleGetUserRequests(w http.ResponseWriter, req *http.Request) error {
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
	requests, err := a.vault.UnbondRequests(a.now(), user, startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, requests)
}

func (a *vaultAPI) handleGetExchangeRates(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	startAfter, err := restutil.OptionalUint("startAfter", query.Get("startAfter"))
	if err != nil {
		return err
	}
	limit, err := restutil.OptionalLimit(query.Get("limit"))
	if err != nil {
		return err
	}
	rates, err := a.vault.ExchangeRates(startAfter, limit)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, rates)
}

func (a *vaultAPI) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/config").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetConfig))
	sub.Path("/state").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetState))
	sub.Path("/takeable").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetTakeable))
	sub.Path("/exchange-rates").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetExchangeRates))
	sub.Path("/users/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetUser))
	sub.Path("/users/{user}/unbond-requests").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetUserRequests))
}
