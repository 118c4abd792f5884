// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/extractor"
)

type extractorAPI struct {
	extractor *extractor.Extractor
}

func newExtractorAPI(e *extractor.Extractor) *extractorAPI {
	return &extractorAPI{e}
}

func (a *extractorAPI) handleGetConfig(w http.ResponseWriter, _ *http.Request) error {
	config, err := a.extractor.Config()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, config)
}

func (a *extractorAPI) handleGetState(w http.ResponseWriter, _ *http.Request) error {
	state, err := a.extractor.State()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, state)
}

func (a *extractorAPI) handleGetShare(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	share, err := a.extractor.Share(user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, share)
}

func (a *extractorAPI) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/config").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetConfig))
	sub.Path("/state").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetState))
	sub.Path("/shares/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetShare))
}
