// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/eventdb"
)

type eventsAPI struct {
	db *eventdb.EventDB
}

func newEventsAPI(db *eventdb.EventDB) *eventsAPI {
	return &eventsAPI{db}
}

// handleFilter accepts an event filter and responds with the matching
// rows. A null body selects everything up to the default limit.
func (a *eventsAPI) handleFilter(w http.ResponseWriter, req *http.Request) error {
	var filter eventdb.Filter
	if err := restutil.ParseJSON(req.Body, &filter); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	events, err := a.db.Filter(&filter)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, events)
}

func (a *eventsAPI) mount(root *mux.Router, path string) {
	root.Path(path).
		Methods(http.MethodPost).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleFilter))
}
