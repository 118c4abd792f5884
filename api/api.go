// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the protocol queries over HTTP. Every endpoint
// is read-only; state changes go through the engines directly.
package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/arbvault"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/extractor"
	"github.com/stakehub-labs/stakehub/gauges/amp"
	"github.com/stakehub-labs/stakehub/gauges/emp"
	"github.com/stakehub-labs/stakehub/health"
	"github.com/stakehub-labs/stakehub/hub"
	"github.com/stakehub-labs/stakehub/log"
	"github.com/stakehub-labs/stakehub/metrics"
)

var logger = log.WithContext("pkg", "api")

// Clock reports the current protocol time in unix seconds.
type Clock func() uint64

// Engines bundles every queryable component. Nil entries skip their
// routes.
type Engines struct {
	Hub       *hub.Hub
	Escrow    *escrow.Escrow
	Amp       *amp.Amp
	Emp       *emp.Emp
	Vault     *arbvault.Vault
	Extractor *extractor.Extractor
	EventDB   *eventdb.EventDB
	Health    *health.Health
}

type Options struct {
	AllowedOrigins  string
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool
}

// New returns the api handler and a close function for hijacked
// websocket connections.
func New(engines Engines, now Clock, opts Options) (http.HandlerFunc, func()) {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	if engines.Hub != nil {
		newHubAPI(engines.Hub, now).mount(router, "/hub")
	}
	if engines.Escrow != nil {
		newEscrowAPI(engines.Escrow, now).mount(router, "/escrow")
	}
	if engines.Amp != nil || engines.Emp != nil {
		newGaugesAPI(engines.Amp, engines.Emp, now).mount(router, "/gauges")
	}
	if engines.Vault != nil {
		newVaultAPI(engines.Vault, now).mount(router, "/arbvault")
	}
	if engines.Extractor != nil {
		newExtractorAPI(engines.Extractor).mount(router, "/extractor")
	}

	var subs *eventSubscriptions
	if engines.EventDB != nil {
		newEventsAPI(engines.EventDB).mount(router, "/events")
		subs = newEventSubscriptions(engines.EventDB, origins)
		subs.mount(router, "/subscriptions")
	}
	if engines.Health != nil {
		newHealthAPI(engines.Health).mount(router, "/healthz")
	}
	if opts.EnableMetrics {
		router.Path("/metrics").Handler(metrics.HTTPHandler())
	}

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = requestLoggerHandler(handler, logger)
	}

	closer := func() {
		if subs != nil {
			subs.close()
		}
	}
	return handler.ServeHTTP, closer
}

// healthAPI answers liveness probes.
type healthAPI struct {
	health *health.Health
}

func newHealthAPI(h *health.Health) *healthAPI {
	return &healthAPI{health: h}
}

func (h *healthAPI) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	status, err := h.health.Status()
	if err != nil {
		return err
	}
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return restutil.WriteJSON(w, status)
}

func (h *healthAPI) mount(root *mux.Router, path string) {
	root.Path(path).
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(h.handleStatus))
}
