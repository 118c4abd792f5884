// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/errs"
	"github.com/stakehub-labs/stakehub/gauges/amp"
	"github.com/stakehub-labs/stakehub/gauges/emp"
)

type gaugesAPI struct {
	amp *amp.Amp
	emp *emp.Emp
	now Clock
}

func newGaugesAPI(a *amp.Amp, e *emp.Emp, now Clock) *gaugesAPI {
	return &gaugesAPI{a, e, now}
}

func (a *gaugesAPI) handleGetAmpUser(w http.ResponseWriter, req *http.Request) error {
	user, err := restutil.ParseAddress("user", mux.Vars(req)["user"])
	if err != nil {
		return err
	}
	info, err := a.amp.UserInfo(user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, info)
}

func (a *gaugesAPI) handleGetAmpTuneInfo(w http.ResponseWriter, _ *http.Request) error {
	info, err := a.amp.TuneInfo()
	if err != nil {
		return notFound(err, errs.KindNoVamp)
	}
	return restutil.WriteJSON(w, info)
}

func (a *gaugesAPI) handleGetAmpValidator(w http.ResponseWriter, req *http.Request) error {
	validator := mux.Vars(req)["validator"]
	period, err := restutil.OptionalUint("period", req.URL.Query().Get("period"))
	if err != nil {
		return err
	}
	if period != nil {
		info, err := a.amp.ValidatorInfoAt(validator, *period)
		if err != nil {
			return err
		}
		return restutil.WriteJSON(w, info)
	}
	info, err := a.amp.ValidatorInfo(a.now(), validator)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, info)
}

func (a *gaugesAPI) handleGetEmpTuneInfo(w http.ResponseWriter, _ *http.Request) error {
	info, err := a.emp.TuneInfo()
	if err != nil {
		return notFound(err, errs.KindEmpNotTuned)
	}
	return restutil.WriteJSON(w, info)
}

func (a *gaugesAPI) handleGetEmpValidator(w http.ResponseWriter, req *http.Request) error {
	validator := mux.Vars(req)["validator"]
	period, err := restutil.OptionalUint("period", req.URL.Query().Get("period"))
	if err != nil {
		return err
	}
	if period != nil {
		info, err := a.emp.ValidatorInfoAt(validator, *period)
		if err != nil {
			return err
		}
		return restutil.WriteJSON(w, info)
	}
	info, err := a.emp.ValidatorInfo(a.now(), validator)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, info)
}

func (a *gaugesAPI) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	if a.amp != nil {
		sub.Path("/amp/tune-info").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetAmpTuneInfo))
		sub.Path("/amp/users/{user}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetAmpUser))
		sub.Path("/amp/validators/{validator}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetAmpValidator))
	}
	if a.emp != nil {
		sub.Path("/emp/tune-info").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetEmpTuneInfo))
		sub.Path("/emp/validators/{validator}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(a.handleGetEmpValidator))
	}
}
