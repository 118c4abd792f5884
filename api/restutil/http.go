// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package restutil

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/dec"
	"github.com/stakehub-labs/stakehub/stakehub"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError create an error with http status code.
func HTTPError(cause error, status int) error {
	return &httpError{
		cause:  cause,
		status: status,
	}
}

// BadRequest convenience method to create http bad request error.
func BadRequest(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusBadRequest,
	}
}

// Forbidden convenience method to create http forbidden error.
func Forbidden(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusForbidden,
	}
}

// HandlerFunc like http.HandlerFunc, but it returns an error.
// If the returned error is httpError type, httpError.status will be responded,
// otherwise http.StatusInternalServerError responded.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc convert HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err != nil {
			if he, ok := err.(*httpError); ok {
				if he.cause != nil {
					http.Error(w, he.cause.Error(), he.status)
				} else {
					w.WriteHeader(he.status)
				}
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// content types
const (
	JSONContentType = "application/json; charset=utf-8"
)

// ParseJSON parse a JSON object using strict mode.
func ParseJSON(r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON response an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj interface{}) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M shortcut for type map[string]interface{}.
type M map[string]interface{}

// ParseAddress parses a route or query value into an address,
// wrapping failures as bad requests named after the parameter.
func ParseAddress(name, value string) (stakehub.Address, error) {
	addr, err := stakehub.ParseAddress(value)
	if err != nil {
		return stakehub.Address{}, BadRequest(errors.WithMessage(err, name))
	}
	return *addr, nil
}

// OptionalUint parses an optional unsigned query value. Absent values
// return nil.
func OptionalUint(name, value string) (*uint64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, BadRequest(errors.WithMessage(err, name))
	}
	return &v, nil
}

// OptionalLimit parses an optional limit query value.
func OptionalLimit(value string) (*uint32, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil, BadRequest(errors.WithMessage(err, "limit"))
	}
	limit := uint32(v)
	return &limit, nil
}

// OptionalDec parses an optional fixed-point query value.
func OptionalDec(name, value string) (*dec.Dec, error) {
	if value == "" {
		return nil, nil
	}
	d, err := dec.Parse(value)
	if err != nil {
		return nil, BadRequest(errors.WithMessage(err, name))
	}
	return &d, nil
}
