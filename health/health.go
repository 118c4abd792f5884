// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package health tracks the liveness of the daemon's housekeeping loop
// for the /healthz endpoint.
package health

import (
	"sync"
	"time"
)

// defaultMaxTickAge is how stale the last housekeeping tick may be
// before the daemon reports unhealthy.
const defaultMaxTickAge = 10 * time.Minute

type Housekeeping struct {
	LastTick      *time.Time `json:"lastTick"`
	LastTickError string     `json:"lastTickError,omitempty"`
}

type Status struct {
	Healthy      bool          `json:"healthy"`
	Housekeeping *Housekeeping `json:"housekeeping"`
	APIReady     bool          `json:"apiReady"`
}

type Health struct {
	lock          sync.RWMutex
	lastTick      time.Time
	lastTickError error
	apiReady      bool
	maxTickAge    time.Duration
}

func New() *Health {
	return &Health{maxTickAge: defaultMaxTickAge}
}

// NewTick records the outcome of a housekeeping run.
func (h *Health) NewTick(err error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.lastTick = time.Now()
	h.lastTickError = err
}

func (h *Health) Status() (*Status, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	housekeeping := &Housekeeping{}
	if !h.lastTick.IsZero() {
		tick := h.lastTick
		housekeeping.LastTick = &tick
	}
	if h.lastTickError != nil {
		housekeeping.LastTickError = h.lastTickError.Error()
	}

	healthy := h.apiReady &&
		!h.lastTick.IsZero() &&
		time.Since(h.lastTick) <= h.maxTickAge &&
		h.lastTickError == nil

	return &Status{
		Healthy:      healthy,
		Housekeeping: housekeeping,
		APIReady:     h.apiReady,
	}, nil
}

// APIReadyStatus flags whether the API listener is up.
func (h *Health) APIReadyStatus(ready bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.apiReady = ready
}
