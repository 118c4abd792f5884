// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/stakehub-labs/stakehub/api/restutil"
	"github.com/stakehub-labs/stakehub/eventdb"
)

const (
	pollInterval = time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	subPageLimit = 256
)

// eventSubscriptions streams newly recorded events to websocket
// clients. The event log is append-only, so tailing it by row id is
// race free.
type eventSubscriptions struct {
	db       *eventdb.EventDB
	upgrader *websocket.Upgrader
	done     chan struct{}
	wg       sync.WaitGroup
}

func newEventSubscriptions(db *eventdb.EventDB, allowedOrigins []string) *eventSubscriptions {
	return &eventSubscriptions{
		db: db,
		upgrader: &websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == origin || allowed == "*" {
						return true
					}
				}
				return false
			},
		},
		done: make(chan struct{}),
	}
}

// lastEventID finds the tail of the log so a fresh subscriber only
// sees events recorded after it connected.
func (s *eventSubscriptions) lastEventID(component, action string) (uint64, error) {
	events, err := s.db.Filter(&eventdb.Filter{
		Component: component,
		Action:    action,
		Order:     eventdb.DESC,
		Options:   &eventdb.Options{Limit: 1},
	})
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[0].ID, nil
}

// newEvents returns matching rows recorded after lastID in id order.
func (s *eventSubscriptions) newEvents(component, action string, lastID, lastTime uint64) ([]*eventdb.Event, error) {
	events, err := s.db.Filter(&eventdb.Filter{
		Component: component,
		Action:    action,
		Order:     eventdb.ASC,
		Range:     &eventdb.Range{From: lastTime},
		Options:   &eventdb.Options{Limit: subPageLimit},
	})
	if err != nil {
		return nil, err
	}
	var out []*eventdb.Event
	for _, ev := range events {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *eventSubscriptions) handleSubscribeEvents(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	component := query.Get("component")
	action := query.Get("action")

	lastID, err := s.lastEventID(component, action)
	if err != nil {
		return err
	}
	var lastTime uint64
	if pos, err := restutil.OptionalUint("startAfter", query.Get("startAfter")); err != nil {
		return err
	} else if pos != nil {
		lastID = *pos
		lastTime = 0
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has already written the response
		logger.Debug("upgrade to websocket", "err", err)
		return nil
	}
	s.wg.Add(1)
	defer func() {
		s.wg.Done()
		conn.Close()
	}()

	// the read pump surfaces client-side closes
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return nil
		case <-closed:
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-poll.C:
			events, err := s.newEvents(component, action, lastID, lastTime)
			if err != nil {
				return err
			}
			for _, ev := range events {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					return nil
				}
				lastID = ev.ID
				lastTime = ev.Time
			}
		}
	}
}

func (s *eventSubscriptions) mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/event").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(s.handleSubscribeEvents))
}

// close terminates every open subscription and waits for the handlers
// to return.
func (s *eventSubscriptions) close() {
	close(s.done)
	s.wg.Wait()
}
