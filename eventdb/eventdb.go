// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package eventdb persists protocol events in sqlite for off-chain
// indexers and the API's event queries.
package eventdb

import (
	"database/sql"
	"encoding/json"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/stakehub-labs/stakehub/log"
)

var logger = log.WithContext("pkg", "eventdb")

const eventTableSchema = `CREATE TABLE IF NOT EXISTS event (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	eventTime INTEGER NOT NULL,
	component TEXT NOT NULL,
	action TEXT NOT NULL,
	attrs TEXT
);
CREATE INDEX IF NOT EXISTS event_time_i ON event(eventTime);
CREATE INDEX IF NOT EXISTS event_component_i ON event(component, action);`

type OrderType string

const (
	ASC  OrderType = "ASC"
	DESC OrderType = "DESC"
)

// Range bounds a filter by event time, inclusive.
type Range struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

type Options struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// Filter selects events. Zero-value fields match everything.
type Filter struct {
	Component string    `json:"component"`
	Action    string    `json:"action"`
	Order     OrderType `json:"order"` // default asc
	Range     *Range    `json:"range,omitempty"`
	Options   *Options  `json:"options,omitempty"`
}

// EventDB manages all recorded events.
type EventDB struct {
	path          string
	db            *sql.DB
	sqliteVersion string
}

// New opens an event db at path.
func New(path string) (*EventDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(eventTableSchema); err != nil {
		return nil, err
	}
	s, _, _ := sqlite3.Version()
	return &EventDB{
		path:          path,
		db:            db,
		sqliteVersion: s,
	}, nil
}

// NewMem creates a memory sqlite db.
func NewMem() (*EventDB, error) {
	return New(":memory:")
}

// Record implements Recorder. Insert failures are logged, never
// propagated into the recording operation.
func (db *EventDB) Record(now uint64, component, action string, attrs map[string]string) {
	var encoded []byte
	if len(attrs) > 0 {
		var err error
		if encoded, err = json.Marshal(attrs); err != nil {
			logger.Error("failed to encode event attrs", "err", err)
			return
		}
	}
	if _, err := db.db.Exec(
		"INSERT INTO event(eventTime, component, action, attrs) VALUES (?, ?, ?, ?);",
		now, component, action, encoded,
	); err != nil {
		logger.Error("failed to record event", "component", component, "action", action, "err", err)
	}
}

// Filter returns events matching the filter.
func (db *EventDB) Filter(filter *Filter) ([]*Event, error) {
	if filter == nil {
		return db.query("SELECT * FROM event")
	}
	var args []interface{}
	stmt := "SELECT * FROM event WHERE 1"
	if filter.Range != nil {
		args = append(args, filter.Range.From)
		stmt += " AND eventTime >= ? "
		if filter.Range.To > 0 && filter.Range.To >= filter.Range.From {
			args = append(args, filter.Range.To)
			stmt += " AND eventTime <= ? "
		}
	}
	if filter.Component != "" {
		args = append(args, filter.Component)
		stmt += " AND component = ? "
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		stmt += " AND action = ? "
	}

	if filter.Order == DESC {
		stmt += " ORDER BY id DESC "
	} else {
		stmt += " ORDER BY id ASC "
	}

	if filter.Options != nil {
		stmt += " limit ?, ? "
		args = append(args, filter.Options.Offset, filter.Options.Limit)
	}
	return db.query(stmt, args...)
}

func (db *EventDB) query(stmt string, args ...interface{}) ([]*Event, error) {
	rows, err := db.db.Query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			id        uint64
			eventTime uint64
			component string
			action    string
			attrs     []byte
		)
		if err := rows.Scan(
			&id,
			&eventTime,
			&component,
			&action,
			&attrs,
		); err != nil {
			return nil, err
		}
		event := &Event{
			ID:        id,
			Time:      eventTime,
			Component: component,
			Action:    action,
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attrs); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Path returns db's directory.
func (db *EventDB) Path() string {
	return db.path
}

// Close closes sqlite.
func (db *EventDB) Close() {
	db.db.Close()
}
