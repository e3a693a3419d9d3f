// Package auditdb implements an append-only sqlite3 log of connection
// lifecycle events (connecting, admitted, rejected, expired,
// disconnected), adapted from the teacher's account-storage DB: same
// sqlx-over-sqlite3 shape and migration harness, generalized from mutable
// account rows to an append-only event log.
package auditdb

import (
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omgpp-project/omgpp"
)

// Kind identifies the sort of connection-lifecycle event an Event row
// records.
type Kind string

const (
	KindConnecting   Kind = "connecting"
	KindAdmitted     Kind = "admitted"
	KindRejected     Kind = "rejected"
	KindExpired      Kind = "expired"
	KindDisconnected Kind = "disconnected"
)

// Event is one row of the append-only connection_events log.
type Event struct {
	ID         int64     `db:"id"`
	Identity   string    `db:"identity"`
	Endpoint   string    `db:"endpoint"`
	Kind       Kind      `db:"kind"`
	Reason     string `db:"reason"`
	OccurredAt int64  `db:"occurred_at"`
}

// DB stores the connection-lifecycle audit log in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB from the provided sqlite3 filename, applying the same
// WAL/cache pragmas the teacher stack uses for its primary store.
func Open(name string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	return &DB{x}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

// RecordEvent appends one connection-lifecycle event. reason is
// free-form (e.g. a close reason string); it may be empty.
func (db *DB) RecordEvent(identity omgpp.Identity, endpoint omgpp.Endpoint, kind Kind, reason string, at time.Time) error {
	_, err := db.x.NamedExec(`
		INSERT INTO
		connection_events ( identity,  endpoint,  kind,  reason,  occurred_at)
		VALUES            (:identity, :endpoint, :kind, :reason, :occurred_at)
	`, map[string]any{
		"identity":    identity.String(),
		"endpoint":    endpoint.String(),
		"kind":        string(kind),
		"reason":      reason,
		"occurred_at": at.Unix(),
	})
	return err
}

// EventsForIdentity returns every recorded event for identity, oldest
// first.
func (db *DB) EventsForIdentity(identity omgpp.Identity) ([]Event, error) {
	var rows []Event
	if err := db.x.Select(&rows, `
		SELECT id, identity, endpoint, kind, reason, occurred_at
		FROM connection_events
		WHERE identity = ?
		ORDER BY occurred_at ASC, id ASC
	`, identity.String()); err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentEvents returns the most recently recorded events, newest first,
// bounded by limit.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	var rows []Event
	if err := db.x.Select(&rows, `
		SELECT id, identity, endpoint, kind, reason, occurred_at
		FROM connection_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
