package auditdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	registerMigration("init_db", up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE connection_events (
			id         INTEGER PRIMARY KEY,
			identity   TEXT NOT NULL,
			endpoint   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			occurred_at INTEGER NOT NULL
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return fmt.Errorf("create connection_events table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX connection_events_identity_idx ON connection_events(identity, occurred_at)`); err != nil {
		return fmt.Errorf("create connection_events index: %w", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX connection_events_identity_idx`); err != nil {
		return fmt.Errorf("drop connection_events_identity_idx index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE connection_events`); err != nil {
		return fmt.Errorf("drop connection_events table: %w", err)
	}
	return nil
}
