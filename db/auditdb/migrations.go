package auditdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	name string
	up   func(context.Context, *sqlx.Tx) error
	down func(context.Context, *sqlx.Tx) error
}

// registry holds every migration in the order it must apply. A
// migration's version is its one-based position in this slice, so
// adding a new migration is just one more registerMigration call (above)
// from an init function; nothing encodes the version in a filename or a
// map key.
var registry []migration

func registerMigration(name string, up, down func(context.Context, *sqlx.Tx) error) {
	registry = append(registry, migration{name: name, up: up, down: down})
}

func migrationAt(version uint64) (migration, error) {
	if version == 0 || version > uint64(len(registry)) {
		return migration{}, fmt.Errorf("unknown schema version %d", version)
	}
	return registry[version-1], nil
}

// Version reports the database's current schema version and the version
// its code expects. Callers should MigrateUp to required before use.
func (db *DB) Version() (current, required uint64, err error) {
	if err = db.x.Get(&current, `PRAGMA user_version`); err != nil {
		return 0, 0, fmt.Errorf("get version: %w", err)
	}
	return current, uint64(len(registry)), nil
}

// MigrateUp applies every registered migration after the database's
// current version up to and including to, in registration order.
func (db *DB) MigrateUp(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err := tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if to < cv {
		return fmt.Errorf("target version %d is less than current version %d", to, cv)
	}
	if to > uint64(len(registry)) {
		return fmt.Errorf("unknown schema version %d", to)
	}

	for v := cv + 1; v <= to; v++ {
		m, err := migrationAt(v)
		if err != nil {
			return err
		}
		if err := m.up(ctx, tx); err != nil {
			return fmt.Errorf("migrate %s up: %w", m.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, to)); err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	return tx.Commit()
}

// MigrateDown reverts every registered migration from the database's
// current version down to, but not including, to, in reverse registration
// order. This will probably eat your data.
func (db *DB) MigrateDown(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err := tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if cv < to {
		return fmt.Errorf("current version %d is less than target version %d", cv, to)
	}

	for v := cv; v > to; v-- {
		m, err := migrationAt(v)
		if err != nil {
			return err
		}
		if err := m.down(ctx, tx); err != nil {
			return fmt.Errorf("migrate %s down: %w", m.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, to)); err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	return tx.Commit()
}
