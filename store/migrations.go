package store

import (
	"database/sql"
	"fmt"
)

// migration is one versioned, idempotent schema change. version must
// be strictly increasing; up must be safe to run against a database
// that is already at or past version (Migrate only runs those with
// version > the store's current schema_version).
type migration struct {
	version     int
	description string
	up          func(*sql.Tx) error
}

var migrations = []migration{
	{
		version:     1,
		description: "base tables: fills, markets, accounts, redemptions, backfill_queue",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(schemaSQL)
			return err
		},
	},
	{
		version:     2,
		description: "add sync watermark columns to markets",
		up:          migrateAddMarketSyncColumns,
	},
}

// migrateAddMarketSyncColumns adds the watermark columns introduced
// for §4.1 coverage tracking to a markets table that may predate them.
// Each ALTER TABLE is guarded by a column-existence check first,
// since SQLite has no ADD COLUMN IF NOT EXISTS and re-running ALTER
// TABLE ADD COLUMN on a column that already exists is an error, which
// would otherwise break re-running Migrate against an already-migrated
// database.
func migrateAddMarketSyncColumns(tx *sql.Tx) error {
	cols, err := existingColumns(tx, "markets")
	if err != nil {
		return err
	}

	adds := []struct {
		name string
		ddl  string
	}{
		{"synced_from", "ALTER TABLE markets ADD COLUMN synced_from INTEGER"},
		{"synced_to", "ALTER TABLE markets ADD COLUMN synced_to INTEGER"},
		{"synced_at", "ALTER TABLE markets ADD COLUMN synced_at INTEGER"},
		{"has_complete_history", "ALTER TABLE markets ADD COLUMN has_complete_history INTEGER NOT NULL DEFAULT 0"},
	}
	for _, a := range adds {
		if cols[a.name] {
			continue
		}
		if _, err := tx.Exec(a.ddl); err != nil {
			return fmt.Errorf("add markets.%s: %w", a.name, err)
		}
	}
	return nil
}

func existingColumns(tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan %s column info: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// currentSchemaVersion returns the highest applied migration version,
// or 0 if schema_version does not exist yet (a brand-new database).
func currentSchemaVersion(tx *sql.Tx) (int, error) {
	var exists int
	err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return int(version.Int64), nil
}
