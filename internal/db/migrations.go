package db

import (
	"context"
	"database/sql"
	"fmt"
)

// FixLegacyTimeFormats normalizes fetch_log timestamps written as full
// time.Time strings (" +0000 UTC" suffix) so SQLite date functions can read them.
func (db *DB) FixLegacyTimeFormats() error {
	queries := []string{
		`UPDATE fetch_log
		 SET timestamp = SUBSTR(timestamp, 1, 19)
		 WHERE length(timestamp) > 19 AND timestamp LIKE '% UTC'`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to fix legacy time formats: %w", err)
		}
	}

	return nil
}

// AddChargedColumn adds fetch_log.charged to databases created before it
// existed. Rows logged as ok were charged by definition.
func (db *DB) AddChargedColumn() error {
	rows, err := db.QueryContext(context.Background(), "PRAGMA table_info(fetch_log)")
	if err != nil {
		return fmt.Errorf("failed to inspect fetch_log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan fetch_log column: %w", err)
		}
		if name == "charged" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	queries := []string{
		`ALTER TABLE fetch_log ADD COLUMN charged INTEGER NOT NULL DEFAULT 0`,
		`UPDATE fetch_log SET charged = 1 WHERE status = 'ok'`,
	}
	for _, query := range queries {
		if _, err := db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to add charged column: %w", err)
		}
	}
	return nil
}
