package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// InsertFetchRecord logs one upstream sub-request.
func (db *DB) InsertFetchRecord(rec *models.FetchRecord) error {
	query := `
		INSERT INTO fetch_log (
			timestamp, run_id, property_id, start_date, end_date, granularity,
			metrics, estimated_tokens, attempts, duration_ms, row_count, status, error, charged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	timestamp := rec.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	status := rec.Status
	if status == "" {
		status = models.FetchStatusOK
	}
	charged := rec.Charged || status == models.FetchStatusOK

	result, err := db.ExecContext(context.Background(), query,
		timestamp.UTC().Format(sqlTimeLayout),
		rec.RunID,
		rec.PropertyID,
		rec.StartDate,
		rec.EndDate,
		rec.Granularity,
		rec.Metrics,
		rec.EstimatedTokens,
		rec.Attempts,
		rec.DurationMs,
		rec.Rows,
		status,
		nullString(rec.Error),
		charged,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fetch record: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		rec.ID = id
	}

	return nil
}

// GetRecentFetches returns the most recent fetch log entries, newest first.
func (db *DB) GetRecentFetches(limit int) ([]models.FetchRecord, error) {
	query := `
		SELECT id, timestamp, run_id, property_id, start_date, end_date, granularity,
			   metrics, estimated_tokens, attempts, duration_ms, row_count, status, error, charged
		FROM fetch_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent fetches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.FetchRecord
	for rows.Next() {
		var rec models.FetchRecord
		var ts string
		var errStr sql.NullString

		err := rows.Scan(
			&rec.ID,
			&ts,
			&rec.RunID,
			&rec.PropertyID,
			&rec.StartDate,
			&rec.EndDate,
			&rec.Granularity,
			&rec.Metrics,
			&rec.EstimatedTokens,
			&rec.Attempts,
			&rec.DurationMs,
			&rec.Rows,
			&rec.Status,
			&errStr,
			&rec.Charged,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetch record: %w", err)
		}

		rec.Timestamp = parseTimestamp(ts)
		rec.Error = errStr.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetDailyUsage returns the requests and tokens charged on the UTC day
// containing day, including steps that failed after the upstream call
// succeeded. Used to seed the quota governor after a restart.
func (db *DB) GetDailyUsage(day time.Time) (models.DailyUsage, error) {
	query := `
		SELECT
			COUNT(*) as requests,
			COALESCE(SUM(estimated_tokens), 0) as tokens
		FROM fetch_log
		WHERE charged = 1 AND date(timestamp) = ?
	`

	usage := models.DailyUsage{Day: models.TruncateDay(day.UTC())}
	err := db.QueryRowContext(context.Background(), query,
		usage.Day.Format(models.DateLayout),
	).Scan(&usage.Requests, &usage.Tokens)
	if err != nil {
		return models.DailyUsage{}, fmt.Errorf("failed to query daily usage: %w", err)
	}

	return usage, nil
}

// GetDailyFetchStats aggregates the fetch log per day over the last days.
func (db *DB) GetDailyFetchStats(days int) ([]models.DailyFetchStats, error) {
	query := `
		SELECT
			date(timestamp) as day,
			COUNT(*) as requests,
			SUM(CASE WHEN status != 'ok' THEN 1 ELSE 0 END) as failures,
			COALESCE(SUM(CASE WHEN charged = 1 THEN estimated_tokens ELSE 0 END), 0) as tokens,
			COALESCE(SUM(row_count), 0) as total_rows,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM fetch_log
		` + sqlDayFilterClause + `
		GROUP BY day
		ORDER BY day DESC
	`

	rows, err := db.QueryContext(context.Background(), query, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily fetch stats: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var stats []models.DailyFetchStats
	for rows.Next() {
		var s models.DailyFetchStats
		var dayStr string

		err := rows.Scan(
			&dayStr,
			&s.Requests,
			&s.Failures,
			&s.Tokens,
			&s.Rows,
			&s.AvgDurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily fetch stats: %w", err)
		}

		s.Day, _ = time.Parse(models.DateLayout, dayStr)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// CleanupOldFetches removes fetch log entries older than the given number of days.
func (db *DB) CleanupOldFetches(olderThanDays int) (int64, error) {
	result, err := db.ExecContext(context.Background(),
		"DELETE FROM fetch_log WHERE timestamp < datetime('now', ?)",
		fmt.Sprintf("-%d days", olderThanDays),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup fetch log: %w", err)
	}
	return result.RowsAffected()
}

// parseTimestamp reads a fetch_log timestamp in either of the layouts the
// driver may hand back.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{sqlTimeLayout, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
