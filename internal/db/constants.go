package db

// SQL fragments shared by the fetch log queries
const (
	// sqlTimeLayout is the timestamp format understood by SQLite date functions
	sqlTimeLayout = "2006-01-02 15:04:05"

	// sqlDayFilterClause restricts fetch_log rows to a window of recent days
	sqlDayFilterClause = "WHERE timestamp >= datetime('now', ?)"
)
