package db

import (
	"testing"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

func sampleRecord(runID string) *models.FetchRecord {
	return &models.FetchRecord{
		RunID:           runID,
		PropertyID:      "123456789",
		StartDate:       "2024-01-01",
		EndDate:         "2024-01-31",
		Granularity:     "daily",
		Metrics:         "activeUsers,totalUsers",
		EstimatedTokens: 330,
		Attempts:        1,
		DurationMs:      120,
		Rows:            31,
	}
}

func TestInsertFetchRecord(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	rec := sampleRecord("run-1")
	if err := db.InsertFetchRecord(rec); err != nil {
		t.Fatalf("InsertFetchRecord() failed: %v", err)
	}

	if rec.ID == 0 {
		t.Error("InsertFetchRecord() should set ID")
	}
}

func TestInsertFetchRecord_WithError(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	rec := sampleRecord("run-1")
	rec.Status = models.FetchStatusFailed
	rec.Error = "upstream authentication failed (401)"

	if err := db.InsertFetchRecord(rec); err != nil {
		t.Fatalf("InsertFetchRecord() with error failed: %v", err)
	}

	recent, err := db.GetRecentFetches(1)
	if err != nil {
		t.Fatalf("GetRecentFetches() failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recent))
	}
	if recent[0].Status != models.FetchStatusFailed {
		t.Errorf("Expected failed status, got %s", recent[0].Status)
	}
	if recent[0].Error != rec.Error {
		t.Errorf("Expected error %q, got %q", rec.Error, recent[0].Error)
	}
}

func TestGetRecentFetches(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 5 {
		rec := sampleRecord("run-1")
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		rec.Rows = i
		if err := db.InsertFetchRecord(rec); err != nil {
			t.Fatalf("InsertFetchRecord() failed: %v", err)
		}
	}

	records, err := db.GetRecentFetches(3)
	if err != nil {
		t.Fatalf("GetRecentFetches() failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Rows != 4 {
		t.Errorf("Expected newest record first, got rows=%d", records[0].Rows)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be parsed")
	}
	if records[0].PropertyID != "123456789" {
		t.Errorf("Expected property id to round-trip, got %s", records[0].PropertyID)
	}
}

func TestGetDailyUsage(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	today := time.Now().UTC()
	yesterday := today.AddDate(0, 0, -1)

	records := []struct {
		ts     time.Time
		status string
		tokens int
	}{
		{today, models.FetchStatusOK, 100},
		{today, models.FetchStatusOK, 250},
		{today, models.FetchStatusFailed, 999},
		{yesterday, models.FetchStatusOK, 5000},
	}
	for _, r := range records {
		rec := sampleRecord("run-1")
		rec.Timestamp = r.ts
		rec.Status = r.status
		rec.EstimatedTokens = r.tokens
		if err := db.InsertFetchRecord(rec); err != nil {
			t.Fatalf("InsertFetchRecord() failed: %v", err)
		}
	}

	usage, err := db.GetDailyUsage(today)
	if err != nil {
		t.Fatalf("GetDailyUsage() failed: %v", err)
	}

	if usage.Requests != 2 {
		t.Errorf("Expected 2 successful requests today, got %d", usage.Requests)
	}
	if usage.Tokens != 350 {
		t.Errorf("Expected 350 tokens today, got %d", usage.Tokens)
	}
	if !usage.Day.Equal(models.TruncateDay(today)) {
		t.Errorf("Expected day %v, got %v", models.TruncateDay(today), usage.Day)
	}
}

func TestGetDailyUsage_CountsChargedFailures(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	today := time.Now().UTC()

	ok := sampleRecord("run-3")
	ok.Timestamp = today
	ok.EstimatedTokens = 100

	// Upstream answered and was charged, but the response was rejected.
	malformed := sampleRecord("run-3")
	malformed.Timestamp = today
	malformed.Status = models.FetchStatusFailed
	malformed.Error = "malformed response"
	malformed.EstimatedTokens = 40
	malformed.Charged = true

	rejected := sampleRecord("run-3")
	rejected.Timestamp = today
	rejected.Status = models.FetchStatusFailed
	rejected.EstimatedTokens = 999

	for _, rec := range []*models.FetchRecord{ok, malformed, rejected} {
		if err := db.InsertFetchRecord(rec); err != nil {
			t.Fatalf("InsertFetchRecord() failed: %v", err)
		}
	}

	usage, err := db.GetDailyUsage(today)
	if err != nil {
		t.Fatalf("GetDailyUsage() failed: %v", err)
	}
	if usage.Requests != 2 {
		t.Errorf("Expected 2 charged requests, got %d", usage.Requests)
	}
	if usage.Tokens != 140 {
		t.Errorf("Expected 140 charged tokens, got %d", usage.Tokens)
	}

	recent, err := db.GetRecentFetches(10)
	if err != nil {
		t.Fatalf("GetRecentFetches() failed: %v", err)
	}
	var charged int
	for _, r := range recent {
		if r.Charged {
			charged++
		}
	}
	if charged != 2 {
		t.Errorf("Expected 2 charged records, got %d", charged)
	}
}

func TestGetDailyUsage_Empty(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	usage, err := db.GetDailyUsage(time.Now())
	if err != nil {
		t.Fatalf("GetDailyUsage() failed: %v", err)
	}
	if usage.Requests != 0 || usage.Tokens != 0 {
		t.Errorf("Expected zero usage, got %+v", usage)
	}
}

func TestGetDailyFetchStats(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	now := time.Now().UTC()
	for i, status := range []string{models.FetchStatusOK, models.FetchStatusOK, models.FetchStatusFailed} {
		rec := sampleRecord("run-2")
		rec.Timestamp = now.Add(-time.Duration(i) * time.Second)
		rec.Status = status
		if err := db.InsertFetchRecord(rec); err != nil {
			t.Fatalf("InsertFetchRecord() failed: %v", err)
		}
	}

	stats, err := db.GetDailyFetchStats(7)
	if err != nil {
		t.Fatalf("GetDailyFetchStats() failed: %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("Expected at least one day of stats")
	}

	var requests, failures int
	for _, s := range stats {
		requests += s.Requests
		failures += s.Failures
	}
	if requests != 3 {
		t.Errorf("Expected 3 requests, got %d", requests)
	}
	if failures != 1 {
		t.Errorf("Expected 1 failure, got %d", failures)
	}
}

func TestCleanupOldFetches(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	old := sampleRecord("old")
	old.Timestamp = time.Now().AddDate(0, 0, -60)
	recent := sampleRecord("recent")

	for _, rec := range []*models.FetchRecord{old, recent} {
		if err := db.InsertFetchRecord(rec); err != nil {
			t.Fatalf("InsertFetchRecord() failed: %v", err)
		}
	}

	deleted, err := db.CleanupOldFetches(30)
	if err != nil {
		t.Fatalf("CleanupOldFetches() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted record, got %d", deleted)
	}

	records, err := db.GetRecentFetches(10)
	if err != nil {
		t.Fatalf("GetRecentFetches() failed: %v", err)
	}
	if len(records) != 1 || records[0].RunID != "recent" {
		t.Errorf("Expected only the recent record to remain, got %+v", records)
	}
}

func TestNullString(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", false},
		{"test", true},
	}

	for _, tt := range tests {
		result := nullString(tt.input)
		if result.Valid != tt.expected {
			t.Errorf("nullString(%q).Valid = %v, want %v", tt.input, result.Valid, tt.expected)
		}
	}
}
