package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

const (
	readyTimeout = 5 * time.Second
	// maxDays bounds ?days so one request cannot drain the daily quota.
	maxDays = 3650
)

type handlers struct {
	svc         Service
	checks      map[string]HealthChecker
	defaultDays int
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// SeriesResponse is the body of the series endpoints.
type SeriesResponse struct {
	PropertyID string                  `json:"property_id"`
	StartDate  string                  `json:"start_date"`
	EndDate    string                  `json:"end_date"`
	Series     models.NormalizedSeries `json:"series"`
	Rows       int                     `json:"rows"`
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// series handles GET /api/v1/series?metrics=a,b&dimensions=date&start=&end=&property=
func (h *handlers) series(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metrics := splitList(q.Get("metrics"))
	if len(metrics) == 0 {
		writeErrorJSON(w, http.StatusBadRequest, "MISSING_METRICS", "query parameter 'metrics' is required")
		return
	}

	rng, err := models.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}

	property := q.Get("property")
	if property == "" {
		property = h.svc.PropertyID()
	}

	series, err := h.svc.Fetch(r.Context(), property, metrics, splitList(q.Get("dimensions")), rng.Start, rng.End)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newSeriesResponse(property, rng, series))
}

// dailyUsers handles GET /api/v1/daily-users?days=N
func (h *handlers) dailyUsers(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}

	series, err := h.svc.FetchDailyUsers(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := SeriesResponse{PropertyID: h.svc.PropertyID(), Series: series, Rows: len(series)}
	if len(series) > 0 {
		resp.StartDate = series[0].Date
		resp.EndDate = series[len(series)-1].Date
	}
	writeJSON(w, http.StatusOK, resp)
}

// overview handles GET /api/v1/overview?days=N
func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}

	ov, err := h.svc.Overview(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// quota handles GET /api/v1/quota
func (h *handlers) quota(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.QuotaSnapshot())
}

func (h *handlers) parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.defaultDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 || days > maxDays {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_DAYS",
			"query parameter 'days' must be an integer between 1 and "+strconv.Itoa(maxDays))
		return 0, false
	}
	return days, true
}

func newSeriesResponse(property string, rng models.DateRange, series models.NormalizedSeries) SeriesResponse {
	return SeriesResponse{
		PropertyID: property,
		StartDate:  rng.Start.Format(models.DateLayout),
		EndDate:    rng.End.Format(models.DateLayout),
		Series:     series,
		Rows:       len(series),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// errorStatus maps pipeline errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var (
		invalidRange *models.InvalidRangeError
		invalidArg   *models.InvalidArgumentError
		quota        *models.QuotaExceededError
		auth         *models.AuthError
		exhausted    *models.RetriesExhaustedError
		malformed    *models.MalformedResponseError
	)

	switch {
	case errors.As(err, &invalidRange):
		return http.StatusBadRequest, "INVALID_RANGE"
	case errors.As(err, &invalidArg):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.As(err, &quota):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED"
	case errors.As(err, &auth):
		return http.StatusBadGateway, "UPSTREAM_AUTH"
	case errors.As(err, &exhausted):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	case errors.As(err, &malformed):
		return http.StatusBadGateway, "UPSTREAM_MALFORMED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "error", err)
	}
	writeErrorJSON(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
