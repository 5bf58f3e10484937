package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// Service is the pipeline surface the API serves.
type Service interface {
	PropertyID() string
	Fetch(ctx context.Context, propertyID string, metrics, dimensions []string, start, end time.Time) (models.NormalizedSeries, error)
	FetchDailyUsers(ctx context.Context, days int) (models.NormalizedSeries, error)
	Overview(ctx context.Context, days int) (*models.Overview, error)
	QuotaSnapshot() models.QuotaSnapshot
}

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the router. Metrics and health checks are
// optional.
type Deps struct {
	Service Service
	Metrics http.Handler
	Checks  map[string]HealthChecker
	// DefaultDays is used when a request omits ?days.
	DefaultDays int
}

// NewRouter wires all routes.
func NewRouter(d Deps) *chi.Mux {
	h := &handlers{svc: d.Service, checks: d.Checks, defaultDays: d.DefaultDays}
	if h.defaultDays <= 0 {
		h.defaultDays = 30
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/series", h.series)
		r.Get("/daily-users", h.dailyUsers)
		r.Get("/overview", h.overview)
		r.Get("/quota", h.quota)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
