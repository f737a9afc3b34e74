package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/delivery/http/handler"
	"github.com/user/imo-scraper/internal/delivery/http/middleware"
	"github.com/user/imo-scraper/pkg/metrics"
)

// New builds the ops router. gatherer backs /metrics; pass
// prometheus.DefaultGatherer in main.
func New(h *handler.Handler, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Get("/runs/latest", h.HandleLatestRun)
	})

	return r
}
