package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/delivery/http/response"
	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

// PingFunc checks one backing service.
type PingFunc func(ctx context.Context) error

type Handler struct {
	runs   repository.RunRepository
	checks map[string]PingFunc
	logger *zap.Logger
}

// NewHandler serves run state from runs. checks is keyed by the name
// reported in the health payload ("postgres", "redis").
func NewHandler(runs repository.RunRepository, checks map[string]PingFunc, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runs: runs, checks: checks, logger: logger}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthStatus := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("service", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}
	if len(names) == 0 {
		healthStatus["status"] = "ok"
	}

	if !healthy {
		h.writeJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	h.writeJSON(w, http.StatusOK, healthStatus)
}

func (h *Handler) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	main, err := h.runs.LatestMain(r.Context())
	if errors.Is(err, repository.ErrNotFound) {
		h.writeJSONError(w, "No run recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load latest main run", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	children, err := h.runs.ScraperRuns(r.Context(), main.ID)
	if err != nil {
		h.logger.Error("failed to load scraper runs", zap.Int64("main_run_id", main.ID), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, toMainRunResponse(main, children))
}

func toMainRunResponse(m *entity.MainRun, children []*entity.ScraperRun) response.MainRunResponse {
	resp := response.MainRunResponse{
		ID:        m.ID,
		Status:    string(m.Status),
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
		DurationS: m.DurationS,
		TotalSeen: m.TotalSeen,
		TotalNew:  m.TotalNew,
		Error:     m.Error,
		Scrapers:  make([]response.ScraperRunResponse, 0, len(children)),
	}
	for _, c := range children {
		resp.Scrapers = append(resp.Scrapers, response.ScraperRunResponse{
			ID:        c.ID,
			Source:    string(c.Source),
			Status:    string(c.Status),
			StartedAt: c.StartedAt,
			EndedAt:   c.EndedAt,
			DurationS: c.DurationS,
			TotalSeen: c.TotalSeen,
			TotalNew:  c.TotalNew,
			Error:     c.Error,
			Note:      c.Note,
		})
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
