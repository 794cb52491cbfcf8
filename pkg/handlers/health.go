package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/config"
	"github.com/ekaya-inc/cleansing-engine/pkg/logging"
)

// readyTimeout bounds all dependency checks of one /ready request.
const readyTimeout = 3 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ReadyResponse reports the state of each backing service.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck probes one dependency such as PostgreSQL or Redis.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check, readiness and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks may be nil.
func NewHealthHandler(cfg *config.Config, checks map[string]HealthCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, checks: checks, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Liveness only; it never touches a backing service.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready requests.
// Returns 503 when any dependency check fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := ReadyResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("Readiness check failed",
				zap.String("check", name),
				zap.String("error", logging.SanitizeError(err)))
			response.Checks[name] = "unavailable"
			response.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "ok"
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "cleansing-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
