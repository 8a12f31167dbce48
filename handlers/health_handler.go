package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/heycarlitos/llm-proxy/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// StorePinger reports whether the rate limit store is reachable
type StorePinger interface {
	Ready(ctx context.Context) error
}

// ProviderStatus reports the provider selected at startup
type ProviderStatus interface {
	Configured() bool
	Provider() string
}

// StatusInfo is the static part of the status response
type StatusInfo struct {
	Environment string
	Backend     string
	Capacity    int
	Window      time.Duration
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse represents the status endpoint response
type StatusResponse struct {
	Version     string          `json:"version"`
	Environment string          `json:"environment"`
	Provider    string          `json:"provider"`
	RateLimit   RateLimitStatus `json:"rate_limit"`
}

// RateLimitStatus describes the active quota
type RateLimitStatus struct {
	Backend       string `json:"backend"`
	Capacity      int    `json:"capacity"`
	WindowSeconds int64  `json:"window_seconds"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store    StorePinger
	provider ProviderStatus
	info     StatusInfo
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil store or provider
// makes the service report not ready.
func NewHealthHandler(store StorePinger, provider ProviderStatus, info StatusInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:    store,
		provider: provider,
		info:     info,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz.
// Liveness only; always 200 while the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	switch {
	case h.store == nil:
		checks["rate_limit_store"] = "not_initialized"
		ready = false
	default:
		if err := h.store.Ready(ctx); err != nil {
			h.logger.Warn("rate limit store health check failed", zap.Error(err))
			checks["rate_limit_store"] = "unhealthy"
			ready = false
		} else {
			checks["rate_limit_store"] = "healthy"
		}
	}

	if h.provider == nil || !h.provider.Configured() {
		checks["provider"] = "none_configured"
		ready = false
	} else {
		checks["provider"] = "configured"
	}

	response := ReadinessResponse{Status: "ready", Checks: checks}
	status := http.StatusOK
	if !ready {
		response.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, status, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	provider := "none"
	if h.provider != nil && h.provider.Configured() {
		provider = h.provider.Provider()
	}

	response := StatusResponse{
		Version:     Version,
		Environment: h.info.Environment,
		Provider:    provider,
		RateLimit: RateLimitStatus{
			Backend:       h.info.Backend,
			Capacity:      h.info.Capacity,
			WindowSeconds: int64(h.info.Window / time.Second),
		},
	}

	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}
