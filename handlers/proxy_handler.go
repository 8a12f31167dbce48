package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/middleware"
	"github.com/heycarlitos/llm-proxy/services"
	"github.com/heycarlitos/llm-proxy/services/proxy"
	"github.com/heycarlitos/llm-proxy/services/ratelimit"
	"github.com/heycarlitos/llm-proxy/utils"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps the inbound body when no limit is configured
const DefaultMaxBodyBytes = 1 << 20

// RateLimiter decides whether a caller may spend one more request
type RateLimiter interface {
	Check(ctx context.Context, callerID string) (*ratelimit.Result, error)
}

// Forwarder relays a raw chat body to the configured provider
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (*proxy.Result, error)
}

// ProxyHandler serves the browser-facing /proxy endpoint
type ProxyHandler struct {
	limiter      RateLimiter
	forwarder    Forwarder
	metrics      *observability.Metrics
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewProxyHandler creates a new ProxyHandler
func NewProxyHandler(limiter RateLimiter, forwarder Forwarder, metrics *observability.Metrics, maxBodyBytes int64, logger *zap.Logger) *ProxyHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &ProxyHandler{
		limiter:      limiter,
		forwarder:    forwarder,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleProxy handles POST /proxy.
// The quota is spent before the body is read, so malformed bodies and
// failed upstream calls still count against the caller.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordRequest(observability.OutcomeMethodDenied)
		if err := utils.WriteMethodNotAllowed(w, http.MethodPost, http.MethodOptions); err != nil {
			h.logger.Error("failed to write method not allowed response", zap.Error(err))
		}
		return
	}

	ctx := r.Context()
	callerID := middleware.GetCallerIDFromContext(ctx)
	if callerID == "" {
		callerID = middleware.ResolveCallerID(r)
	}

	decision, err := h.limiter.Check(ctx, callerID)
	if err != nil {
		h.fail(w, err)
		return
	}
	setRateLimitHeaders(w, decision)
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.ResetAt)))
		h.fail(w, services.ErrRateLimitExceeded)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.fail(w, services.Wrap(services.ErrMalformedBody, err))
		return
	}

	result, err := h.forwarder.Forward(ctx, body)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.metrics.RecordRequest(observability.OutcomeSuccess)
	if err := utils.WriteRawJSON(w, result.StatusCode, result.Body); err != nil {
		h.logger.Error("failed to write proxy response",
			zap.String("provider", result.Provider),
			zap.Error(err))
	}
}

func (h *ProxyHandler) fail(w http.ResponseWriter, err error) {
	h.metrics.RecordRequest(outcomeFor(err))
	HandleServiceError(w, err, h.logger)
}

func setRateLimitHeaders(w http.ResponseWriter, decision *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

func retryAfterSeconds(resetAt time.Time) int {
	secs := int(time.Until(resetAt).Seconds() + 0.5)
	if secs < 1 {
		return 1
	}
	return secs
}
