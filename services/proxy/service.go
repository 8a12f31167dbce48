package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/services"
	"github.com/heycarlitos/llm-proxy/services/providers"
	"go.uber.org/zap"
)

// Result is a completed upstream exchange
type Result struct {
	StatusCode int
	Body       []byte
	Provider   string
}

// ProxyService forwards one inbound body to the configured provider.
// Nothing is retried.
type ProxyService struct {
	adapter providers.Adapter
	client  *http.Client
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewProxyService creates a new ProxyService. adapter may be nil when no
// provider credential is configured; every Forward then fails with a
// configuration error.
func NewProxyService(adapter providers.Adapter, client *http.Client, metrics *observability.Metrics, logger *zap.Logger) *ProxyService {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ProxyService{
		adapter: adapter,
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
}

// Configured reports whether a provider is available
func (s *ProxyService) Configured() bool {
	return s.adapter != nil
}

// Provider returns the selected provider name, or "" when none is configured
func (s *ProxyService) Provider() string {
	if s.adapter == nil {
		return ""
	}
	return s.adapter.Name()
}

// Forward parses body, clamps max_tokens, calls the provider and normalizes
// its answer. The upstream status code is returned unchanged.
func (s *ProxyService) Forward(ctx context.Context, body []byte) (*Result, error) {
	req, err := providers.ParseInboundRequest(body)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedBody, err)
	}

	maxTokens := req.ClampMaxTokens()

	if s.adapter == nil {
		return nil, services.ErrProviderNotConfigured
	}

	upstream, err := s.adapter.Translate(req)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedBody, err)
	}

	httpReq, err := upstream.NewHTTPRequest(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to build upstream request", err)
	}

	provider := s.adapter.Name()
	start := time.Now()

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.metrics.ObserveUpstream(provider, 0, time.Since(start))
		s.logger.Warn("upstream request failed",
			zap.String("provider", provider),
			zap.Error(err))
		return nil, services.Wrap(services.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.metrics.ObserveUpstream(provider, resp.StatusCode, time.Since(start))
	if err != nil {
		s.logger.Warn("failed to read upstream response",
			zap.String("provider", provider),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, services.Wrap(services.ErrUpstreamUnavailable, err)
	}

	if !json.Valid(raw) {
		s.logger.Warn("upstream returned a non-JSON body",
			zap.String("provider", provider),
			zap.Int("status", resp.StatusCode),
			zap.String("content_type", resp.Header.Get("Content-Type")),
			zap.Int("bytes", len(raw)))
		return nil, services.Wrap(services.ErrUpstreamUnavailable,
			fmt.Errorf("upstream %s returned non-JSON body with status %d", provider, resp.StatusCode))
	}

	normalized, err := s.adapter.Normalize(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstreamUnavailable, err)
	}

	s.logger.Debug("upstream request completed",
		zap.String("provider", provider),
		zap.Int("status", resp.StatusCode),
		zap.Int("max_tokens", maxTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       normalized,
		Provider:   provider,
	}, nil
}
