package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/heycarlitos/llm-proxy/config"
	"github.com/heycarlitos/llm-proxy/services/providers"
	"go.uber.org/zap"
)

const (
	// Model is the only model requested through OpenRouter
	Model = "anthropic/claude-sonnet-4-5"

	completionsPath = "/chat/completions"
)

// chatRequest is the OpenAI-style body OpenRouter expects
type chatRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []providers.Message `json:"messages"`
}

// chatResponse holds the one field the proxy reads back
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Adapter forwards requests to OpenRouter's chat completions endpoint
type Adapter struct {
	apiKey  string
	baseURL string
	referer string
	title   string
	logger  *zap.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// NewAdapter creates a new OpenRouter adapter
func NewAdapter(cfg config.OpenRouterConfig, logger *zap.Logger) *Adapter {
	return &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		referer: cfg.Referer,
		title:   cfg.Title,
		logger:  logger,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return string(config.ProviderOpenRouter)
}

// Kind returns the provider kind
func (a *Adapter) Kind() config.ProviderKind {
	return config.ProviderOpenRouter
}

// Translate converts the inbound body to an OpenAI-style chat request.
// The caller's model is ignored and array content is flattened to text.
func (a *Adapter) Translate(req *providers.InboundRequest) (*providers.UpstreamRequest, error) {
	messages, err := req.Messages()
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Content = providers.FlattenContent(messages[i].Content)
	}

	body, err := json.Marshal(chatRequest{
		Model:     Model,
		MaxTokens: req.MaxTokens(),
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openrouter request: %w", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+a.apiKey)
	if a.referer != "" {
		header.Set("HTTP-Referer", a.referer)
	}
	if a.title != "" {
		header.Set("X-Title", a.title)
	}

	return &providers.UpstreamRequest{
		URL:    a.baseURL + completionsPath,
		Header: header,
		Body:   body,
	}, nil
}

// Normalize maps choices[0].message.content to the canonical shape when it
// is a non-empty string. Error bodies and other shapes pass through.
func (a *Adapter) Normalize(raw []byte) ([]byte, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		a.logger.Debug("openrouter response passed through", zap.Int("bytes", len(raw)))
		return raw, nil
	}

	var content string
	if err := json.Unmarshal(resp.Choices[0].Message.Content, &content); err != nil || content == "" {
		a.logger.Debug("openrouter response has no text content, passed through")
		return raw, nil
	}

	out, err := json.Marshal(providers.NewCanonicalResponse(content))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canonical response: %w", err)
	}
	return out, nil
}
