package anthropic

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/heycarlitos/llm-proxy/config"
	"github.com/heycarlitos/llm-proxy/services/providers"
)

const (
	ModelSonnet  = "claude-sonnet-4-6"
	ModelHaiku   = "claude-haiku-4-5-20251001"
	DefaultModel = ModelSonnet

	messagesPath = "/v1/messages"
)

// allowedModels are the only models callers may pick
var allowedModels = map[string]struct{}{
	ModelSonnet: {},
	ModelHaiku:  {},
}

// Adapter forwards requests to the Anthropic Messages API. Inbound bodies
// already use Anthropic's wire shape, so only the model is policed.
type Adapter struct {
	apiKey  string
	baseURL string
	version string
}

var _ providers.Adapter = (*Adapter)(nil)

// NewAdapter creates a new Anthropic adapter
func NewAdapter(cfg config.AnthropicConfig) *Adapter {
	return &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: cfg.Version,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return string(config.ProviderAnthropic)
}

// Kind returns the provider kind
func (a *Adapter) Kind() config.ProviderKind {
	return config.ProviderAnthropic
}

// Translate rewrites the model when it is missing or not allowed and passes
// every other field through
func (a *Adapter) Translate(req *providers.InboundRequest) (*providers.UpstreamRequest, error) {
	if _, ok := allowedModels[req.Model()]; !ok {
		req.SetModel(DefaultModel)
	}

	body, err := req.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("x-api-key", a.apiKey)
	header.Set("anthropic-version", a.version)

	return &providers.UpstreamRequest{
		URL:    a.baseURL + messagesPath,
		Header: header,
		Body:   body,
	}, nil
}

// Normalize returns the body unchanged; it is already canonical
func (a *Adapter) Normalize(raw []byte) ([]byte, error) {
	return raw, nil
}
