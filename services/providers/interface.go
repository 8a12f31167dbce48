package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/heycarlitos/llm-proxy/config"
)

// Adapter translates inbound requests into one provider's wire format and
// brings that provider's responses back to the canonical shape.
type Adapter interface {
	// Name returns the provider name used in logs and metrics
	Name() string

	// Kind identifies the provider
	Kind() config.ProviderKind

	// Translate builds the upstream call. max_tokens must already be clamped.
	Translate(req *InboundRequest) (*UpstreamRequest, error)

	// Normalize converts a successfully parsed upstream body. Bodies that do
	// not match the provider's expected shape are returned unchanged.
	Normalize(raw []byte) ([]byte, error)
}

// UpstreamRequest is a fully built provider call
type UpstreamRequest struct {
	URL    string
	Header http.Header
	Body   []byte
}

// NewHTTPRequest creates the POST request for the upstream call
func (u *UpstreamRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(u.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	for k, values := range u.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// TextBlock is one element of the canonical response content
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CanonicalResponse is the response shape the web client consumes
type CanonicalResponse struct {
	Content []TextBlock `json:"content"`
}

// NewCanonicalResponse wraps text as a single text block
func NewCanonicalResponse(text string) CanonicalResponse {
	return CanonicalResponse{Content: []TextBlock{{Type: "text", Text: text}}}
}
