package openrouter

import (
	"testing"

	"github.com/heycarlitos/llm-proxy/config"
	"github.com/heycarlitos/llm-proxy/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdapter() *Adapter {
	return NewAdapter(config.OpenRouterConfig{
		APIKey:  "sk-or-test",
		BaseURL: "https://openrouter.ai/api/v1",
		Referer: "https://contaleacarlitos.vercel.app",
		Title:   "Contale a Carlitos",
	}, zap.NewNop())
}

func translate(t *testing.T, body string) *providers.UpstreamRequest {
	t.Helper()
	req, err := providers.ParseInboundRequest([]byte(body))
	require.NoError(t, err)
	req.ClampMaxTokens()

	up, err := newTestAdapter().Translate(req)
	require.NoError(t, err)
	return up
}

func TestAdapter_Identity(t *testing.T) {
	a := newTestAdapter()

	assert.Equal(t, "openrouter", a.Name())
	assert.Equal(t, config.ProviderOpenRouter, a.Kind())
}

func TestAdapter_TranslateHeaders(t *testing.T) {
	up := translate(t, `{}`)

	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", up.URL)
	assert.Equal(t, "application/json", up.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer sk-or-test", up.Header.Get("Authorization"))
	assert.Equal(t, "https://contaleacarlitos.vercel.app", up.Header.Get("HTTP-Referer"))
	assert.Equal(t, "Contale a Carlitos", up.Header.Get("X-Title"))
	assert.Empty(t, up.Header.Get("x-api-key"))
}

func TestAdapter_TranslateOmitsEmptyAttribution(t *testing.T) {
	a := NewAdapter(config.OpenRouterConfig{APIKey: "k", BaseURL: "https://openrouter.ai/api/v1"}, zap.NewNop())
	req, err := providers.ParseInboundRequest([]byte(`{}`))
	require.NoError(t, err)

	up, err := a.Translate(req)

	require.NoError(t, err)
	assert.NotContains(t, up.Header, "Http-Referer")
	assert.NotContains(t, up.Header, "X-Title")
}

func TestAdapter_TranslateBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "flattens array content",
			body: `{"model":"claude-haiku-4-5-20251001","max_tokens":400,"system":"dropped",` +
				`"messages":[{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}`,
			want: `{"model":"anthropic/claude-sonnet-4-5","max_tokens":400,` +
				`"messages":[{"role":"user","content":"a\nb"}]}`,
		},
		{
			name: "string content unchanged",
			body: `{"messages":[{"role":"assistant","content":"hola"},{"role":"user","content":"chau"}]}`,
			want: `{"model":"anthropic/claude-sonnet-4-5","max_tokens":1000,` +
				`"messages":[{"role":"assistant","content":"hola"},{"role":"user","content":"chau"}]}`,
		},
		{
			name: "missing messages",
			body: `{"max_tokens":2000}`,
			want: `{"model":"anthropic/claude-sonnet-4-5","max_tokens":1000,"messages":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := translate(t, tt.body)
			assert.JSONEq(t, tt.want, string(up.Body))
		})
	}
}

func TestAdapter_TranslateRejectsNonArrayMessages(t *testing.T) {
	req, err := providers.ParseInboundRequest([]byte(`{"messages":{"role":"user"}}`))
	require.NoError(t, err)

	_, err = newTestAdapter().Translate(req)

	assert.Error(t, err)
}

func TestAdapter_Normalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "choice content becomes canonical",
			raw:  `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`,
			want: `{"content":[{"type":"text","text":"hi"}]}`,
		},
		{
			name: "empty content passes through",
			raw:  `{"choices":[{"message":{"content":""}}]}`,
			want: `{"choices":[{"message":{"content":""}}]}`,
		},
		{
			name: "error body passes through",
			raw:  `{"error":{"message":"Rate limit exceeded","code":429}}`,
			want: `{"error":{"message":"Rate limit exceeded","code":429}}`,
		},
		{
			name: "empty choices passes through",
			raw:  `{"choices":[]}`,
			want: `{"choices":[]}`,
		},
		{
			name: "non-string content passes through",
			raw:  `{"choices":[{"message":{"content":[{"type":"text","text":"x"}]}}]}`,
			want: `{"choices":[{"message":{"content":[{"type":"text","text":"x"}]}}]}`,
		},
		{
			name: "array body passes through",
			raw:  `[1,2,3]`,
			want: `[1,2,3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestAdapter().Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}
