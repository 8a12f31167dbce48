package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MaxTokensCeiling is the largest max_tokens passed through unchanged
	MaxTokensCeiling = 1500

	// DefaultMaxTokens replaces absent or out-of-range max_tokens values
	DefaultMaxTokens = 1000
)

// ErrNotJSONObject is returned when the request body is valid JSON but not an object
var ErrNotJSONObject = errors.New("request body must be a JSON object")

// InboundRequest is the browser's request body. Every top-level field is kept
// as raw JSON so fields the proxy does not know about reach the primary
// provider untouched.
type InboundRequest struct {
	fields map[string]json.RawMessage
}

// ParseInboundRequest decodes a request body that must be a JSON object
func ParseInboundRequest(body []byte) (*InboundRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotJSONObject
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	// a literal null decodes without error
	if fields == nil {
		return nil, ErrNotJSONObject
	}
	return &InboundRequest{fields: fields}, nil
}

// Model returns the requested model, or "" when absent or not a string
func (r *InboundRequest) Model() string {
	var model string
	if raw, ok := r.fields["model"]; ok {
		_ = json.Unmarshal(raw, &model)
	}
	return model
}

// SetModel overwrites the model field
func (r *InboundRequest) SetModel(model string) {
	r.fields["model"] = mustMarshal(model)
}

// MaxTokens returns the integer max_tokens value, or 0 when it is absent or
// not an integer
func (r *InboundRequest) MaxTokens() int {
	raw, ok := r.fields["max_tokens"]
	if !ok {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

// ClampMaxTokens normalizes max_tokens in place and returns the result.
// Absent, zero, negative, non-integer and over-ceiling values become 1000.
func (r *InboundRequest) ClampMaxTokens() int {
	n := r.MaxTokens()
	if n <= 0 || n > MaxTokensCeiling {
		n = DefaultMaxTokens
	}
	r.fields["max_tokens"] = json.RawMessage(strconv.Itoa(n))
	return n
}

// Field returns a raw top-level field
func (r *InboundRequest) Field(name string) (json.RawMessage, bool) {
	raw, ok := r.fields[name]
	return raw, ok
}

// MarshalJSON encodes every field, including ones the proxy never inspected
func (r *InboundRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// Message is one conversation turn with its role and content kept raw
type Message struct {
	Role    json.RawMessage `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Messages decodes the messages array. A missing, null, false, zero or
// empty-string field yields an empty slice; elements that are not objects
// become empty messages.
func (r *InboundRequest) Messages() ([]Message, error) {
	raw, ok := r.fields["messages"]
	if !ok || isFalsy(raw) {
		return []Message{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("messages must be an array: %w", err)
	}

	messages := make([]Message, 0, len(items))
	for _, item := range items {
		var m Message
		if err := json.Unmarshal(item, &m); err != nil {
			m = Message{}
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// FlattenContent turns an array of content parts into the text of its
// "text" parts joined by newlines. Any other content is returned as is.
func FlattenContent(content json.RawMessage) json.RawMessage {
	var parts []json.RawMessage
	if len(content) == 0 || isNull(content) || json.Unmarshal(content, &parts) != nil {
		return content
	}

	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		var p struct {
			Type json.RawMessage `json:"type"`
			Text json.RawMessage `json:"text"`
		}
		if json.Unmarshal(part, &p) != nil {
			continue
		}
		var partType string
		if json.Unmarshal(p.Type, &partType) != nil || partType != "text" {
			continue
		}
		texts = append(texts, textValue(p.Text))
	}

	return mustMarshal(strings.Join(texts, "\n"))
}

// textValue renders a part's text field the way string joining would:
// missing or null is empty, strings are unquoted, anything else is its JSON.
func textValue(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func isFalsy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "0", `""`:
		return true
	}
	return false
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("providers: marshal %T: %v", v, err))
	}
	return b
}
