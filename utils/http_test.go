package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteRawJSON(t *testing.T) {
	w := httptest.NewRecorder()
	body := []byte(`{"content":[{"type":"text","text":"hi"}]}`)

	err := WriteRawJSON(w, http.StatusCreated, body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, string(body), w.Body.String())
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"result": "success"}

	err := WriteOK(w, data)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)

	var response SuccessResponse
	err = json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	dataMap := response.Data.(map[string]interface{})
	assert.Equal(t, "success", dataMap["result"])
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteMethodNotAllowed(w, http.MethodPost, http.MethodOptions)
	require.NoError(t, err)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST, OPTIONS", w.Header().Get("Allow"))

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "Method not allowed", response.Error)
	assert.Equal(t, "method_not_allowed", response.Code)
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name         string
		write        func(w http.ResponseWriter) error
		expectedCode int
		expectedErr  string
		expectedTag  string
	}{
		{
			name: "bad request with message",
			write: func(w http.ResponseWriter) error {
				return WriteBadRequest(w, "Body inválido", nil)
			},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "Body inválido",
			expectedTag:  "bad_request",
		},
		{
			name: "bad request default message",
			write: func(w http.ResponseWriter) error {
				return WriteBadRequest(w, "", nil)
			},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "Bad request",
			expectedTag:  "bad_request",
		},
		{
			name: "not found",
			write: func(w http.ResponseWriter) error {
				return WriteNotFound(w, "")
			},
			expectedCode: http.StatusNotFound,
			expectedErr:  "Resource not found",
			expectedTag:  "not_found",
		},
		{
			name: "too many requests",
			write: func(w http.ResponseWriter) error {
				return WriteTooManyRequests(w, "Demasiadas requests. Esperá un rato.", nil)
			},
			expectedCode: http.StatusTooManyRequests,
			expectedErr:  "Demasiadas requests. Esperá un rato.",
			expectedTag:  "rate_limit_exceeded",
		},
		{
			name: "internal server error",
			write: func(w http.ResponseWriter) error {
				return WriteInternalServerError(w, "")
			},
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "Internal server error",
			expectedTag:  "internal_error",
		},
		{
			name: "bad gateway",
			write: func(w http.ResponseWriter) error {
				return WriteBadGateway(w, "Error conectando con la API")
			},
			expectedCode: http.StatusBadGateway,
			expectedErr:  "Error conectando con la API",
			expectedTag:  "bad_gateway",
		},
		{
			name: "service unavailable",
			write: func(w http.ResponseWriter) error {
				return WriteError(w, http.StatusServiceUnavailable, "not ready", nil)
			},
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "not ready",
			expectedTag:  "service_unavailable",
		},
		{
			name: "payload too large",
			write: func(w http.ResponseWriter) error {
				return WriteError(w, http.StatusRequestEntityTooLarge, "too large", nil)
			},
			expectedCode: http.StatusRequestEntityTooLarge,
			expectedErr:  "too large",
			expectedTag:  "request_too_large",
		},
		{
			name: "unmapped status",
			write: func(w http.ResponseWriter) error {
				return WriteError(w, http.StatusTeapot, "teapot", nil)
			},
			expectedCode: http.StatusTeapot,
			expectedErr:  "teapot",
			expectedTag:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, tt.write(w))
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedErr, response.Error)
			assert.Equal(t, tt.expectedTag, response.Code)
		})
	}
}

func TestWriteError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]interface{}{"retry_after": float64(3600)}

	err := WriteTooManyRequests(w, "slow down", details)
	require.NoError(t, err)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "slow down", response["error"])
	assert.Equal(t, details, response["details"])
}
