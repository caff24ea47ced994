package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("apiserver", "1.0.0", "json", &buf)

	logger.Info("test message")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "apiserver", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.NotContains(t, entry, "request_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("mailer", "1.0.0", "text", &buf)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "service=mailer")
}

func TestSetup_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("apiserver", "1.0.0", "json", &buf)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	logger.With("component", "auth").InfoContext(ctx, "scoped")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "auth", entry["component"])
}

func TestLogError_Oops(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("apiserver", "1.0.0", "json", &buf)
	err := oops.In("auth").Code("USER_SAVE_FAILED").With("user_id", "u-1").Wrap(errors.New("boom"))

	LogError(context.Background(), logger, "save failed", err)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "USER_SAVE_FAILED", entry["code"])
	assert.Equal(t, "auth", entry["domain"])
	fields, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u-1", fields["user_id"])
}

func TestLogError_Plain(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("apiserver", "1.0.0", "json", &buf)

	LogError(context.Background(), logger, "failed", errors.New("plain"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "plain", entry["error"])
	assert.NotContains(t, entry, "code")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("apiserver", "1.0.0", "json", &buf)
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/api/auth/login", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
}
