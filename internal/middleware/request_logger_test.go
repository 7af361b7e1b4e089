// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

// captureLogs routes the default logger into a buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(logging.NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestRequestLoggerMiddleware(t *testing.T) {
	buf := captureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, constants.FathomWebhookPath, strings.NewReader("{}"))
	req.Header.Set(constants.WebhookIDHeader, "msg_42")
	RequestLoggerMiddleware()(handler).ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "HTTP request", lines[0]["msg"])
	assert.Equal(t, "msg_42", lines[0]["webhook_id"])
	assert.Equal(t, constants.FathomWebhookPath, lines[0]["path"])
	assert.Equal(t, "HTTP response", lines[1]["msg"])
	assert.Equal(t, float64(http.StatusUnauthorized), lines[1]["status"], "first written status is reported")
}

func TestRequestLoggerMiddleware_DefaultStatus(t *testing.T) {
	buf := captureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	RequestLoggerMiddleware()(handler).ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, float64(http.StatusOK), lines[1]["status"])
	assert.NotContains(t, lines[0], "webhook_id")
}

func TestRequestLoggerMiddleware_SkipsHealthChecks(t *testing.T) {
	buf := captureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for _, path := range []string{constants.LivenessPath, constants.ReadinessPath} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		RequestLoggerMiddleware()(handler).ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Empty(t, buf.String())
}
