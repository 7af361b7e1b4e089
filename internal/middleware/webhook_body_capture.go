// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

// WebhookBodyContextKey is the context key for storing raw webhook body
type WebhookBodyContextKey struct{}

// WebhookBodyCaptureMiddleware captures the raw POST body sent to path and stores it in
// the request context, so the signature is checked against the exact received bytes.
// Bodies larger than maxBytes are rejected with 413 before any handler runs.
func WebhookBodyCaptureMiddleware(path string, maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			reader := r.Body
			if maxBytes > 0 {
				reader = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			body, err := io.ReadAll(reader)
			_ = r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					slog.WarnContext(r.Context(), "webhook body exceeds limit", "limit", tooLarge.Limit)
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				slog.With(logging.ErrKey, err).WarnContext(r.Context(), "failed to read webhook body")
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}

			// The next handler may still read the body normally.
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := context.WithValue(r.Context(), WebhookBodyContextKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRawBodyFromContext extracts the raw body from the context
func GetRawBodyFromContext(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(WebhookBodyContextKey{}).([]byte)
	return body, ok
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.NewWebhookErrorResponse(message))
}
