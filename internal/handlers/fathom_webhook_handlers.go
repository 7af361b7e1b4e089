// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

// MeetingIngester runs a webhook delivery through the ingestion pipeline.
type MeetingIngester interface {
	Ingest(ctx context.Context, delivery models.WebhookDelivery) (*models.IngestResult, error)
	ServiceReady() bool
}

// FathomWebhookHandler is the HTTP endpoint Fathom posts "new meeting content ready" deliveries to.
type FathomWebhookHandler struct {
	ingester     MeetingIngester
	maxBodyBytes int64
}

// NewFathomWebhookHandler creates a new FathomWebhookHandler. A non-positive maxBodyBytes
// means constants.DefaultWebhookMaxBodyBytes.
func NewFathomWebhookHandler(ingester MeetingIngester, maxBodyBytes int64) *FathomWebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}
	return &FathomWebhookHandler{
		ingester:     ingester,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *FathomWebhookHandler) HandlerReady() bool {
	return h.ingester != nil && h.ingester.ServiceReady()
}

// ServeHTTP implements http.Handler.
func (h *FathomWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receivedAt := time.Now().UTC()

	if r.Method != http.MethodPost {
		ctx = logging.AppendCtx(ctx, slog.String(logging.StateKey, string(models.IngestStateRejectedMethod)))
		slog.DebugContext(ctx, "webhook rejected: method not allowed")
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(ctx, w, http.StatusMethodNotAllowed, models.NewWebhookErrorResponse("method not allowed"))
		return
	}

	body, ok := middleware.GetRawBodyFromContext(ctx)
	if !ok {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(ctx, w, http.StatusRequestEntityTooLarge, models.NewWebhookErrorResponse("request body too large"))
				return
			}
			slog.ErrorContext(ctx, "failed to read webhook body", logging.ErrKey, err)
			writeJSON(ctx, w, http.StatusBadRequest, models.NewWebhookErrorResponse("failed to read request body"))
			return
		}
	}

	result, err := h.ingester.Ingest(ctx, models.WebhookDelivery{
		Headers:    r.Header.Clone(),
		Body:       body,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		status, message := statusForError(err)
		writeJSON(ctx, w, status, models.NewWebhookErrorResponse(message))
		return
	}

	ctx = logging.AppendCtx(ctx, slog.String(logging.StateKey, string(models.IngestStateResponded)))
	slog.DebugContext(ctx, "webhook handled",
		"skipped", result.Skipped,
		"meeting_uid", result.MeetingUID,
		"participants", result.Participants,
	)
	writeJSON(ctx, w, http.StatusOK, models.NewWebhookResponse(result))
}

// statusForError maps a pipeline error to the status the provider sees. Store details
// are never echoed back.
func statusForError(err error) (int, string) {
	switch domain.GetErrorType(err) {
	case domain.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest, err.Error()
	case domain.ErrorTypeNotFound:
		return http.StatusNotFound, err.Error()
	case domain.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "error writing response", logging.ErrKey, err)
	}
}
