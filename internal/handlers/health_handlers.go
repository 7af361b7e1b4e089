// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

const readinessTimeout = 2 * time.Second

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	store    domain.ReadinessChecker
	handlers []interface{ HandlerReady() bool }
}

func NewHealthHandler(store domain.ReadinessChecker, handlers ...interface{ HandlerReady() bool }) *HealthHandler {
	return &HealthHandler{store: store, handlers: handlers}
}

// Livez always answers while the process is running. As this endpoint is expected to be
// used as a Kubernetes liveness check, the service must self-terminate on non-recoverable
// errors instead.
func (h *HealthHandler) Livez(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("OK\n"))
}

// Readyz answers 200 only when every handler is wired and the store responds.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, handler := range h.handlers {
		if !handler.HandlerReady() {
			http.Error(w, domain.ErrServiceUnavailable.Error(), http.StatusServiceUnavailable)
			return
		}
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.store.IsReady(ctx); err != nil {
			slog.WarnContext(ctx, "store not ready", logging.ErrKey, err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}

	_, _ = w.Write([]byte("OK\n"))
}
