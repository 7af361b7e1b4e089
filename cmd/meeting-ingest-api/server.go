// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

// newHTTPHandler builds the routed, instrumented handler chain.
func newHTTPHandler(webhookHandler *handlers.FathomWebhookHandler, healthHandler *handlers.HealthHandler, maxBodyBytes int64) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(constants.FathomWebhookPath, webhookHandler)
	mux.HandleFunc("GET "+constants.LivenessPath, healthHandler.Livez)
	mux.HandleFunc("GET "+constants.ReadinessPath, healthHandler.Readyz)

	var handler http.Handler = mux

	// Add HTTP middleware
	// Note: Order matters - RequestIDMiddleware should come first in the chain,
	// so it should be the last middleware added to the handler since it is executed in reverse order.
	handler = middleware.WebhookBodyCaptureMiddleware(constants.FathomWebhookPath, maxBodyBytes)(handler)
	handler = middleware.RequestLoggerMiddleware()(handler)
	handler = middleware.RequestIDMiddleware()(handler)
	handler = otelhttp.NewHandler(handler, "meeting-ingest-api",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != constants.LivenessPath && r.URL.Path != constants.ReadinessPath
		}),
	)
	return handler
}

// setupHTTPServer configures and starts the HTTP server
func setupHTTPServer(flags flags, handler http.Handler, gracefulCloseWG *sync.WaitGroup) *http.Server {
	// Set up http listener in a goroutine using provided command line parameters.
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	gracefulCloseWG.Add(1)
	go func() {
		slog.With("addr", addr).Debug("starting http server, listening on port " + flags.Port)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("http listener error")
			os.Exit(1)
		}
		// Because ErrServerClosed is *immediately* returned when Shutdown is
		// called, not when when Shutdown completes, this must not yet decrement
		// the wait group.
	}()

	return httpServer
}

// gracefulShutdown stops accepting requests, lets in-flight deliveries finish, then drains NATS.
func gracefulShutdown(httpServer *http.Server, natsConn *nats.Conn, gracefulCloseWG *sync.WaitGroup, cancel context.CancelFunc) {
	slog.Debug("beginning graceful shutdown")

	go func() {
		ctx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownSeconds*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			slog.With(logging.ErrKey, err).Error("http shutdown error")
		}
		gracefulCloseWG.Done()
	}()

	// Cancel the background context.
	cancel()

	// Drain the connection, which will drain all remaining subscriptions, then
	// close the connection when complete.
	if natsConn != nil && !natsConn.IsClosed() && !natsConn.IsDraining() {
		slog.Info("draining NATS connection")
		if err := natsConn.Drain(); err != nil {
			slog.With(logging.ErrKey, err).Error("error draining NATS connection")
			os.Exit(1)
		}
	}

	slog.Debug("waiting for graceful shutdown steps to complete")
	gracefulCloseWG.Wait()
	slog.Debug("graceful shutdown steps completed")
}
