// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main is the meeting ingest API that receives Fathom webhooks, reconciles
// meeting invitees with CRM contacts and stores the meeting, and answers NATS queries
// for ingested meetings.
package main

import (
	"context"
	_ "expvar"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/concurrent"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
)

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry")
		return
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.With(logging.ErrKey, err).Error("error shutting down OpenTelemetry")
		}
	}()

	// Setup NATS connection
	natsConn, err := setupNATS(ctx, env, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}

	repos, err := setupRepositories(ctx, env, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err, "store_backend", env.StoreBackend).Error("error setting up repositories")
		return
	}
	defer func() {
		if err := repos.Close(); err != nil {
			slog.With(logging.ErrKey, err).Error("error closing repositories")
		}
	}()

	validator := webhook.NewFathomWebhookValidator(env.WebhookSecret, env.WebhookTolerance)
	if !validator.Enabled() {
		slog.Warn("FATHOM_WEBHOOK_SECRET is not set, webhook signatures are NOT verified")
	}

	metrics, err := service.NewIngestMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.With(logging.ErrKey, err).Warn("error creating ingest metrics, continuing without them")
	}

	// Initialize services
	serviceConfig := service.ServiceConfig{
		ReconcileConcurrency: env.ReconcileConcurrency,
		EventsEnabled:        env.EventsEnabled,
	}
	sender := setupMessageBuilder(serviceConfig, natsConn)
	ingestService := service.NewMeetingIngestService(
		validator,
		webhook.NewFathomPayloadParser(env.InternalEmailDomains),
		service.NewContactReconciler(repos.Contacts, concurrent.NewWorkerPool(serviceConfig.ReconcileConcurrency), metrics),
		service.NewMeetingPersister(repos.Meetings),
		sender,
		metrics,
	)
	queryService := service.NewMeetingQueryService(repos.Meetings)

	// Initialize handlers
	webhookHandler := handlers.NewFathomWebhookHandler(ingestService, env.WebhookMaxBodyBytes)
	meetingHandler := handlers.NewMeetingHandler(queryService)
	healthHandler := handlers.NewHealthHandler(repos.Readiness, webhookHandler, meetingHandler)

	httpServer := setupHTTPServer(flags, newHTTPHandler(webhookHandler, healthHandler, env.WebhookMaxBodyBytes), &gracefulCloseWG)

	// Create NATS subscriptions for the service.
	err = createNatsSubcriptions(ctx, natsConn, meetingHandler)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS subscriptions")
		return
	}

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, natsConn, &gracefulCloseWG, cancel)
}
