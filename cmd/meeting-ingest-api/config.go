// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

// Store backends selectable with STORE_BACKEND.
const (
	storeBackendNATS     = "nats"
	storeBackendPostgres = "postgres"
	storeBackendSQLite   = "sqlite"
	storeBackendSupabase = "supabase"
)

// flags are the command line flags for the meeting ingest service.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the meeting ingest service.
type environment struct {
	Port string

	WebhookSecret       string
	WebhookTolerance    time.Duration
	WebhookMaxBodyBytes int64

	StoreBackend string
	NatsURL      string
	KVEncoding   store.Encoding
	DatabaseURL  string
	SQLitePath   string
	AutoMigrate  bool
	SupabaseURL  string
	SupabaseKey  string

	InternalEmailDomains []string
	ContactCacheTTL      time.Duration
	ReconcileConcurrency int
	EventsEnabled        bool
}

// parseFlags parses command line flags for the meeting ingest service
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [log.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// parseEnv parses environment variables for the meeting ingest service. A .env file in
// the working directory is loaded first when present; real environment variables win.
func parseEnv() environment {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	storeBackend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	switch storeBackend {
	case "":
		storeBackend = storeBackendNATS
	case storeBackendNATS, storeBackendPostgres, storeBackendSQLite, storeBackendSupabase:
	default:
		slog.Error("unsupported STORE_BACKEND", "store_backend", storeBackend)
		os.Exit(1)
	}

	kvEncoding, err := store.ParseEncoding(os.Getenv("NATS_KV_ENCODING"))
	if err != nil {
		slog.With(logging.ErrKey, err).Error("invalid NATS_KV_ENCODING")
		os.Exit(1)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "meeting-ingest.db"
	}

	return environment{
		Port:                 port,
		WebhookSecret:        os.Getenv("FATHOM_WEBHOOK_SECRET"),
		WebhookTolerance:     time.Duration(envInt("WEBHOOK_TOLERANCE_SECONDS", int(webhook.DefaultTimestampTolerance/time.Second))) * time.Second,
		WebhookMaxBodyBytes:  int64(envInt("WEBHOOK_MAX_BODY_BYTES", int(constants.DefaultWebhookMaxBodyBytes))),
		StoreBackend:         storeBackend,
		NatsURL:              natsURL,
		KVEncoding:           kvEncoding,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SQLitePath:           sqlitePath,
		AutoMigrate:          envBool("DB_AUTO_MIGRATE", true),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseKey:          os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		InternalEmailDomains: splitList(os.Getenv("INTERNAL_EMAIL_DOMAINS")),
		ContactCacheTTL:      envDuration("CONTACT_CACHE_TTL", 5*time.Minute),
		ReconcileConcurrency: envInt("RECONCILE_CONCURRENCY", 4),
		EventsEnabled:        envBool("EVENTS_ENABLED", true),
	}
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		slog.Warn("invalid integer environment variable, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean environment variable, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

// envDuration parses a Go duration. "0" is valid and disables whatever the value controls.
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		slog.Warn("invalid duration environment variable, using default", "key", key, "value", raw, "default", fallback.String())
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
