// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

func TestParseEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "FATHOM_WEBHOOK_SECRET", "WEBHOOK_TOLERANCE_SECONDS", "WEBHOOK_MAX_BODY_BYTES",
		"STORE_BACKEND", "NATS_URL", "NATS_KV_ENCODING", "SQLITE_PATH", "DB_AUTO_MIGRATE",
		"INTERNAL_EMAIL_DOMAINS", "CONTACT_CACHE_TTL", "RECONCILE_CONCURRENCY", "EVENTS_ENABLED",
	} {
		t.Setenv(key, "")
	}

	env := parseEnv()

	assert.Equal(t, "8080", env.Port)
	assert.Equal(t, 300*time.Second, env.WebhookTolerance)
	assert.Equal(t, constants.DefaultWebhookMaxBodyBytes, env.WebhookMaxBodyBytes)
	assert.Equal(t, storeBackendNATS, env.StoreBackend)
	assert.Equal(t, "nats://localhost:4222", env.NatsURL)
	assert.Equal(t, store.EncodingJSON, env.KVEncoding)
	assert.Equal(t, "meeting-ingest.db", env.SQLitePath)
	assert.True(t, env.AutoMigrate)
	assert.Empty(t, env.InternalEmailDomains)
	assert.Equal(t, 5*time.Minute, env.ContactCacheTTL)
	assert.Equal(t, 4, env.ReconcileConcurrency)
	assert.True(t, env.EventsEnabled)
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FATHOM_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("WEBHOOK_TOLERANCE_SECONDS", "60")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("NATS_KV_ENCODING", "msgpack")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("INTERNAL_EMAIL_DOMAINS", " OurCo.com, ,linuxfoundation.org ")
	t.Setenv("CONTACT_CACHE_TTL", "0")
	t.Setenv("RECONCILE_CONCURRENCY", "not-a-number")
	t.Setenv("EVENTS_ENABLED", "false")

	env := parseEnv()

	assert.Equal(t, "9090", env.Port)
	assert.Equal(t, "whsec_abc", env.WebhookSecret)
	assert.Equal(t, time.Minute, env.WebhookTolerance)
	assert.Equal(t, storeBackendSQLite, env.StoreBackend)
	assert.Equal(t, store.EncodingMsgpack, env.KVEncoding)
	assert.False(t, env.AutoMigrate)
	assert.Equal(t, []string{"ourco.com", "linuxfoundation.org"}, env.InternalEmailDomains)
	assert.Zero(t, env.ContactCacheTTL)
	assert.Equal(t, 4, env.ReconcileConcurrency, "invalid values fall back to the default")
	assert.False(t, env.EventsEnabled)
}

func TestNatsRequired(t *testing.T) {
	assert.True(t, natsRequired(environment{StoreBackend: storeBackendNATS}))
	assert.False(t, natsRequired(environment{StoreBackend: storeBackendSupabase}))
}

func TestSetupMessageBuilder_DisabledIsNilInterface(t *testing.T) {
	assert.Nil(t, setupMessageBuilder(service.ServiceConfig{EventsEnabled: true}, nil))
	assert.Nil(t, setupMessageBuilder(service.ServiceConfig{EventsEnabled: false}, nil))
}
