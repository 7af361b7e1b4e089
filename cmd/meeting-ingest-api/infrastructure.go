// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"
)

// gracefulShutdownSeconds should be higher than the NATS client drain timeout and
// lower than the pod termination grace period.
const gracefulShutdownSeconds = 25

// repositories are the stores the services are built on.
type repositories struct {
	Contacts  domain.ContactRepository
	Meetings  domain.MeetingRepository
	Readiness domain.ReadinessChecker
	close     func() error
}

// Close releases database handles. NATS buckets need no cleanup.
func (r *repositories) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// natsRequired reports whether the process cannot run without a NATS connection.
func natsRequired(env environment) bool {
	return env.StoreBackend == storeBackendNATS
}

// setupNATS connects to NATS. The returned connection is nil, without error, when NATS
// is optional for the configured backend and the server is unreachable.
func setupNATS(ctx context.Context, env environment, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	slog.With("nats_url", env.NatsURL).InfoContext(ctx, "connecting to NATS")

	gracefulCloseWG.Add(1)
	natsConn, err := nats.Connect(
		env.NatsURL,
		nats.Name("lfx-v2-meeting-ingest-service"),
		nats.DrainTimeout(gracefulShutdownSeconds*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, s *nats.Subscription, err error) {
			if s != nil {
				slog.With(logging.ErrKey, err, "subject", s.Subject, "queue", s.Queue).Error("async NATS error")
			} else {
				slog.With(logging.ErrKey, err).Error("async NATS error outside subscription")
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if ctx.Err() != nil {
				// The parent context is already canceled, so this is a graceful shutdown.
				gracefulCloseWG.Done()
				return
			}
			// Otherwise max reconnect attempts have been exhausted.
			slog.With(logging.PriorityCritical()).Error("NATS max-reconnects exhausted; connection closed")
			done <- os.Interrupt
			time.Sleep(5 * time.Second)
			os.Exit(1)
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		if natsRequired(env) {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		slog.With(logging.ErrKey, err).WarnContext(ctx, "NATS unavailable, ingestion events and NATS queries are disabled")
		return nil, nil
	}

	return natsConn, nil
}

// keyValueBucket opens a KV bucket, creating it when it does not exist yet.
func keyValueBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		slog.With("bucket", bucket).InfoContext(ctx, "creating NATS KV bucket")
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket, History: 1})
	}
	if err != nil {
		return nil, fmt.Errorf("open KV bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// getKeyValueStores builds the NATS KV backed repositories.
func getKeyValueStores(ctx context.Context, natsConn *nats.Conn, encoding store.Encoding) (*repositories, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	buckets := map[string]jetstream.KeyValue{}
	for _, name := range []string{store.KVStoreNameContacts, store.KVStoreNameMeetings, store.KVStoreNameMeetingParticipants} {
		kv, err := keyValueBucket(ctx, js, name)
		if err != nil {
			return nil, err
		}
		buckets[name] = kv
	}

	codec := store.NewCodec(encoding)
	meetings := store.NewNatsMeetingRepository(buckets[store.KVStoreNameMeetings], buckets[store.KVStoreNameMeetingParticipants], codec)
	return &repositories{
		Contacts:  store.NewNatsContactRepository(buckets[store.KVStoreNameContacts], codec),
		Meetings:  meetings,
		Readiness: meetings,
	}, nil
}

// setupRepositories selects the store backend and wraps the contact store in the lookup cache.
func setupRepositories(ctx context.Context, env environment, natsConn *nats.Conn) (*repositories, error) {
	var (
		repos *repositories
		err   error
	)

	switch env.StoreBackend {
	case storeBackendNATS:
		if natsConn == nil {
			return nil, errors.New("NATS store selected but no NATS connection")
		}
		repos, err = getKeyValueStores(ctx, natsConn, env.KVEncoding)
	case storeBackendPostgres, storeBackendSQLite:
		cfg := store.SQLConfig{
			Dialect:      store.DialectPostgres,
			DSN:          env.DatabaseURL,
			AutoMigrate:  env.AutoMigrate,
			MaxOpenConns: 10,
			ConnMaxLife:  30 * time.Minute,
		}
		if env.StoreBackend == storeBackendSQLite {
			cfg.Dialect = store.DialectSQLite
			cfg.DSN = env.SQLitePath
		}
		var sqlStore *store.SQLStore
		sqlStore, err = store.OpenSQLStore(ctx, cfg)
		if err == nil {
			repos = &repositories{Contacts: sqlStore, Meetings: sqlStore, Readiness: sqlStore, close: sqlStore.Close}
		}
	case storeBackendSupabase:
		var supabaseStore *store.SupabaseStore
		supabaseStore, err = store.NewSupabaseStore(store.SupabaseConfig{
			URL:            env.SupabaseURL,
			ServiceRoleKey: env.SupabaseKey,
		})
		if err == nil {
			repos = &repositories{Contacts: supabaseStore, Meetings: supabaseStore, Readiness: supabaseStore}
		}
	default:
		err = fmt.Errorf("unsupported store backend %q", env.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	repos.Contacts = store.NewCachedContactRepository(repos.Contacts, env.ContactCacheTTL)
	slog.With("store_backend", env.StoreBackend, "contact_cache_ttl", env.ContactCacheTTL.String()).
		InfoContext(ctx, "repositories initialized")
	return repos, nil
}

// setupMessageBuilder returns the event publisher, or nil when events are off. A nil
// interface, not a typed nil pointer, is what disables publishing in the service.
func setupMessageBuilder(cfg service.ServiceConfig, natsConn *nats.Conn) domain.MeetingIngestSender {
	if !cfg.EventsEnabled || natsConn == nil {
		slog.Info("ingestion events disabled")
		return nil
	}
	return messaging.NewMessageBuilder(natsConn)
}

// createNatsSubcriptions subscribes the handler to its request subjects on the service queue group.
func createNatsSubcriptions(ctx context.Context, natsConn *nats.Conn, handler interface {
	domain.MessageHandler
	Subjects() []string
}) error {
	if natsConn == nil {
		slog.WarnContext(ctx, "no NATS connection, meeting queries are not served")
		return nil
	}

	for _, subject := range handler.Subjects() {
		slog.With("subject", subject, "queue", models.MeetingIngestAPIQueue).DebugContext(ctx, "subscribing to NATS subject")
		_, err := natsConn.QueueSubscribe(subject, models.MeetingIngestAPIQueue, func(msg *nats.Msg) {
			handler.HandleMessage(ctx, messaging.NewNatsMessage(msg))
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
	}
	return nil
}
