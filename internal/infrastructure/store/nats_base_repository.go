// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NATS Key-Value store bucket names
const (
	KVStoreNameContacts            = "crm-contacts"
	KVStoreNameMeetings            = "fathom-meetings"
	KVStoreNameMeetingParticipants = "fathom-meeting-participants"
)

// tracerName is the instrumentation name for the store package.
const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/infrastructure/store"

// maxUpsertAttempts bounds the read-modify-write loop when concurrent writers race on a key.
const maxUpsertAttempts = 5

// INatsKeyValue is the subset of jetstream.KeyValue used by the repositories.
type INatsKeyValue interface {
	ListKeysFiltered(ctx context.Context, filters ...string) (jetstream.KeyLister, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(context.Context, string, []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error)
	Update(context.Context, string, []byte, uint64) (uint64, error)
	Delete(context.Context, string, ...jetstream.KVDeleteOpt) error
	Status(ctx context.Context) (jetstream.KeyValueStatus, error)
}

// NatsBaseRepository provides common NATS KV operations that can be reused across all repositories
type NatsBaseRepository[T any] struct {
	kvStore    INatsKeyValue
	entityName string // Used in error messages (e.g., "meeting", "contact")
	codec      Codec
}

// NewNatsBaseRepository creates a new base repository for NATS KV operations
func NewNatsBaseRepository[T any](kvStore INatsKeyValue, entityName string, codec Codec) *NatsBaseRepository[T] {
	return &NatsBaseRepository[T]{
		kvStore:    kvStore,
		entityName: entityName,
		codec:      codec,
	}
}

func (r *NatsBaseRepository[T]) startSpan(ctx context.Context, operation, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("db.system", "nats"),
		attribute.String("db.operation", operation),
		attribute.String("db.nats.entity", r.entityName),
	}, attrs...)
	if key != "" {
		attrs = append(attrs, attribute.String("db.nats.key", key))
	}
	return otel.Tracer(tracerName).Start(ctx, "nats.kv."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// fail records err on the span and returns it.
func fail(span trace.Span, err error, status string) error {
	if status == "" {
		status = err.Error()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	return err
}

func (r *NatsBaseRepository[T]) unavailable() error {
	return domain.NewUnavailableError(fmt.Sprintf("%s repository is not available", r.entityName), domain.ErrServiceUnavailable)
}

// isWrongSequence reports whether a KV write failed its revision precondition.
func isWrongSequence(err error) bool {
	return errors.Is(err, jetstream.ErrKeyExists) || strings.Contains(err.Error(), "wrong last sequence")
}

// IsReady returns nil when the bucket is bound and answers a status request.
func (r *NatsBaseRepository[T]) IsReady(ctx context.Context) error {
	if r.kvStore == nil {
		return r.unavailable()
	}
	if _, err := r.kvStore.Status(ctx); err != nil {
		return domain.NewUnavailableError(fmt.Sprintf("%s bucket status unavailable", r.entityName), err)
	}
	return nil
}

// GetRaw retrieves a raw entry from NATS KV store
func (r *NatsBaseRepository[T]) GetRaw(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	ctx, span := r.startSpan(ctx, "get", key)
	defer span.End()

	if r.kvStore == nil {
		return nil, fail(span, r.unavailable(), "")
	}

	entry, err := r.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fail(span, domain.NewNotFoundError(
				fmt.Sprintf("%s with key '%s' not found", r.entityName, key), err), "not found")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error getting %s from NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		return nil, fail(span, domain.NewInternalError(
			fmt.Sprintf("failed to retrieve %s from store", r.entityName), err), "")
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// Get retrieves and unmarshals an entity from NATS KV store
func (r *NatsBaseRepository[T]) Get(ctx context.Context, key string) (*T, error) {
	entity, _, err := r.GetWithRevision(ctx, key)
	return entity, err
}

// GetWithRevision retrieves an entity with its revision from NATS KV store
func (r *NatsBaseRepository[T]) GetWithRevision(ctx context.Context, key string) (*T, uint64, error) {
	entry, err := r.GetRaw(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	entity, err := r.Unmarshal(ctx, entry.Value())
	if err != nil {
		return nil, 0, domain.NewInternalError(
			fmt.Sprintf("failed to unmarshal %s data", r.entityName), domain.ErrUnmarshal, err)
	}

	return entity, entry.Revision(), nil
}

// Unmarshal decodes a stored value into the entity type
func (r *NatsBaseRepository[T]) Unmarshal(ctx context.Context, data []byte) (*T, error) {
	var entity T
	if err := r.codec.Unmarshal(data, &entity); err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error unmarshaling %s", r.entityName),
			logging.ErrKey, err)
		return nil, err
	}
	return &entity, nil
}

// Marshal encodes an entity with the repository codec
func (r *NatsBaseRepository[T]) Marshal(ctx context.Context, entity *T) ([]byte, error) {
	data, err := r.codec.Marshal(entity)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error marshaling %s", r.entityName),
			logging.ErrKey, err)
		return nil, err
	}
	return data, nil
}

// Create stores a new entity and fails with a Conflict error if the key already exists.
func (r *NatsBaseRepository[T]) Create(ctx context.Context, key string, entity *T) (uint64, error) {
	data, err := r.Marshal(ctx, entity)
	if err != nil {
		return 0, domain.NewInternalError(fmt.Sprintf("failed to marshal %s", r.entityName), err)
	}
	return r.createBytes(ctx, key, data)
}

func (r *NatsBaseRepository[T]) createBytes(ctx context.Context, key string, data []byte) (uint64, error) {
	ctx, span := r.startSpan(ctx, "create", key)
	defer span.End()

	if r.kvStore == nil {
		return 0, fail(span, r.unavailable(), "")
	}

	revision, err := r.kvStore.Create(ctx, key, data)
	if err != nil {
		if isWrongSequence(err) {
			return 0, fail(span, domain.NewConflictError(
				fmt.Sprintf("%s with key '%s' already exists", r.entityName, key), err), "conflict")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error creating %s in NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		return 0, fail(span, domain.NewInternalError(
			fmt.Sprintf("failed to create %s in store", r.entityName), err), "")
	}

	span.SetAttributes(attribute.Int64("db.nats.revision", int64(revision)))
	span.SetStatus(codes.Ok, "")
	return revision, nil
}

// Update overwrites an existing entity with optimistic concurrency control
func (r *NatsBaseRepository[T]) Update(ctx context.Context, key string, entity *T, revision uint64) (uint64, error) {
	ctx, span := r.startSpan(ctx, "update", key, attribute.Int64("db.nats.revision", int64(revision)))
	defer span.End()

	if r.kvStore == nil {
		return 0, fail(span, r.unavailable(), "")
	}

	data, err := r.Marshal(ctx, entity)
	if err != nil {
		return 0, fail(span, domain.NewInternalError(fmt.Sprintf("failed to marshal %s", r.entityName), err), "")
	}

	return r.updateBytes(ctx, span, key, data, revision)
}

func (r *NatsBaseRepository[T]) updateBytes(ctx context.Context, span trace.Span, key string, data []byte, revision uint64) (uint64, error) {
	newRevision, err := r.kvStore.Update(ctx, key, data, revision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, fail(span, domain.NewNotFoundError(fmt.Sprintf("%s not found", r.entityName), err), "not found")
		}
		if isWrongSequence(err) {
			return 0, fail(span, domain.NewConflictError(
				fmt.Sprintf("%s has been modified", r.entityName), domain.ErrRevisionMismatch, err), "conflict")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error updating %s in NATS KV", r.entityName),
			logging.ErrKey, err, "key", key, "revision", revision)
		return 0, fail(span, domain.NewInternalError(
			fmt.Sprintf("failed to update %s in store", r.entityName), err), "")
	}

	span.SetStatus(codes.Ok, "")
	return newRevision, nil
}

// Upsert writes the entity at key with a read-modify-write loop. merge receives the
// stored entity (nil when absent) and returns the value to write. A concurrent write
// between the read and the write restarts the loop.
func (r *NatsBaseRepository[T]) Upsert(ctx context.Context, key string, merge func(existing *T) *T) (*T, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		existing, revision, err := r.GetWithRevision(ctx, key)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}

		if existing == nil {
			next := merge(nil)
			_, err = r.Create(ctx, key, next)
			if err == nil {
				return next, nil
			}
		} else {
			next := merge(existing)
			_, err = r.Update(ctx, key, next, revision)
			if err == nil {
				return next, nil
			}
		}

		if !domain.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		slog.DebugContext(ctx, fmt.Sprintf("%s changed during upsert, retrying", r.entityName),
			"key", key, "attempt", attempt+1)
	}

	return nil, domain.NewConflictError(
		fmt.Sprintf("gave up writing %s after %d attempts", r.entityName, maxUpsertAttempts), lastErr)
}

// Delete removes a key without revision checking. A missing key is not an error.
func (r *NatsBaseRepository[T]) Delete(ctx context.Context, key string) error {
	ctx, span := r.startSpan(ctx, "delete", key)
	defer span.End()

	if r.kvStore == nil {
		return fail(span, r.unavailable(), "")
	}

	if err := r.kvStore.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.ErrorContext(ctx, fmt.Sprintf("error deleting %s from NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		return fail(span, domain.NewInternalError(
			fmt.Sprintf("failed to delete %s from store", r.entityName), err), "")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListKeys lists the keys matching the subject-style filters (e.g. "a.*.>").
func (r *NatsBaseRepository[T]) ListKeys(ctx context.Context, filters ...string) ([]string, error) {
	ctx, span := r.startSpan(ctx, "list_keys", "",
		attribute.StringSlice("db.nats.filters", filters))
	defer span.End()

	if r.kvStore == nil {
		return nil, fail(span, r.unavailable(), "")
	}

	lister, err := r.kvStore.ListKeysFiltered(ctx, filters...)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			span.SetStatus(codes.Ok, "")
			return nil, nil
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error listing %s keys from NATS KV", r.entityName),
			logging.ErrKey, err)
		return nil, fail(span, domain.NewInternalError(
			fmt.Sprintf("failed to list %s keys from store", r.entityName), err), "")
	}
	defer func() {
		_ = lister.Stop()
	}()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	span.SetAttributes(attribute.Int("db.nats.keys_count", len(keys)))
	span.SetStatus(codes.Ok, "")
	return keys, nil
}

// ListEntities loads every entity whose key matches the filters. Entries that
// disappear or fail to decode between listing and reading are skipped.
func (r *NatsBaseRepository[T]) ListEntities(ctx context.Context, filters ...string) ([]*T, error) {
	keys, err := r.ListKeys(ctx, filters...)
	if err != nil {
		return nil, err
	}

	entities := make([]*T, 0, len(keys))
	for _, key := range keys {
		entity, err := r.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("failed to get %s, skipping", r.entityName),
				"key", key, logging.ErrKey, err)
			continue
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// CreateIndex claims an index key pointing at value. It fails with a Conflict error
// if the key is already claimed.
func (r *NatsBaseRepository[T]) CreateIndex(ctx context.Context, indexKey, value string) error {
	_, err := r.createBytes(ctx, indexKey, []byte(value))
	return err
}

// GetIndex returns the value stored under an index key.
func (r *NatsBaseRepository[T]) GetIndex(ctx context.Context, indexKey string) (string, error) {
	entry, err := r.GetRaw(ctx, indexKey)
	if err != nil {
		return "", err
	}
	return string(entry.Value()), nil
}

// GetIndexWithRevision returns the value stored under an index key and its revision.
func (r *NatsBaseRepository[T]) GetIndexWithRevision(ctx context.Context, indexKey string) (string, uint64, error) {
	entry, err := r.GetRaw(ctx, indexKey)
	if err != nil {
		return "", 0, err
	}
	return string(entry.Value()), entry.Revision(), nil
}

// UpdateIndex repoints an index key at value if it is still at revision. A concurrent
// change fails with a Conflict error.
func (r *NatsBaseRepository[T]) UpdateIndex(ctx context.Context, indexKey, value string, revision uint64) error {
	ctx, span := r.startSpan(ctx, "update_index", indexKey, attribute.Int64("db.nats.revision", int64(revision)))
	defer span.End()

	if r.kvStore == nil {
		return fail(span, r.unavailable(), "")
	}
	_, err := r.updateBytes(ctx, span, indexKey, []byte(value), revision)
	return err
}
