// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// CachedContactRepository keeps recently resolved contacts in memory in front of
// another ContactRepository. Only hits are cached: a contact that does not exist yet
// may be created by the CRM at any time.
type CachedContactRepository struct {
	next  domain.ContactRepository
	cache *cache.Cache
}

// NewCachedContactRepository wraps next. A non-positive ttl disables caching and returns
// next unchanged.
func NewCachedContactRepository(next domain.ContactRepository, ttl time.Duration) domain.ContactRepository {
	if ttl <= 0 {
		return next
	}
	return &CachedContactRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// FindByEmail serves from the cache when possible.
func (r *CachedContactRepository) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	key := models.NormalizeEmail(email)
	if cached, ok := r.cache.Get(key); ok {
		contact := *cached.(*models.Contact)
		return &contact, nil
	}

	contact, err := r.next.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	r.remember(key, contact)
	return contact, nil
}

// CreateContact delegates and caches the created contact.
func (r *CachedContactRepository) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	created, err := r.next.CreateContact(ctx, contact)
	if err != nil {
		if domain.IsConflict(err) {
			slog.DebugContext(ctx, "contact created concurrently, dropping cached entry", "email", contact.Email)
			r.cache.Delete(models.NormalizeEmail(contact.Email))
		}
		return nil, err
	}
	r.remember(models.NormalizeEmail(created.Email), created)
	return created, nil
}

// IsReady forwards to the wrapped repository when it can report readiness.
func (r *CachedContactRepository) IsReady(ctx context.Context) error {
	if checker, ok := r.next.(domain.ReadinessChecker); ok {
		return checker.IsReady(ctx)
	}
	return nil
}

func (r *CachedContactRepository) remember(key string, contact *models.Contact) {
	if key == "" || contact == nil {
		return
	}
	stored := *contact
	r.cache.SetDefault(key, &stored)
}

// Len reports the number of cached contacts, including expired ones not yet evicted.
func (r *CachedContactRepository) Len() int {
	return r.cache.ItemCount()
}
