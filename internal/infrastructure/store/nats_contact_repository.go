// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

// NatsContactRepository stores contacts in a NATS KV bucket. Each contact is kept
// under its UID and claimed by a unique email index entry holding that UID.
type NatsContactRepository struct {
	*NatsBaseRepository[models.Contact]
	keys *KeyBuilder
	now  func() time.Time
}

// NewNatsContactRepository creates a new NATS KV store repository for contacts.
func NewNatsContactRepository(contacts INatsKeyValue, codec Codec) *NatsContactRepository {
	return &NatsContactRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Contact](contacts, "contact", codec),
		keys:               NewKeyBuilder(""),
		now:                time.Now,
	}
}

// FindByEmail resolves the email index and loads the contact it points to.
func (r *NatsContactRepository) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	uid, err := r.GetIndex(ctx, r.keys.IndexKeyEncoded(KeyPrefixIndexEmail, email))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("no contact for email", domain.ErrContactNotFound)
		}
		return nil, err
	}

	contact, err := r.Get(ctx, r.keys.EntityKeyEncoded(KeyPrefixContact, uid))
	if err != nil {
		if domain.IsNotFound(err) {
			// Contacts are written before their index, so this entry is stale.
			// The next CreateContact for the email replaces it.
			slog.WarnContext(ctx, "email index points at a missing contact", "contact_uid", uid)
			return nil, domain.NewNotFoundError("no contact for email", domain.ErrContactNotFound)
		}
		return nil, err
	}
	return contact, nil
}

// CreateContact writes the contact under its UID and then claims the email index.
// The index claim is atomic, so concurrent creators for the same email see a
// Conflict. An index entry left pointing at a missing contact is taken over.
func (r *NatsContactRepository) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if contact == nil || models.NormalizeEmail(contact.Email) == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	created := *contact
	created.Email = models.NormalizeEmail(created.Email)
	if created.UID == "" {
		created.UID = uuid.New().String()
	}
	now := r.now().UTC()
	created.CreatedAt = &now
	created.UpdatedAt = &now

	contactKey := r.keys.EntityKeyEncoded(KeyPrefixContact, created.UID)
	if _, err := r.Create(ctx, contactKey, &created); err != nil {
		return nil, err
	}

	if err := r.claimEmailIndex(ctx, created.Email, created.UID); err != nil {
		if errDelete := r.Delete(ctx, contactKey); errDelete != nil {
			slog.ErrorContext(ctx, "failed to remove contact after email index claim failure",
				logging.ErrKey, errDelete, "contact_uid", created.UID)
		}
		if domain.IsConflict(err) {
			return nil, domain.NewConflictError("contact email already registered", domain.ErrContactAlreadyExists, err)
		}
		return nil, err
	}

	return &created, nil
}

// claimEmailIndex points the email index at uid. An existing entry whose contact
// is gone is replaced, guarded by its revision.
func (r *NatsContactRepository) claimEmailIndex(ctx context.Context, email, uid string) error {
	indexKey := r.keys.IndexKeyEncoded(KeyPrefixIndexEmail, email)
	err := r.CreateIndex(ctx, indexKey, uid)
	if err == nil || !domain.IsConflict(err) {
		return err
	}

	owner, revision, errIndex := r.GetIndexWithRevision(ctx, indexKey)
	if errIndex != nil {
		if domain.IsNotFound(errIndex) {
			// Released between the claim and the read.
			return r.CreateIndex(ctx, indexKey, uid)
		}
		return errIndex
	}

	_, errOwner := r.GetRaw(ctx, r.keys.EntityKeyEncoded(KeyPrefixContact, owner))
	if errOwner == nil {
		return err
	}
	if !domain.IsNotFound(errOwner) {
		return errOwner
	}

	slog.WarnContext(ctx, "replacing email index that points at a missing contact",
		"stale_contact_uid", owner, "contact_uid", uid)
	return r.UpdateIndex(ctx, indexKey, uid, revision)
}
