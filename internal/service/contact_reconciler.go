// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/concurrent"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
)

// ContactReconciler links meeting invitees to CRM contacts.
type ContactReconciler struct {
	contacts domain.ContactRepository
	pool     *concurrent.WorkerPool
	metrics  *IngestMetrics
}

// NewContactReconciler creates a reconciler. Lookups run on pool; a nil pool looks
// contacts up one at a time.
func NewContactReconciler(contacts domain.ContactRepository, pool *concurrent.WorkerPool, metrics *IngestMetrics) *ContactReconciler {
	if pool == nil {
		pool = concurrent.NewWorkerPool(1)
	}
	return &ContactReconciler{
		contacts: contacts,
		pool:     pool,
		metrics:  metrics,
	}
}

// ServiceReady checks if the service is ready to process requests
func (r *ContactReconciler) ServiceReady() bool {
	return r.contacts != nil
}

// Reconcile resolves a contact for every external invitee and picks the meeting's
// primary contact: the first invitee that already had a contact, else the first
// contact created here. Internal invitees are kept without a contact. An external
// invitee whose lookup or creation fails is skipped; the error is only logged.
//
// Lookups run concurrently, while creation and primary selection follow invitee
// order so the outcome does not depend on scheduling.
func (r *ContactReconciler) Reconcile(ctx context.Context, invitees []models.ParticipantDescriptor) (*models.ReconcileResult, error) {
	result := &models.ReconcileResult{
		Participants: make([]models.MeetingParticipant, 0, len(invitees)),
	}

	kept := make([]models.ParticipantDescriptor, 0, len(invitees))
	seen := make(map[string]struct{}, len(invitees))
	var external []models.ParticipantDescriptor
	for _, invitee := range invitees {
		invitee.Email = models.NormalizeEmail(invitee.Email)
		if invitee.Email == "" {
			slog.DebugContext(ctx, "skipping invitee without email", "name", invitee.Name)
			result.Skipped++
			continue
		}
		if _, dup := seen[invitee.Email]; dup {
			continue
		}
		seen[invitee.Email] = struct{}{}
		kept = append(kept, invitee)
		if invitee.IsExternal {
			external = append(external, invitee)
		}
	}

	found, lookupErrs := concurrent.Collect(ctx, r.pool, external,
		func(ctx context.Context, invitee models.ParticipantDescriptor) (*models.Contact, error) {
			return r.lookup(ctx, invitee.Email)
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type lookupOutcome struct {
		contact *models.Contact
		err     error
	}
	lookups := make(map[string]lookupOutcome, len(external))
	for i, invitee := range external {
		lookups[invitee.Email] = lookupOutcome{contact: found[i], err: lookupErrs[i]}
	}

	var primaryExisting, primaryCreated *string
	for _, invitee := range kept {
		if !invitee.IsExternal {
			result.Participants = append(result.Participants, models.MeetingParticipant{
				Name:  invitee.Name,
				Email: invitee.Email,
			})
			continue
		}

		outcome := lookups[invitee.Email]
		if outcome.err != nil {
			slog.WarnContext(ctx, "contact lookup failed, skipping participant",
				logging.ErrKey, outcome.err, "email", invitee.Email)
			result.Skipped++
			continue
		}

		contact, existed := outcome.contact, true
		if contact == nil {
			var err error
			contact, existed, err = r.create(ctx, invitee)
			if err != nil {
				slog.WarnContext(ctx, "contact creation failed, skipping participant",
					logging.ErrKey, err, "email", invitee.Email)
				result.Skipped++
				continue
			}
		}

		if existed {
			result.ContactsLinked++
			if primaryExisting == nil {
				primaryExisting = utils.StringPtr(contact.UID)
			}
		} else {
			result.ContactsCreated++
			if primaryCreated == nil {
				primaryCreated = utils.StringPtr(contact.UID)
			}
		}

		result.Participants = append(result.Participants, models.MeetingParticipant{
			LeadID:     utils.StringPtr(contact.UID),
			Name:       invitee.Name,
			Email:      invitee.Email,
			IsExternal: true,
		})
	}

	result.PrimaryContactUID = primaryExisting
	if result.PrimaryContactUID == nil {
		result.PrimaryContactUID = primaryCreated
	}
	r.metrics.RecordContactsCreated(ctx, result.ContactsCreated)

	slog.DebugContext(ctx, "reconciled meeting participants",
		"participants", len(result.Participants),
		"contacts_linked", result.ContactsLinked,
		"contacts_created", result.ContactsCreated,
		"skipped", result.Skipped,
	)
	return result, nil
}

// lookup returns nil without error when no contact has the email.
func (r *ContactReconciler) lookup(ctx context.Context, email string) (*models.Contact, error) {
	contact, err := r.contacts.FindByEmail(ctx, email)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// create inserts a contact for the invitee. When another writer registered the email
// first, the contact is fetched again and reported as pre-existing.
func (r *ContactReconciler) create(ctx context.Context, invitee models.ParticipantDescriptor) (*models.Contact, bool, error) {
	created, err := r.contacts.CreateContact(ctx, models.NewMeetingContact(invitee.Name, invitee.Email))
	if err == nil {
		slog.InfoContext(ctx, "created contact for meeting participant",
			"contact_uid", created.UID, "email", invitee.Email)
		return created, false, nil
	}
	if !domain.IsConflict(err) {
		return nil, false, err
	}

	slog.InfoContext(ctx, "contact created concurrently, linking existing contact", "email", invitee.Email)
	existing, lookupErr := r.lookup(ctx, invitee.Email)
	if lookupErr != nil {
		return nil, false, lookupErr
	}
	if existing == nil {
		return nil, false, err
	}
	return existing, true, nil
}
