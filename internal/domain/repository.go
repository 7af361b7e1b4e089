// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// ContactRepository defines the interface for CRM contact lookups and lazy creation.
// This interface can be implemented by different storage backends (NATS, PostgreSQL, Supabase, etc.)
type ContactRepository interface {
	// FindByEmail returns the contact whose email matches case-insensitively.
	// It returns a NotFound error when there is no such contact.
	FindByEmail(ctx context.Context, email string) (*models.Contact, error)
	// CreateContact inserts the contact and returns it with its UID and timestamps set.
	// It returns a Conflict error when a contact with the same email already exists.
	CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error)
}

// MeetingRepository defines the interface for meeting and participant storage operations.
// Writes are upserts keyed by the recording id and by (meeting, email) respectively.
type MeetingRepository interface {
	// UpsertMeeting inserts the meeting or overwrites the mutable fields of the meeting with
	// the same recording id. The returned meeting carries the stored UID and timestamps.
	UpsertMeeting(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error)
	// UpsertParticipants writes the participant rows for a meeting and returns how many were written.
	UpsertParticipants(ctx context.Context, meetingUID string, participants []models.MeetingParticipant) (int, error)

	GetMeetingByRecordingID(ctx context.Context, recordingID string) (*models.Meeting, error)
	ListParticipants(ctx context.Context, meetingUID string) ([]*models.MeetingParticipant, error)
}

// ReadinessChecker is implemented by backends that can report whether they are usable.
type ReadinessChecker interface {
	IsReady(ctx context.Context) error
}
