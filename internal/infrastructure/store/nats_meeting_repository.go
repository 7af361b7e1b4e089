// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

// NatsMeetingRepository is the NATS KV store repository for meetings and their participants.
// Meetings are keyed by recording id and participants by (meeting uid, email), so
// every write is an upsert on the natural key.
type NatsMeetingRepository struct {
	meetings     *NatsBaseRepository[models.Meeting]
	participants *NatsBaseRepository[models.MeetingParticipant]
	keys         *KeyBuilder
	now          func() time.Time
}

// NewNatsMeetingRepository creates a new NATS KV store repository for meetings.
func NewNatsMeetingRepository(meetings, participants INatsKeyValue, codec Codec) *NatsMeetingRepository {
	return &NatsMeetingRepository{
		meetings:     NewNatsBaseRepository[models.Meeting](meetings, "meeting", codec),
		participants: NewNatsBaseRepository[models.MeetingParticipant](participants, "meeting participant", codec),
		keys:         NewKeyBuilder(""),
		now:          time.Now,
	}
}

// IsReady checks both buckets.
func (r *NatsMeetingRepository) IsReady(ctx context.Context) error {
	if err := r.meetings.IsReady(ctx); err != nil {
		return err
	}
	return r.participants.IsReady(ctx)
}

func (r *NatsMeetingRepository) meetingKey(recordingID string) string {
	return r.keys.EntityKeyEncoded(KeyPrefixMeeting, recordingID)
}

func (r *NatsMeetingRepository) participantKey(meetingUID, email string) string {
	return r.keys.CompoundKeyEncoded(KeyPrefixParticipant, meetingUID, email)
}

// UpsertMeeting writes the meeting under its recording id. A redelivery keeps the
// stored UID and created_at and overwrites everything else.
func (r *NatsMeetingRepository) UpsertMeeting(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error) {
	if meeting == nil || meeting.FathomRecordingID == "" {
		return nil, domain.NewValidationError("meeting recording id is required", domain.ErrMissingRecordingID)
	}

	now := r.now().UTC()
	stored, err := r.meetings.Upsert(ctx, r.meetingKey(meeting.FathomRecordingID), func(existing *models.Meeting) *models.Meeting {
		next := *meeting
		next.UpdatedAt = &now
		if existing == nil {
			next.UID = uuid.New().String()
			next.CreatedAt = &now
			return &next
		}
		next.UID = existing.UID
		next.CreatedAt = existing.CreatedAt
		return &next
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "meeting upserted", "meeting_uid", stored.UID, "fathom_recording_id", stored.FathomRecordingID)
	return stored, nil
}

// UpsertParticipants writes each participant under (meetingUID, email). Rows are
// independent; failures are collected and the count of written rows is returned
// alongside them.
func (r *NatsMeetingRepository) UpsertParticipants(ctx context.Context, meetingUID string, participants []models.MeetingParticipant) (int, error) {
	if meetingUID == "" {
		return 0, domain.NewValidationError("meeting uid is required")
	}

	now := r.now().UTC()
	written := 0
	var errs []error
	for i, participant := range participants {
		email := models.NormalizeEmail(participant.Email)
		if email == "" {
			errs = append(errs, fmt.Errorf("participant %d: %w", i, domain.NewValidationError("participant email is required")))
			continue
		}

		_, err := r.participants.Upsert(ctx, r.participantKey(meetingUID, email), func(existing *models.MeetingParticipant) *models.MeetingParticipant {
			next := participant
			next.MeetingUID = meetingUID
			next.Email = email
			next.UpdatedAt = &now
			if existing == nil {
				next.UID = uuid.New().String()
				next.CreatedAt = &now
				return &next
			}
			next.UID = existing.UID
			next.CreatedAt = existing.CreatedAt
			return &next
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to upsert meeting participant",
				logging.ErrKey, err, "meeting_uid", meetingUID)
			errs = append(errs, fmt.Errorf("participant %d: %w", i, err))
			continue
		}
		written++
	}

	return written, errors.Join(errs...)
}

// GetMeetingByRecordingID loads a meeting by the provider's recording id.
func (r *NatsMeetingRepository) GetMeetingByRecordingID(ctx context.Context, recordingID string) (*models.Meeting, error) {
	meeting, err := r.meetings.Get(ctx, r.meetingKey(recordingID))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError(fmt.Sprintf("no meeting for recording id %s", recordingID), domain.ErrMeetingNotFound)
		}
		return nil, err
	}
	return meeting, nil
}

// ListParticipants returns the participants of a meeting ordered by email.
func (r *NatsMeetingRepository) ListParticipants(ctx context.Context, meetingUID string) ([]*models.MeetingParticipant, error) {
	participants, err := r.participants.ListEntities(ctx, r.keys.CompoundKeyEncoded(KeyPrefixParticipant, meetingUID, "*"))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(participants, func(a, b *models.MeetingParticipant) int {
		return cmp.Compare(a.Email, b.Email)
	})
	return participants, nil
}
