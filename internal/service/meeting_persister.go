// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

// MeetingPersister writes a meeting and its participants idempotently.
type MeetingPersister struct {
	meetings domain.MeetingRepository
}

// NewMeetingPersister creates a new MeetingPersister.
func NewMeetingPersister(meetings domain.MeetingRepository) *MeetingPersister {
	return &MeetingPersister{meetings: meetings}
}

// ServiceReady checks if the service is ready to process requests
func (p *MeetingPersister) ServiceReady() bool {
	return p.meetings != nil
}

// Persist upserts the meeting by recording id and then its participants by
// (meeting, email). A meeting failure is returned. A participant failure is logged
// and reported in PersistResult.ParticipantsErr since the meeting is already stored.
func (p *MeetingPersister) Persist(ctx context.Context, meeting *models.Meeting, participants []models.MeetingParticipant) (*models.PersistResult, error) {
	stored, err := p.meetings.UpsertMeeting(ctx, meeting)
	if err != nil {
		slog.ErrorContext(ctx, "error upserting meeting", logging.ErrKey, err, logging.PriorityCritical())
		return nil, err
	}
	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", stored.UID))

	result := &models.PersistResult{Meeting: stored}
	if len(participants) == 0 {
		return result, nil
	}

	rows := make([]models.MeetingParticipant, len(participants))
	for i, participant := range participants {
		participant.MeetingUID = stored.UID
		rows[i] = participant
	}

	written, err := p.meetings.UpsertParticipants(ctx, stored.UID, rows)
	result.ParticipantsPersisted = written
	if err != nil {
		slog.ErrorContext(ctx, "error upserting meeting participants, meeting kept",
			logging.ErrKey, err,
			"participants", len(rows),
			"written", written,
		)
		result.ParticipantsErr = err
		return result, nil
	}

	slog.DebugContext(ctx, "persisted meeting", "participants", written)
	return result, nil
}
