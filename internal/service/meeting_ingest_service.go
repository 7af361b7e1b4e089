// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
)

// MeetingIngestService runs one webhook delivery through verification, parsing,
// contact reconciliation and persistence.
type MeetingIngestService struct {
	verifier   domain.WebhookVerifier
	parser     domain.WebhookPayloadParser
	reconciler *ContactReconciler
	persister  *MeetingPersister
	// sender is optional; events are skipped when it is nil.
	sender  domain.MeetingIngestSender
	metrics *IngestMetrics
	now     func() time.Time
}

// NewMeetingIngestService creates a new MeetingIngestService.
func NewMeetingIngestService(
	verifier domain.WebhookVerifier,
	parser domain.WebhookPayloadParser,
	reconciler *ContactReconciler,
	persister *MeetingPersister,
	sender domain.MeetingIngestSender,
	metrics *IngestMetrics,
) *MeetingIngestService {
	return &MeetingIngestService{
		verifier:   verifier,
		parser:     parser,
		reconciler: reconciler,
		persister:  persister,
		sender:     sender,
		metrics:    metrics,
		now:        time.Now,
	}
}

// ServiceReady checks if the service is ready to process requests
func (s *MeetingIngestService) ServiceReady() bool {
	return s.verifier != nil &&
		s.parser != nil &&
		s.reconciler != nil && s.reconciler.ServiceReady() &&
		s.persister != nil && s.persister.ServiceReady()
}

func (s *MeetingIngestService) transition(ctx context.Context, result *models.IngestResult, state models.IngestState) context.Context {
	result.State = state
	ctx = logging.AppendCtx(ctx, slog.String(logging.StateKey, string(state)))
	slog.DebugContext(ctx, "ingest state changed")
	return ctx
}

// Ingest processes one delivery. The returned result is never nil, so callers can
// report the state reached even when an error is returned:
//   - Unauthorized error: the signature did not verify (state rejected_auth)
//   - Validation error: the body is not a Fathom payload (state rejected_malformed)
//   - any other error: the meeting could not be stored
//
// A payload without a recording id is not an error; it is reported as skipped.
func (s *MeetingIngestService) Ingest(ctx context.Context, delivery models.WebhookDelivery) (*models.IngestResult, error) {
	start := s.now()
	result := &models.IngestResult{}
	outcome := OutcomeFailed
	defer func() {
		s.metrics.RecordDelivery(ctx, outcome, s.now().Sub(start))
	}()

	ctx = s.transition(ctx, result, models.IngestStateReceived)

	if err := s.verifier.Verify(delivery.Headers, delivery.Body); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected", logging.ErrKey, err)
		s.transition(ctx, result, models.IngestStateRejectedAuth)
		outcome = OutcomeRejectedAuth
		return result, err
	}
	ctx = s.transition(ctx, result, models.IngestStateVerified)

	event, err := s.parser.Parse(delivery.Body)
	if errors.Is(err, domain.ErrMissingRecordingID) {
		slog.InfoContext(ctx, "webhook has no recording id, skipping")
		result.Skipped = true
		result.Reason = models.SkipReasonNoRecordingID
		outcome = OutcomeSkipped
		return result, nil
	}
	if err != nil {
		slog.WarnContext(ctx, "malformed webhook payload", logging.ErrKey, err)
		s.transition(ctx, result, models.IngestStateRejectedMalformed)
		outcome = OutcomeRejectedMalformed
		return result, err
	}
	result.RecordingID = event.Meeting.FathomRecordingID
	ctx = logging.AppendCtx(ctx, slog.String("fathom_recording_id", result.RecordingID))
	ctx = s.transition(ctx, result, models.IngestStateParsed)

	reconciled, err := s.reconciler.Reconcile(ctx, event.Participants)
	if err != nil {
		slog.ErrorContext(ctx, "error reconciling participants", logging.ErrKey, err)
		return result, err
	}
	result.PrimaryContactID = reconciled.PrimaryContactUID
	result.ContactsCreated = reconciled.ContactsCreated
	ctx = s.transition(ctx, result, models.IngestStateReconciled)

	meeting := *event.Meeting
	meeting.LeadID = reconciled.PrimaryContactUID

	persisted, err := s.persister.Persist(ctx, &meeting, reconciled.Participants)
	if err != nil {
		return result, err
	}
	result.MeetingUID = persisted.Meeting.UID
	result.Participants = persisted.ParticipantsPersisted
	ctx = s.transition(ctx, result, models.IngestStatePersisted)
	outcome = OutcomeIngested

	s.publish(ctx, result, persisted, reconciled.Participants)

	slog.InfoContext(ctx, "meeting ingested",
		"meeting_uid", result.MeetingUID,
		"participants", result.Participants,
		"contacts_created", result.ContactsCreated,
	)
	return result, nil
}

// publish sends the ingestion events. Failures are logged and never fail the delivery.
func (s *MeetingIngestService) publish(ctx context.Context, result *models.IngestResult, persisted *models.PersistResult, participants []models.MeetingParticipant) {
	if s.sender == nil {
		return
	}

	meeting := persisted.Meeting
	action := models.ActionCreated
	if meeting.CreatedAt != nil && meeting.UpdatedAt != nil && meeting.UpdatedAt.After(*meeting.CreatedAt) {
		action = models.ActionUpdated
	}
	if err := s.sender.SendIndexFathomMeeting(ctx, action, *meeting); err != nil {
		slog.WarnContext(ctx, "error publishing meeting index message", logging.ErrKey, err)
	}

	if persisted.ParticipantsErr == nil && len(participants) > 0 {
		sends := make([]func() error, 0, len(participants))
		for _, participant := range participants {
			participant.MeetingUID = meeting.UID
			sends = append(sends, func() error {
				err := s.sender.SendIndexFathomMeetingParticipant(ctx, action, participant)
				if err != nil {
					slog.WarnContext(ctx, "error publishing participant index message", logging.ErrKey, err, "email", participant.Email)
				}
				return err
			})
		}
		if errs := s.reconciler.pool.RunAll(ctx, sends...); len(errs) > 0 {
			slog.WarnContext(ctx, "some participant index messages were not published", "failed", len(errs))
		}
	}

	err := s.sender.SendMeetingIngested(ctx, models.MeetingIngestedMessage{
		MeetingUID:        result.MeetingUID,
		FathomRecordingID: result.RecordingID,
		PrimaryContactUID: result.PrimaryContactID,
		Participants:      result.Participants,
		ContactsCreated:   result.ContactsCreated,
		IngestedAt:        s.now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "error publishing meeting ingested message", logging.ErrKey, err)
	}
}
