// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"
)

// MeetingHandler answers NATS requests for ingested meetings.
type MeetingHandler struct {
	queryService *service.MeetingQueryService
}

func NewMeetingHandler(queryService *service.MeetingQueryService) *MeetingHandler {
	return &MeetingHandler{
		queryService: queryService,
	}
}

func (s *MeetingHandler) HandlerReady() bool {
	return s.queryService != nil && s.queryService.ServiceReady()
}

// Subjects lists the subjects this handler answers on.
func (s *MeetingHandler) Subjects() []string {
	return []string{models.MeetingGetSubject, models.MeetingGetParticipantsSubject}
}

// HandleMessage implements domain.MessageHandler interface
func (s *MeetingHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))
	slog.DebugContext(ctx, "handling NATS message")

	var response []byte
	var err error

	handlers := map[string]func(ctx context.Context, msg domain.Message) ([]byte, error){
		models.MeetingGetSubject:             s.HandleMeetingGet,
		models.MeetingGetParticipantsSubject: s.HandleMeetingGetParticipants,
	}

	handler, ok := handlers[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown subject")
		if msg.HasReply() {
			err = msg.Respond(nil)
			if err != nil {
				slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			}
		}
		return
	}

	response, err = handler(ctx, msg)
	if err != nil {
		slog.ErrorContext(ctx, "error handling message",
			logging.ErrKey, err,
		)
		if msg.HasReply() {
			err = msg.Respond(nil)
			if err != nil {
				slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			}
		}
		return
	}

	if msg.HasReply() {
		err = msg.Respond(response)
		if err != nil {
			slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			return
		}
		slog.DebugContext(ctx, "responded to NATS message", "response_bytes", len(response))
	} else {
		slog.DebugContext(ctx, "handled NATS message (no reply expected)")
	}
}

// HandleMeetingGet returns the meeting JSON for the recording id in the message data.
func (s *MeetingHandler) HandleMeetingGet(ctx context.Context, msg domain.Message) ([]byte, error) {
	if !s.HandlerReady() {
		return nil, fmt.Errorf("meeting store not initialized")
	}

	recordingID := string(msg.Data())
	ctx = logging.AppendCtx(ctx, slog.String("recording_id", recordingID))

	meeting, err := s.queryService.GetMeeting(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleMeetingGetParticipants returns the participants JSON for the recording id in the message data.
func (s *MeetingHandler) HandleMeetingGetParticipants(ctx context.Context, msg domain.Message) ([]byte, error) {
	if !s.HandlerReady() {
		return nil, fmt.Errorf("meeting store not initialized")
	}

	recordingID := string(msg.Data())
	ctx = logging.AppendCtx(ctx, slog.String("recording_id", recordingID))

	participants, err := s.queryService.GetParticipants(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []*models.MeetingParticipant{}
	}
	return json.Marshal(participants)
}
