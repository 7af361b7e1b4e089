// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// Message represents a domain message interface
type Message interface {
	Subject() string
	Data() []byte
	Respond(data []byte) error
	HasReply() bool
}

// MessageHandler defines how the service handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandlerReady() bool
}

// MeetingIngestSender publishes the outcome of an ingestion to downstream consumers.
type MeetingIngestSender interface {
	SendIndexFathomMeeting(ctx context.Context, action models.MessageAction, data models.Meeting) error
	SendIndexFathomMeetingParticipant(ctx context.Context, action models.MessageAction, data models.MeetingParticipant) error
	SendMeetingIngested(ctx context.Context, data models.MeetingIngestedMessage) error
}
