// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// MeetingQueryService reads ingested meetings back out of the store.
type MeetingQueryService struct {
	meetings domain.MeetingRepository
}

// NewMeetingQueryService creates a new MeetingQueryService.
func NewMeetingQueryService(meetings domain.MeetingRepository) *MeetingQueryService {
	return &MeetingQueryService{meetings: meetings}
}

// ServiceReady checks if the service is ready to process requests
func (s *MeetingQueryService) ServiceReady() bool {
	return s.meetings != nil
}

// GetMeeting returns the meeting stored for a recording id.
func (s *MeetingQueryService) GetMeeting(ctx context.Context, recordingID string) (*models.Meeting, error) {
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return nil, domain.NewValidationError("recording id is required", domain.ErrMissingRecordingID)
	}
	return s.meetings.GetMeetingByRecordingID(ctx, recordingID)
}

// GetParticipants returns the participants stored for a recording id, ordered by email.
func (s *MeetingQueryService) GetParticipants(ctx context.Context, recordingID string) ([]*models.MeetingParticipant, error) {
	meeting, err := s.GetMeeting(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	return s.meetings.ListParticipants(ctx, meeting.UID)
}
