// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// MockContactRepository implements ContactRepository for testing
type MockContactRepository struct {
	mock.Mock
}

func (m *MockContactRepository) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockContactRepository) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	args := m.Called(ctx, contact)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

// MockMeetingRepository implements MeetingRepository for testing
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) UpsertMeeting(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error) {
	args := m.Called(ctx, meeting)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) UpsertParticipants(ctx context.Context, meetingUID string, participants []models.MeetingParticipant) (int, error) {
	args := m.Called(ctx, meetingUID, participants)
	return args.Int(0), args.Error(1)
}

func (m *MockMeetingRepository) GetMeetingByRecordingID(ctx context.Context, recordingID string) (*models.Meeting, error) {
	args := m.Called(ctx, recordingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) ListParticipants(ctx context.Context, meetingUID string) ([]*models.MeetingParticipant, error) {
	args := m.Called(ctx, meetingUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MeetingParticipant), args.Error(1)
}

// MockMeetingIngestSender implements MeetingIngestSender for testing
type MockMeetingIngestSender struct {
	mock.Mock
}

func (m *MockMeetingIngestSender) SendIndexFathomMeeting(ctx context.Context, action models.MessageAction, data models.Meeting) error {
	args := m.Called(ctx, action, data)
	return args.Error(0)
}

func (m *MockMeetingIngestSender) SendIndexFathomMeetingParticipant(ctx context.Context, action models.MessageAction, data models.MeetingParticipant) error {
	args := m.Called(ctx, action, data)
	return args.Error(0)
}

func (m *MockMeetingIngestSender) SendMeetingIngested(ctx context.Context, data models.MeetingIngestedMessage) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

// MockWebhookVerifier implements WebhookVerifier for testing
type MockWebhookVerifier struct {
	mock.Mock
}

func (m *MockWebhookVerifier) Verify(headers http.Header, body []byte) error {
	args := m.Called(headers, body)
	return args.Error(0)
}

func (m *MockWebhookVerifier) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockWebhookPayloadParser implements WebhookPayloadParser for testing
type MockWebhookPayloadParser struct {
	mock.Mock
}

func (m *MockWebhookPayloadParser) Parse(body []byte) (*models.FathomMeetingEvent, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FathomMeetingEvent), args.Error(1)
}

// MockMessage implements Message for testing
type MockMessage struct {
	mock.Mock
}

func (m *MockMessage) Subject() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockMessage) Data() []byte {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]byte)
}

func (m *MockMessage) Respond(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockMessage) HasReply() bool {
	args := m.Called()
	return args.Bool(0)
}
