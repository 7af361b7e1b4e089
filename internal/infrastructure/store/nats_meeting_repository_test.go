// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeetingRepository(t *testing.T) (*NatsMeetingRepository, *mockNatsKeyValue, *mockNatsKeyValue) {
	t.Helper()
	meetings, participants := newMockNatsKeyValue(), newMockNatsKeyValue()
	repo := NewNatsMeetingRepository(meetings, participants, Codec{})
	clock := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return repo, meetings, participants
}

func TestNatsMeetingRepository_UpsertMeetingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, meetings, _ := newTestMeetingRepository(t)

	first, err := repo.UpsertMeeting(ctx, &models.Meeting{FathomRecordingID: "555", Title: "Intro"})
	require.NoError(t, err)
	require.NotEmpty(t, first.UID)

	second, err := repo.UpsertMeeting(ctx, &models.Meeting{
		FathomRecordingID: "555",
		Title:             "Intro",
		Summary:           utils.StringPtr("enriched"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.UID, second.UID)
	assert.Equal(t, *first.CreatedAt, *second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(*first.UpdatedAt))
	assert.Equal(t, 1, meetings.size())

	stored, err := repo.GetMeetingByRecordingID(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, "enriched", *stored.Summary)
}

func TestNatsMeetingRepository_UpsertMeetingRequiresRecordingID(t *testing.T) {
	repo, meetings, _ := newTestMeetingRepository(t)

	_, err := repo.UpsertMeeting(context.Background(), &models.Meeting{Title: "x"})

	assert.ErrorIs(t, err, domain.ErrMissingRecordingID)
	assert.Zero(t, meetings.size())
}

func TestNatsMeetingRepository_GetMeetingNotFound(t *testing.T) {
	repo, _, _ := newTestMeetingRepository(t)

	_, err := repo.GetMeetingByRecordingID(context.Background(), "404")

	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)
	assert.True(t, domain.IsNotFound(err))
}

func TestNatsMeetingRepository_UpsertParticipants(t *testing.T) {
	ctx := context.Background()
	repo, _, participants := newTestMeetingRepository(t)
	lead := utils.StringPtr("lead-1")

	rows := []models.MeetingParticipant{
		{Name: "Ext", Email: "Ext@Client.io", IsExternal: true, LeadID: lead},
		{Name: "Int", Email: "me@acme.io"},
	}

	n, err := repo.UpsertParticipants(ctx, "meeting-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.UpsertParticipants(ctx, "meeting-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, participants.size(), "redelivery must not add rows")

	// A different meeting keeps its own rows.
	_, err = repo.UpsertParticipants(ctx, "meeting-2", rows[:1])
	require.NoError(t, err)

	listed, err := repo.ListParticipants(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "ext@client.io", listed[0].Email)
	assert.Equal(t, "lead-1", *listed[0].LeadID)
	assert.Equal(t, "meeting-1", listed[0].MeetingUID)
	assert.Equal(t, "me@acme.io", listed[1].Email)
	assert.Nil(t, listed[1].LeadID)
}

func TestNatsMeetingRepository_UpsertParticipantsPartialFailure(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestMeetingRepository(t)

	n, err := repo.UpsertParticipants(ctx, "meeting-1", []models.MeetingParticipant{
		{Email: "a@client.io"},
		{Email: ""},
	})

	assert.Equal(t, 1, n)
	assert.Error(t, err)
}

func TestNatsMeetingRepository_UpsertParticipantsBackendFailure(t *testing.T) {
	repo, _, participants := newTestMeetingRepository(t)
	participants.createError = errors.New("stream offline")

	n, err := repo.UpsertParticipants(context.Background(), "meeting-1", []models.MeetingParticipant{{Email: "a@client.io"}})

	assert.Zero(t, n)
	assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))
}

func TestNatsMeetingRepository_IsReady(t *testing.T) {
	repo, _, participants := newTestMeetingRepository(t)
	require.NoError(t, repo.IsReady(context.Background()))

	participants.statusError = errors.New("bucket gone")
	assert.Error(t, repo.IsReady(context.Background()))
}
