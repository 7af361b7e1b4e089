// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Prefer string
	Body   []byte
}

// fakePostgREST answers every request with the next canned response and records the request.
type fakePostgREST struct {
	t         *testing.T
	mu        sync.Mutex
	responses []cannedResponse
	requests  []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()

	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Prefer: r.Header.Get("Prefer"),
		Body:   body,
	})

	if len(f.responses) == 0 {
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"code":"TEST","message":"unexpected"}`)
		return
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func newTestSupabaseStore(t *testing.T, responses ...cannedResponse) (*SupabaseStore, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{t: t, responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL + "/", ServiceRoleKey: "service-role"})
	require.NoError(t, err)
	return s, fake
}

func (f *fakePostgREST) request(i int) recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(f.t, len(f.requests), i)
	return f.requests[i]
}

func TestNewSupabaseStore_RequiresCredentials(t *testing.T) {
	_, err := NewSupabaseStore(SupabaseConfig{URL: "https://x.supabase.co"})
	assert.Error(t, err)
}

func TestSupabaseStore_FindByEmail(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupabaseStore(t,
		cannedResponse{http.StatusOK, `[{"id":"lead-1","name":"Jane","email":"Jane_Roe@Acme.io","source":"crm"}]`},
		cannedResponse{http.StatusOK, `[]`},
	)

	contact, err := s.FindByEmail(ctx, " Jane_Roe@ACME.io ")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", contact.UID)
	assert.Equal(t, "crm", contact.Source)

	req := fake.request(0)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/leads", req.Path)
	assert.Equal(t, `ilike.jane\_roe@acme.io`, req.Query["email"])
	assert.Equal(t, "10", req.Query["limit"])

	_, err = s.FindByEmail(ctx, "nobody@acme.io")
	assert.ErrorIs(t, err, domain.ErrContactNotFound)
}

func TestSupabaseStore_CreateContact(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupabaseStore(t,
		cannedResponse{http.StatusCreated, `[{"id":"lead-2","name":"Ext","email":"ext@client.io","company":"client.io","source":"meeting","status":"new"}]`},
		cannedResponse{http.StatusConflict, `{"code":"23505","message":"duplicate key value violates unique constraint \"idx_leads_email\""}`},
	)

	created, err := s.CreateContact(ctx, models.NewMeetingContact("Ext", "Ext@Client.io"))
	require.NoError(t, err)
	assert.Equal(t, "lead-2", created.UID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.request(0).Body, &sent))
	assert.Equal(t, "ext@client.io", sent["email"])
	assert.NotEmpty(t, sent["id"])
	assert.Contains(t, fake.request(0).Prefer, "return=representation")

	_, err = s.CreateContact(ctx, models.NewMeetingContact("Ext", "ext@client.io"))
	assert.True(t, domain.IsConflict(err))
	assert.ErrorIs(t, err, domain.ErrContactAlreadyExists)
}

func TestSupabaseStore_UpsertMeeting(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupabaseStore(t,
		cannedResponse{http.StatusCreated, `[{"id":"m-1","fathom_recording_id":"555","title":"Kickoff","raw_payload":null,
			"created_at":"2025-03-01T15:00:00+00:00","updated_at":"2025-03-02T15:00:00+00:00"}]`},
		cannedResponse{http.StatusInternalServerError, `{"code":"XX000","message":"boom"}`},
	)

	meeting, err := s.UpsertMeeting(ctx, &models.Meeting{
		FathomRecordingID: "555",
		Title:             "Kickoff",
		LeadID:            utils.StringPtr("lead-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "m-1", meeting.UID)
	assert.Nil(t, meeting.RawPayload)
	require.NotNil(t, meeting.CreatedAt)

	req := fake.request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/rest/v1/meetings", req.Path)
	assert.Equal(t, "fathom_recording_id", req.Query["on_conflict"])
	assert.Contains(t, req.Prefer, "resolution=merge-duplicates")
	var sent map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.NotContains(t, sent, "id")
	assert.NotContains(t, sent, "created_at")
	assert.Equal(t, "lead-1", sent["lead_id"])

	_, err = s.UpsertMeeting(ctx, &models.Meeting{FathomRecordingID: "555"})
	assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))

	_, err = s.UpsertMeeting(ctx, &models.Meeting{})
	assert.ErrorIs(t, err, domain.ErrMissingRecordingID)
}

func TestSupabaseStore_UpsertParticipants(t *testing.T) {
	s, fake := newTestSupabaseStore(t, cannedResponse{http.StatusCreated, ``})

	n, err := s.UpsertParticipants(context.Background(), "m-1", []models.MeetingParticipant{
		{Name: "Ext", Email: "Ext@Client.io", IsExternal: true, LeadID: utils.StringPtr("lead-1")},
		{Name: "Me", Email: "me@acme.io"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	req := fake.request(0)
	assert.Equal(t, "meeting_id,email", req.Query["on_conflict"])
	var sent []map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	require.Len(t, sent, 2)
	assert.Len(t, sent[0], len(sent[1]), "batch objects must share keys")
	assert.Nil(t, sent[1]["lead_id"])
	assert.Equal(t, "ext@client.io", sent[0]["email"])
}

func TestSupabaseStore_Queries(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupabaseStore(t,
		cannedResponse{http.StatusOK, `[]`},
		cannedResponse{http.StatusOK, `[{"id":"p-1","meeting_id":"m-1","email":"a@b.io","is_external":true}]`},
	)

	_, err := s.GetMeetingByRecordingID(ctx, "404")
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)
	assert.Equal(t, "eq.404", fake.request(0).Query["fathom_recording_id"])

	participants, err := s.ListParticipants(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.True(t, participants[0].IsExternal)
	assert.Equal(t, "email.asc.nullslast", fake.request(1).Query["order"])
}

func TestSupabaseStore_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewSupabaseStore(SupabaseConfig{URL: url, ServiceRoleKey: "k"})
	require.NoError(t, err)

	_, err = s.FindByEmail(context.Background(), "a@b.io")
	assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))
	assert.Error(t, s.IsReady(context.Background()))
}

func TestPostgrestCode(t *testing.T) {
	assert.Equal(t, "23505", postgrestCode(errors.New("(23505) duplicate key")))
	assert.Equal(t, "", postgrestCode(errors.New("dial tcp: refused")))
	assert.Equal(t, `a\%b\_c*`, escapeLike("a%b_c*"))
}

func TestSupabaseStore_FindByEmailWithAsterisk(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupabaseStore(t,
		cannedResponse{http.StatusOK, `[
			{"id":"lead-wide","name":"Other","email":"a-long-b@acme.io"},
			{"id":"lead-star","name":"Star","email":"A*B@acme.io"}
		]`},
		cannedResponse{http.StatusOK, `[{"id":"lead-wide","name":"Other","email":"a-long-b@acme.io"}]`},
	)

	contact, err := s.FindByEmail(ctx, "a*b@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "lead-star", contact.UID, "only the exact email matches")
	assert.Equal(t, `ilike.a*b@acme.io`, fake.request(0).Query["email"])

	_, err = s.FindByEmail(ctx, "a*b@acme.io")
	assert.ErrorIs(t, err, domain.ErrContactNotFound, "a wildcard-only match is not the contact")
}
