// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	postgrest "github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Supabase table names. The schema is the one created by SQLStore.Migrate for Postgres.
const (
	supabaseTableLeads        = "leads"
	supabaseTableMeetings     = "meetings"
	supabaseTableParticipants = "meeting_participants"
)

// SupabaseConfig holds the REST credentials for the CRM project.
type SupabaseConfig struct {
	// URL is the project URL, e.g. https://<project-ref>.supabase.co
	URL string
	// ServiceRoleKey bypasses row level security; it must stay server side.
	ServiceRoleKey string
	Schema         string
}

// SupabaseStore implements the contact and meeting repositories over the Supabase REST API.
type SupabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

// NewSupabaseStore creates the REST client. No request is made until first use.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("supabase URL and service role key are required")
	}
	var opts *supabase.ClientOptions
	if cfg.Schema != "" {
		opts = &supabase.ClientOptions{Schema: cfg.Schema}
	}
	client, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.ServiceRoleKey, opts)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase client: %w", err)
	}
	return &SupabaseStore{client: client, now: time.Now}, nil
}

type supabaseLead struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Company   string     `json:"company"`
	Source    string     `json:"source"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (l supabaseLead) toContact() *models.Contact {
	return &models.Contact{
		UID:       l.ID,
		Name:      l.Name,
		Email:     l.Email,
		Company:   l.Company,
		Source:    l.Source,
		Status:    l.Status,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// supabaseMeeting omits id and created_at on writes so an upsert never rewrites them.
type supabaseMeeting struct {
	ID                 string                   `json:"id,omitempty"`
	FathomRecordingID  string                   `json:"fathom_recording_id"`
	LeadID             *string                  `json:"lead_id"`
	Title              string                   `json:"title"`
	MeetingTitle       string                   `json:"meeting_title"`
	Summary            *string                  `json:"summary"`
	Transcript         []models.TranscriptEntry `json:"transcript"`
	ActionItems        []models.ActionItem      `json:"action_items"`
	URL                string                   `json:"url"`
	ShareURL           string                   `json:"share_url"`
	ScheduledStartTime *time.Time               `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time               `json:"scheduled_end_time"`
	RecordingStartTime *time.Time               `json:"recording_start_time"`
	RecordingEndTime   *time.Time               `json:"recording_end_time"`
	DurationMinutes    *int                     `json:"duration_minutes"`
	TranscriptLanguage string                   `json:"transcript_language"`
	RawPayload         json.RawMessage          `json:"raw_payload"`
	CreatedAt          *time.Time               `json:"created_at,omitempty"`
	UpdatedAt          *time.Time               `json:"updated_at,omitempty"`
}

func newSupabaseMeeting(m *models.Meeting, now time.Time) supabaseMeeting {
	return supabaseMeeting{
		FathomRecordingID:  m.FathomRecordingID,
		LeadID:             m.LeadID,
		Title:              m.Title,
		MeetingTitle:       m.MeetingTitle,
		Summary:            m.Summary,
		Transcript:         m.Transcript,
		ActionItems:        m.ActionItems,
		URL:                m.URL,
		ShareURL:           m.ShareURL,
		ScheduledStartTime: m.ScheduledStartTime,
		ScheduledEndTime:   m.ScheduledEndTime,
		RecordingStartTime: m.RecordingStartTime,
		RecordingEndTime:   m.RecordingEndTime,
		DurationMinutes:    m.DurationMinutes,
		TranscriptLanguage: m.TranscriptLanguage,
		RawPayload:         m.RawPayload,
		UpdatedAt:          &now,
	}
}

func (r supabaseMeeting) toMeeting() *models.Meeting {
	meeting := &models.Meeting{
		UID:                r.ID,
		FathomRecordingID:  r.FathomRecordingID,
		LeadID:             r.LeadID,
		Title:              r.Title,
		MeetingTitle:       r.MeetingTitle,
		Summary:            r.Summary,
		Transcript:         r.Transcript,
		ActionItems:        r.ActionItems,
		URL:                r.URL,
		ShareURL:           r.ShareURL,
		ScheduledStartTime: r.ScheduledStartTime,
		ScheduledEndTime:   r.ScheduledEndTime,
		RecordingStartTime: r.RecordingStartTime,
		RecordingEndTime:   r.RecordingEndTime,
		DurationMinutes:    r.DurationMinutes,
		TranscriptLanguage: r.TranscriptLanguage,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if len(r.RawPayload) > 0 && string(r.RawPayload) != "null" {
		meeting.RawPayload = r.RawPayload
	}
	return meeting
}

// supabaseParticipant keeps every key present so batch upserts have uniform objects.
type supabaseParticipant struct {
	ID         string     `json:"id,omitempty"`
	MeetingID  string     `json:"meeting_id"`
	LeadID     *string    `json:"lead_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	IsExternal bool       `json:"is_external"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

func (p supabaseParticipant) toParticipant() *models.MeetingParticipant {
	return &models.MeetingParticipant{
		UID:        p.ID,
		MeetingUID: p.MeetingID,
		LeadID:     p.LeadID,
		Name:       p.Name,
		Email:      p.Email,
		IsExternal: p.IsExternal,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (s *SupabaseStore) startSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "supabase."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
			attribute.String("server.api", "postgrest"),
		),
	)
}

// postgrestCode extracts the SQLSTATE or PGRST code from a "(code) message" error.
func postgrestCode(err error) string {
	msg := err.Error()
	if !strings.HasPrefix(msg, "(") {
		return ""
	}
	end := strings.Index(msg, ")")
	if end < 0 {
		return ""
	}
	return msg[1:end]
}

// translateRESTError maps a postgrest-go error to a domain error.
func translateRESTError(err error, message string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return domain.NewUnavailableError(message, domain.ErrServiceUnavailable, err)
	}
	if postgrestCode(err) == "23505" {
		return domain.NewConflictError(message, err)
	}
	return domain.NewInternalError(message, err)
}

// supabaseEmailCandidates bounds the rows an ilike lookup may return before the exact match.
const supabaseEmailCandidates = 10

// escapeLike escapes the SQL LIKE wildcards in an email. PostgREST rewrites '*' to
// '%' and has no escape for it, so '*' stays a wildcard and callers must compare
// the returned emails exactly.
func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// IsReady issues a minimal query against the leads table.
func (s *SupabaseStore) IsReady(ctx context.Context) error {
	_, _, err := s.client.From(supabaseTableLeads).Select("id", "", false).Limit(1, "").Execute()
	if err != nil {
		return domain.NewUnavailableError("supabase is not reachable", err)
	}
	return nil
}

// FindByEmail looks a lead up case-insensitively.
func (s *SupabaseStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	ctx, span := s.startSpan(ctx, "select", supabaseTableLeads)
	defer span.End()

	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	var rows []supabaseLead
	_, err := s.client.From(supabaseTableLeads).
		Select("id,name,email,company,source,status,created_at,updated_at", "", false).
		Ilike("email", escapeLike(email)).
		Limit(supabaseEmailCandidates, "").
		ExecuteTo(&rows)
	if err != nil {
		slog.ErrorContext(ctx, "error querying supabase leads", logging.ErrKey, err)
		return nil, fail(span, translateRESTError(err, "failed to look up contact"), "")
	}
	for _, row := range rows {
		if models.NormalizeEmail(row.Email) == email {
			span.SetStatus(codes.Ok, "")
			return row.toContact(), nil
		}
	}

	span.SetStatus(codes.Error, "not found")
	return nil, domain.NewNotFoundError("no contact for email", domain.ErrContactNotFound)
}

// CreateContact inserts a lead; the unique email index reports duplicates as 23505.
func (s *SupabaseStore) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := s.startSpan(ctx, "insert", supabaseTableLeads)
	defer span.End()

	if contact == nil || models.NormalizeEmail(contact.Email) == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	now := s.now().UTC()
	row := supabaseLead{
		ID:        contact.UID,
		Name:      contact.Name,
		Email:     models.NormalizeEmail(contact.Email),
		Company:   contact.Company,
		Source:    contact.Source,
		Status:    contact.Status,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	var inserted []supabaseLead
	_, err := s.client.From(supabaseTableLeads).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		err = translateRESTError(err, "failed to create contact")
		if domain.IsConflict(err) {
			return nil, fail(span, domain.NewConflictError("contact email already registered",
				domain.ErrContactAlreadyExists, err), "conflict")
		}
		slog.ErrorContext(ctx, "error inserting supabase lead", logging.ErrKey, err)
		return nil, fail(span, err, "")
	}

	span.SetStatus(codes.Ok, "")
	if len(inserted) > 0 {
		return inserted[0].toContact(), nil
	}
	return row.toContact(), nil
}

// UpsertMeeting upserts on fathom_recording_id with merge-duplicates resolution.
func (s *SupabaseStore) UpsertMeeting(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error) {
	ctx, span := s.startSpan(ctx, "upsert", supabaseTableMeetings)
	defer span.End()

	if meeting == nil || meeting.FathomRecordingID == "" {
		return nil, domain.NewValidationError("meeting recording id is required", domain.ErrMissingRecordingID)
	}
	span.SetAttributes(attribute.String("fathom.recording_id", meeting.FathomRecordingID))

	var rows []supabaseMeeting
	_, err := s.client.From(supabaseTableMeetings).
		Upsert(newSupabaseMeeting(meeting, s.now().UTC()), "fathom_recording_id", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		slog.ErrorContext(ctx, "error upserting supabase meeting", logging.ErrKey, err,
			"fathom_recording_id", meeting.FathomRecordingID)
		return nil, fail(span, translateRESTError(err, "failed to upsert meeting"), "")
	}
	if len(rows) == 0 {
		return nil, fail(span, domain.NewInternalError("meeting upsert returned no row"), "")
	}

	span.SetStatus(codes.Ok, "")
	return rows[0].toMeeting(), nil
}

// UpsertParticipants upserts all rows in one request on (meeting_id, email).
func (s *SupabaseStore) UpsertParticipants(ctx context.Context, meetingUID string, participants []models.MeetingParticipant) (int, error) {
	ctx, span := s.startSpan(ctx, "upsert", supabaseTableParticipants)
	defer span.End()

	if meetingUID == "" {
		return 0, domain.NewValidationError("meeting uid is required")
	}
	if len(participants) == 0 {
		span.SetStatus(codes.Ok, "")
		return 0, nil
	}

	now := s.now().UTC()
	rows := make([]supabaseParticipant, 0, len(participants))
	for i, p := range participants {
		email := models.NormalizeEmail(p.Email)
		if email == "" {
			return 0, fail(span, domain.NewValidationError(fmt.Sprintf("participant %d has no email", i)), "")
		}
		rows = append(rows, supabaseParticipant{
			MeetingID:  meetingUID,
			LeadID:     p.LeadID,
			Name:       p.Name,
			Email:      email,
			IsExternal: p.IsExternal,
			UpdatedAt:  &now,
		})
	}

	_, _, err := s.client.From(supabaseTableParticipants).
		Upsert(rows, "meeting_id,email", "minimal", "").
		Execute()
	if err != nil {
		slog.ErrorContext(ctx, "error upserting supabase meeting participants", logging.ErrKey, err,
			"meeting_uid", meetingUID)
		return 0, fail(span, translateRESTError(err, "failed to upsert meeting participants"), "")
	}

	span.SetAttributes(attribute.Int("db.rows_affected", len(rows)))
	span.SetStatus(codes.Ok, "")
	return len(rows), nil
}

// GetMeetingByRecordingID loads a meeting by the provider's recording id.
func (s *SupabaseStore) GetMeetingByRecordingID(ctx context.Context, recordingID string) (*models.Meeting, error) {
	ctx, span := s.startSpan(ctx, "select", supabaseTableMeetings)
	defer span.End()

	var rows []supabaseMeeting
	_, err := s.client.From(supabaseTableMeetings).
		Select("*", "", false).
		Eq("fathom_recording_id", recordingID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fail(span, translateRESTError(err, "failed to load meeting"), "")
	}
	if len(rows) == 0 {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.NewNotFoundError(fmt.Sprintf("no meeting for recording id %s", recordingID), domain.ErrMeetingNotFound)
	}

	span.SetStatus(codes.Ok, "")
	return rows[0].toMeeting(), nil
}

// ListParticipants returns the participants of a meeting ordered by email.
func (s *SupabaseStore) ListParticipants(ctx context.Context, meetingUID string) ([]*models.MeetingParticipant, error) {
	ctx, span := s.startSpan(ctx, "select", supabaseTableParticipants)
	defer span.End()

	var rows []supabaseParticipant
	_, err := s.client.From(supabaseTableParticipants).
		Select("*", "", false).
		Eq("meeting_id", meetingUID).
		Order("email", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fail(span, translateRESTError(err, "failed to list meeting participants"), "")
	}

	participants := make([]*models.MeetingParticipant, 0, len(rows))
	for _, row := range rows {
		participants = append(participants, row.toParticipant())
	}
	span.SetStatus(codes.Ok, "")
	return participants, nil
}
