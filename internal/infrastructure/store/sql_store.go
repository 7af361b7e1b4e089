// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL database behind an SQLStore.
type Dialect string

// Supported SQL dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLConfig configures an SQLStore.
type SQLConfig struct {
	Dialect Dialect
	// DSN is a Postgres connection string or an SQLite file path.
	DSN          string
	AutoMigrate  bool
	MaxOpenConns int
	ConnMaxLife  time.Duration
}

// SQLStore implements the contact and meeting repositories on Postgres or SQLite.
// Idempotency comes from unique constraints: leads by lower(email), meetings by
// fathom_recording_id and meeting_participants by (meeting_id, email).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLStore opens the database, verifies connectivity and optionally creates the schema.
func OpenSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s DSN is required", cfg.Dialect)
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", cfg.DSN)
	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", cfg.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}

	if cfg.Dialect == DialectSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY between pool members.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}

	s := NewSQLStore(db, cfg.Dialect)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewSQLStore wraps an already opened database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsReady pings the database.
func (s *SQLStore) IsReady(ctx context.Context) error {
	if s.db == nil {
		return domain.NewUnavailableError("sql store is not available", domain.ErrServiceUnavailable)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return domain.NewUnavailableError("sql store is not reachable", err)
	}
	return nil
}

func (s *SQLStore) startSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	system := "postgresql"
	if s.dialect == DialectSQLite {
		system = "sqlite"
	}
	return otel.Tracer(tracerName).Start(ctx, "sql."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// Migrate creates the tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	// The Postgres defaults let REST writers (Supabase) omit id and created_at.
	timestamp, jsonType := "TIMESTAMPTZ", "JSONB"
	idDefault, nowDefault := " DEFAULT gen_random_uuid()::text", " DEFAULT now()"
	if s.dialect == DialectSQLite {
		timestamp, jsonType = "TIMESTAMP", "TEXT"
		idDefault, nowDefault = "", " DEFAULT CURRENT_TIMESTAMP"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY` + idDefault + `,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			company TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			created_at ` + timestamp + nowDefault + `,
			updated_at ` + timestamp + nowDefault + `
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_email ON leads (lower(email))`,
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY` + idDefault + `,
			fathom_recording_id TEXT NOT NULL UNIQUE,
			lead_id TEXT,
			title TEXT NOT NULL DEFAULT '',
			meeting_title TEXT NOT NULL DEFAULT '',
			summary TEXT,
			transcript ` + jsonType + `,
			action_items ` + jsonType + `,
			url TEXT NOT NULL DEFAULT '',
			share_url TEXT NOT NULL DEFAULT '',
			scheduled_start_time ` + timestamp + `,
			scheduled_end_time ` + timestamp + `,
			recording_start_time ` + timestamp + `,
			recording_end_time ` + timestamp + `,
			duration_minutes INTEGER,
			transcript_language TEXT NOT NULL DEFAULT '',
			raw_payload ` + jsonType + `,
			created_at ` + timestamp + ` NOT NULL` + nowDefault + `,
			updated_at ` + timestamp + ` NOT NULL` + nowDefault + `
		)`,
		`CREATE TABLE IF NOT EXISTS meeting_participants (
			id TEXT PRIMARY KEY` + idDefault + `,
			meeting_id TEXT NOT NULL REFERENCES meetings (id) ON DELETE CASCADE,
			lead_id TEXT,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			is_external BOOLEAN NOT NULL DEFAULT FALSE,
			created_at ` + timestamp + ` NOT NULL` + nowDefault + `,
			updated_at ` + timestamp + ` NOT NULL` + nowDefault + `,
			UNIQUE (meeting_id, email)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meeting_participants_lead ON meeting_participants (lead_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", s.dialect, err)
		}
	}
	return nil
}

// isUniqueViolation reports duplicate key errors from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// timestampLayouts are the text forms SQLite may hand back for a timestamp column.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// nullTimestamp scans a nullable timestamp from either driver. SQLite returns text
// when the column type is lost, e.g. in RETURNING clauses.
type nullTimestamp struct {
	Time  time.Time
	Valid bool
}

func (n *nullTimestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", value)
	}
}

func (n *nullTimestamp) parse(text string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", text)
}

func (n nullTimestamp) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// document encodes v for a JSONB/TEXT column; empty values are stored as NULL.
func document(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const contactColumns = `id, name, email, company, source, status, created_at, updated_at`

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c                    models.Contact
		createdAt, updatedAt nullTimestamp
	)
	if err := row.Scan(&c.UID, &c.Name, &c.Email, &c.Company, &c.Source, &c.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = createdAt.ptr()
	c.UpdatedAt = updatedAt.ptr()
	return &c, nil
}

// FindByEmail looks a lead up case-insensitively.
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	ctx, span := s.startSpan(ctx, "select", "leads")
	defer span.End()

	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM leads WHERE lower(email) = $1 LIMIT 1`, email)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.NewNotFoundError("no contact for email", domain.ErrContactNotFound)
		}
		slog.ErrorContext(ctx, "error querying lead by email", logging.ErrKey, err)
		return nil, fail(span, domain.NewInternalError("failed to look up contact", err), "")
	}

	span.SetStatus(codes.Ok, "")
	return contact, nil
}

// CreateContact inserts a lead. The unique email index turns concurrent creates into a Conflict.
func (s *SQLStore) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := s.startSpan(ctx, "insert", "leads")
	defer span.End()

	if contact == nil || models.NormalizeEmail(contact.Email) == "" {
		return nil, domain.NewValidationError("contact email is required")
	}

	created := *contact
	created.Email = models.NormalizeEmail(created.Email)
	if created.UID == "" {
		created.UID = uuid.New().String()
	}
	now := s.now().UTC()
	created.CreatedAt = &now
	created.UpdatedAt = &now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+contactColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		created.UID, created.Name, created.Email, created.Company, created.Source, created.Status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fail(span, domain.NewConflictError("contact email already registered",
				domain.ErrContactAlreadyExists, err), "conflict")
		}
		slog.ErrorContext(ctx, "error inserting lead", logging.ErrKey, err)
		return nil, fail(span, domain.NewInternalError("failed to create contact", err), "")
	}

	span.SetStatus(codes.Ok, "")
	return &created, nil
}

const meetingColumns = `id, fathom_recording_id, lead_id, title, meeting_title, summary, transcript, action_items,
	url, share_url, scheduled_start_time, scheduled_end_time, recording_start_time, recording_end_time,
	duration_minutes, transcript_language, raw_payload, created_at, updated_at`

// UpsertMeeting inserts the meeting or overwrites every mutable column of the row
// with the same recording id. id and created_at survive redeliveries.
func (s *SQLStore) UpsertMeeting(ctx context.Context, meeting *models.Meeting) (*models.Meeting, error) {
	ctx, span := s.startSpan(ctx, "upsert", "meetings")
	defer span.End()

	if meeting == nil || meeting.FathomRecordingID == "" {
		return nil, domain.NewValidationError("meeting recording id is required", domain.ErrMissingRecordingID)
	}
	span.SetAttributes(attribute.String("fathom.recording_id", meeting.FathomRecordingID))

	transcript, err := document(meeting.Transcript, len(meeting.Transcript) == 0)
	if err != nil {
		return nil, fail(span, domain.NewInternalError("failed to encode transcript", err), "")
	}
	actionItems, err := document(meeting.ActionItems, len(meeting.ActionItems) == 0)
	if err != nil {
		return nil, fail(span, domain.NewInternalError("failed to encode action items", err), "")
	}
	rawPayload := sql.NullString{String: string(meeting.RawPayload), Valid: len(meeting.RawPayload) > 0}

	now := s.now().UTC()
	var (
		stored               = *meeting
		createdAt, updatedAt nullTimestamp
	)
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO meetings (`+meetingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (fathom_recording_id) DO UPDATE SET
			lead_id = excluded.lead_id,
			title = excluded.title,
			meeting_title = excluded.meeting_title,
			summary = excluded.summary,
			transcript = excluded.transcript,
			action_items = excluded.action_items,
			url = excluded.url,
			share_url = excluded.share_url,
			scheduled_start_time = excluded.scheduled_start_time,
			scheduled_end_time = excluded.scheduled_end_time,
			recording_start_time = excluded.recording_start_time,
			recording_end_time = excluded.recording_end_time,
			duration_minutes = excluded.duration_minutes,
			transcript_language = excluded.transcript_language,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`,
		uuid.New().String(), meeting.FathomRecordingID, nullString(meeting.LeadID), meeting.Title,
		meeting.MeetingTitle, nullString(meeting.Summary), transcript, actionItems,
		meeting.URL, meeting.ShareURL, nullTime(meeting.ScheduledStartTime), nullTime(meeting.ScheduledEndTime),
		nullTime(meeting.RecordingStartTime), nullTime(meeting.RecordingEndTime),
		nullInt(meeting.DurationMinutes), meeting.TranscriptLanguage, rawPayload, now, now,
	).Scan(&stored.UID, &createdAt, &updatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "error upserting meeting", logging.ErrKey, err,
			"fathom_recording_id", meeting.FathomRecordingID)
		return nil, fail(span, domain.NewInternalError("failed to upsert meeting", err), "")
	}

	stored.CreatedAt = createdAt.ptr()
	stored.UpdatedAt = updatedAt.ptr()
	span.SetStatus(codes.Ok, "")
	return &stored, nil
}

// UpsertParticipants writes all rows in one transaction keyed by (meeting_id, email).
// On failure nothing is written.
func (s *SQLStore) UpsertParticipants(ctx context.Context, meetingUID string, participants []models.MeetingParticipant) (int, error) {
	ctx, span := s.startSpan(ctx, "upsert", "meeting_participants")
	defer span.End()

	if meetingUID == "" {
		return 0, domain.NewValidationError("meeting uid is required")
	}
	if len(participants) == 0 {
		span.SetStatus(codes.Ok, "")
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fail(span, domain.NewInternalError("failed to begin participant transaction", err), "")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO meeting_participants
		(id, meeting_id, lead_id, name, email, is_external, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id, email) DO UPDATE SET
			lead_id = excluded.lead_id,
			name = excluded.name,
			is_external = excluded.is_external,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fail(span, domain.NewInternalError("failed to prepare participant upsert", err), "")
	}
	defer stmt.Close()

	now := s.now().UTC()
	for i, p := range participants {
		email := models.NormalizeEmail(p.Email)
		if email == "" {
			return 0, fail(span, domain.NewValidationError(fmt.Sprintf("participant %d has no email", i)), "")
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), meetingUID, nullString(p.LeadID),
			p.Name, email, p.IsExternal, now, now); err != nil {
			slog.ErrorContext(ctx, "error upserting meeting participant", logging.ErrKey, err,
				"meeting_uid", meetingUID)
			return 0, fail(span, domain.NewInternalError("failed to upsert meeting participants", err), "")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fail(span, domain.NewInternalError("failed to commit meeting participants", err), "")
	}

	span.SetAttributes(attribute.Int("db.rows_affected", len(participants)))
	span.SetStatus(codes.Ok, "")
	return len(participants), nil
}

// GetMeetingByRecordingID loads a meeting by the provider's recording id.
func (s *SQLStore) GetMeetingByRecordingID(ctx context.Context, recordingID string) (*models.Meeting, error) {
	ctx, span := s.startSpan(ctx, "select", "meetings")
	defer span.End()

	var (
		m                                      models.Meeting
		leadID, summary                        sql.NullString
		transcript, actionItems, rawPayload    []byte
		schedStart, schedEnd, recStart, recEnd nullTimestamp
		duration                               sql.NullInt64
		createdAt, updatedAt                   nullTimestamp
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE fathom_recording_id = $1`, recordingID,
	).Scan(&m.UID, &m.FathomRecordingID, &leadID, &m.Title, &m.MeetingTitle, &summary, &transcript, &actionItems,
		&m.URL, &m.ShareURL, &schedStart, &schedEnd, &recStart, &recEnd,
		&duration, &m.TranscriptLanguage, &rawPayload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.NewNotFoundError(fmt.Sprintf("no meeting for recording id %s", recordingID), domain.ErrMeetingNotFound)
		}
		return nil, fail(span, domain.NewInternalError("failed to load meeting", err), "")
	}

	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &m.Transcript); err != nil {
			return nil, fail(span, domain.NewInternalError("failed to decode transcript", domain.ErrUnmarshal, err), "")
		}
	}
	if len(actionItems) > 0 {
		if err := json.Unmarshal(actionItems, &m.ActionItems); err != nil {
			return nil, fail(span, domain.NewInternalError("failed to decode action items", domain.ErrUnmarshal, err), "")
		}
	}
	if len(rawPayload) > 0 {
		m.RawPayload = json.RawMessage(rawPayload)
	}
	m.LeadID = stringPtr(leadID)
	m.Summary = stringPtr(summary)
	m.ScheduledStartTime = schedStart.ptr()
	m.ScheduledEndTime = schedEnd.ptr()
	m.RecordingStartTime = recStart.ptr()
	m.RecordingEndTime = recEnd.ptr()
	m.DurationMinutes = intPtr(duration)
	m.CreatedAt = createdAt.ptr()
	m.UpdatedAt = updatedAt.ptr()

	span.SetStatus(codes.Ok, "")
	return &m, nil
}

// ListParticipants returns the participants of a meeting ordered by email.
func (s *SQLStore) ListParticipants(ctx context.Context, meetingUID string) ([]*models.MeetingParticipant, error) {
	ctx, span := s.startSpan(ctx, "select", "meeting_participants")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, lead_id, name, email, is_external, created_at, updated_at
		FROM meeting_participants WHERE meeting_id = $1 ORDER BY email`, meetingUID)
	if err != nil {
		return nil, fail(span, domain.NewInternalError("failed to list meeting participants", err), "")
	}
	defer rows.Close()

	var participants []*models.MeetingParticipant
	for rows.Next() {
		var (
			p                    models.MeetingParticipant
			leadID               sql.NullString
			createdAt, updatedAt nullTimestamp
		)
		if err := rows.Scan(&p.UID, &p.MeetingUID, &leadID, &p.Name, &p.Email, &p.IsExternal, &createdAt, &updatedAt); err != nil {
			return nil, fail(span, domain.NewInternalError("failed to scan meeting participant", err), "")
		}
		p.LeadID = stringPtr(leadID)
		p.CreatedAt = createdAt.ptr()
		p.UpdatedAt = updatedAt.ptr()
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, domain.NewInternalError("failed to list meeting participants", err), "")
	}

	span.SetStatus(codes.Ok, "")
	return participants, nil
}
