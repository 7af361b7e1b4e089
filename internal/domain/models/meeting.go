// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Meeting represents one recorded meeting, keyed by the provider's recording id.
type Meeting struct {
	UID                string            `json:"uid"`
	FathomRecordingID  string            `json:"fathom_recording_id"`
	LeadID             *string           `json:"lead_id,omitempty"`
	Title              string            `json:"title,omitempty"`
	MeetingTitle       string            `json:"meeting_title,omitempty"`
	Summary            *string           `json:"summary,omitempty"`
	Transcript         []TranscriptEntry `json:"transcript,omitempty"`
	ActionItems        []ActionItem      `json:"action_items,omitempty"`
	URL                string            `json:"url,omitempty"`
	ShareURL           string            `json:"share_url,omitempty"`
	ScheduledStartTime *time.Time        `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime   *time.Time        `json:"scheduled_end_time,omitempty"`
	RecordingStartTime *time.Time        `json:"recording_start_time,omitempty"`
	RecordingEndTime   *time.Time        `json:"recording_end_time,omitempty"`
	DurationMinutes    *int              `json:"duration_minutes,omitempty"`
	TranscriptLanguage string            `json:"transcript_language,omitempty"`
	RawPayload         json.RawMessage   `json:"raw_payload,omitempty"`
	CreatedAt          *time.Time        `json:"created_at,omitempty"`
	UpdatedAt          *time.Time        `json:"updated_at,omitempty"`
}

// TranscriptEntry is one speaker turn of a meeting transcript.
type TranscriptEntry struct {
	Speaker      string `json:"speaker"`
	SpeakerEmail string `json:"speaker_email,omitempty"`
	Text         string `json:"text"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// ActionItem is a follow-up extracted from the meeting.
type ActionItem struct {
	Description   string `json:"description"`
	Completed     bool   `json:"completed"`
	UserGenerated bool   `json:"user_generated,omitempty"`
	Assignee      string `json:"assignee,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	PlaybackURL   string `json:"playback_url,omitempty"`
}

// Tags generates a consistent set of tags for the meeting.
func (m *Meeting) Tags() []string {
	if m == nil {
		return nil
	}

	tags := []string{}
	if m.UID != "" {
		tags = append(tags, m.UID, fmt.Sprintf("meeting_uid:%s", m.UID))
	}
	if m.FathomRecordingID != "" {
		tags = append(tags, fmt.Sprintf("fathom_recording_id:%s", m.FathomRecordingID))
	}
	if m.LeadID != nil {
		tags = append(tags, fmt.Sprintf("lead_id:%s", *m.LeadID))
	}
	return tags
}

// DurationMinutesBetween returns round((end-start)/60s), or nil if either bound is missing
// or the interval is negative.
func DurationMinutesBetween(start, end *time.Time) *int {
	if start == nil || end == nil || end.Before(*start) {
		return nil
	}
	minutes := int(math.Round(end.Sub(*start).Minutes()))
	return &minutes
}
