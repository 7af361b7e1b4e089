// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
)

// FathomWebhookPayload represents the body of a Fathom "new meeting content ready" webhook.
// Every field except RecordingID is optional. RecordingID may arrive as a number or a string.
type FathomWebhookPayload struct {
	RecordingID        string                 `json:"recording_id"`
	Title              string                 `json:"title"`
	MeetingTitle       string                 `json:"meeting_title"`
	URL                string                 `json:"url"`
	ShareURL           string                 `json:"share_url"`
	CreatedAt          string                 `json:"created_at"`
	ScheduledStartTime string                 `json:"scheduled_start_time"`
	ScheduledEndTime   string                 `json:"scheduled_end_time"`
	RecordingStartTime string                 `json:"recording_start_time"`
	RecordingEndTime   string                 `json:"recording_end_time"`
	TranscriptLanguage string                 `json:"transcript_language"`
	RecordedBy         *FathomUser            `json:"recorded_by"`
	CalendarInvitees   []FathomInvitee        `json:"calendar_invitees"`
	Transcript         []FathomTranscriptItem `json:"transcript"`
	DefaultSummary     *FathomSummary         `json:"default_summary"`
	ActionItems        []FathomActionItem     `json:"action_items"`
}

// FathomUser is the Fathom user who recorded the meeting.
type FathomUser struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	EmailDomain string `json:"email_domain"`
	Team        string `json:"team"`
}

// FathomInvitee is a calendar invitee. IsExternal is nil when Fathom did not classify the invitee.
type FathomInvitee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	EmailDomain string `json:"email_domain"`
	IsExternal  *bool  `json:"is_external"`
}

type FathomTranscriptItem struct {
	Speaker   FathomSpeaker `json:"speaker"`
	Text      string        `json:"text"`
	Timestamp string        `json:"timestamp"`
}

type FathomSpeaker struct {
	DisplayName                 string `json:"display_name"`
	MatchedCalendarInviteeEmail string `json:"matched_calendar_invitee_email"`
}

type FathomSummary struct {
	TemplateName      string  `json:"template_name"`
	MarkdownFormatted *string `json:"markdown_formatted"`
}

type FathomActionItem struct {
	Description          string          `json:"description"`
	Completed            bool            `json:"completed"`
	UserGenerated        bool            `json:"user_generated"`
	RecordingTimestamp   string          `json:"recording_timestamp"`
	RecordingPlaybackURL string          `json:"recording_playback_url"`
	Assignee             *FathomAssignee `json:"assignee"`
}

type FathomAssignee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Team  string `json:"team"`
}

// FathomMeetingEvent is a validated Fathom delivery split into the meeting record
// and the invitee list.
type FathomMeetingEvent struct {
	Meeting      *Meeting
	Participants []ParticipantDescriptor
}

// ToMeeting converts the payload into a Meeting. Unparseable timestamps are treated as absent.
func (p *FathomWebhookPayload) ToMeeting(rawPayload []byte) *Meeting {
	if p == nil {
		return nil
	}

	meeting := &Meeting{
		FathomRecordingID:  strings.TrimSpace(p.RecordingID),
		Title:              utils.CoalesceString(strings.TrimSpace(p.Title), strings.TrimSpace(p.MeetingTitle)),
		MeetingTitle:       p.MeetingTitle,
		URL:                p.URL,
		ShareURL:           p.ShareURL,
		ScheduledStartTime: parseFathomTime(p.ScheduledStartTime),
		ScheduledEndTime:   parseFathomTime(p.ScheduledEndTime),
		RecordingStartTime: parseFathomTime(p.RecordingStartTime),
		RecordingEndTime:   parseFathomTime(p.RecordingEndTime),
		TranscriptLanguage: p.TranscriptLanguage,
		RawPayload:         rawPayload,
	}
	meeting.DurationMinutes = DurationMinutesBetween(meeting.RecordingStartTime, meeting.RecordingEndTime)
	if meeting.DurationMinutes == nil {
		meeting.DurationMinutes = DurationMinutesBetween(meeting.ScheduledStartTime, meeting.ScheduledEndTime)
	}

	if p.DefaultSummary != nil && p.DefaultSummary.MarkdownFormatted != nil &&
		strings.TrimSpace(*p.DefaultSummary.MarkdownFormatted) != "" {
		summary := *p.DefaultSummary.MarkdownFormatted
		meeting.Summary = &summary
	}

	for _, item := range p.Transcript {
		meeting.Transcript = append(meeting.Transcript, TranscriptEntry{
			Speaker:      item.Speaker.DisplayName,
			SpeakerEmail: NormalizeEmail(item.Speaker.MatchedCalendarInviteeEmail),
			Text:         item.Text,
			Timestamp:    item.Timestamp,
		})
	}

	for _, item := range p.ActionItems {
		actionItem := ActionItem{
			Description:   item.Description,
			Completed:     item.Completed,
			UserGenerated: item.UserGenerated,
			Timestamp:     item.RecordingTimestamp,
			PlaybackURL:   item.RecordingPlaybackURL,
		}
		if item.Assignee != nil {
			actionItem.Assignee = item.Assignee.Name
			actionItem.AssigneeEmail = NormalizeEmail(item.Assignee.Email)
		}
		meeting.ActionItems = append(meeting.ActionItems, actionItem)
	}

	return meeting
}

// ParticipantDescriptors returns the invitees de-duplicated by normalized email, in
// payload order. Invitees Fathom did not classify are internal when their domain is
// the recorder's domain or one of internalDomains, and external otherwise.
func (p *FathomWebhookPayload) ParticipantDescriptors(internalDomains []string) []ParticipantDescriptor {
	if p == nil {
		return nil
	}

	internal := make(map[string]struct{}, len(internalDomains)+1)
	for _, d := range internalDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			internal[d] = struct{}{}
		}
	}
	if p.RecordedBy != nil {
		if d := recorderDomain(p.RecordedBy); d != "" {
			internal[d] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(p.CalendarInvitees))
	descriptors := make([]ParticipantDescriptor, 0, len(p.CalendarInvitees))
	for _, invitee := range p.CalendarInvitees {
		email := NormalizeEmail(invitee.Email)
		if email != "" {
			if _, dup := seen[email]; dup {
				continue
			}
			seen[email] = struct{}{}
		}

		external := false
		if invitee.IsExternal != nil {
			external = *invitee.IsExternal
		} else {
			domain := strings.ToLower(strings.TrimSpace(invitee.EmailDomain))
			if domain == "" {
				domain = EmailDomain(email)
			}
			_, isInternal := internal[domain]
			external = domain != "" && !isInternal
		}

		descriptors = append(descriptors, ParticipantDescriptor{
			Name:       strings.TrimSpace(invitee.Name),
			Email:      email,
			IsExternal: external,
		})
	}
	return descriptors
}

func recorderDomain(u *FathomUser) string {
	if d := strings.ToLower(strings.TrimSpace(u.EmailDomain)); d != "" {
		return d
	}
	return EmailDomain(NormalizeEmail(u.Email))
}

func parseFathomTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
