// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// NATS subjects that the meeting ingest service sends messages about.
const (
	// IndexFathomMeetingSubject is the subject for the ingested meeting indexing.
	// The subject is of the form: lfx.index.fathom_meeting
	IndexFathomMeetingSubject = "lfx.index.fathom_meeting"

	// IndexFathomMeetingParticipantSubject is the subject for the ingested meeting participant indexing.
	// The subject is of the form: lfx.index.fathom_meeting_participant
	IndexFathomMeetingParticipantSubject = "lfx.index.fathom_meeting_participant"

	// MeetingIngestedSubject is the subject for meeting ingestion events.
	// The subject is of the form: lfx.meeting-ingest.meeting_ingested
	MeetingIngestedSubject = "lfx.meeting-ingest.meeting_ingested"
)

// NATS wildcard subjects that the meeting ingest service handles messages about.
const (
	// MeetingIngestAPIQueue is the queue group for the meeting ingest service.
	// The subject is of the form: lfx.meeting-ingest.queue
	MeetingIngestAPIQueue = "lfx.meeting-ingest.queue"
)

// NATS specific subjects that the meeting ingest service handles messages about.
const (
	// MeetingGetSubject returns the stored meeting for a recording id.
	// The subject is of the form: lfx.meeting-ingest.get_meeting
	MeetingGetSubject = "lfx.meeting-ingest.get_meeting"

	// MeetingGetParticipantsSubject returns the participants stored for a recording id.
	// The subject is of the form: lfx.meeting-ingest.get_participants
	MeetingGetParticipantsSubject = "lfx.meeting-ingest.get_participants"
)

// MessageAction is a type for the action of a meeting message.
type MessageAction string

// MessageAction constants for the action of a meeting message.
const (
	// ActionCreated is the action for a resource creation message.
	ActionCreated MessageAction = "created"
	// ActionUpdated is the action for a resource update message.
	ActionUpdated MessageAction = "updated"
)

// MeetingIndexerMessage is a NATS message schema for sending ingested resources to the indexer.
type MeetingIndexerMessage struct {
	Action  MessageAction     `json:"action"`
	Headers map[string]string `json:"headers"`
	Data    any               `json:"data"`
	// Tags is a list of tags to be set on the indexed resource for search.
	Tags []string `json:"tags"`
}

// MeetingIngestedMessage is published after a delivery has been persisted.
type MeetingIngestedMessage struct {
	MeetingUID        string    `json:"meeting_uid"`
	FathomRecordingID string    `json:"fathom_recording_id"`
	PrimaryContactUID *string   `json:"primary_contact_uid,omitempty"`
	Participants      int       `json:"participants"`
	ContactsCreated   int       `json:"contacts_created"`
	IngestedAt        time.Time `json:"ingested_at"`
}
