// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"fmt"
	"time"
)

// ParticipantDescriptor is a meeting invitee as described by the provider.
type ParticipantDescriptor struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsExternal bool   `json:"is_external"`
}

// MeetingParticipant is a per-meeting attendee row, unique by (meeting, email).
// Internal participants never carry a contact reference.
type MeetingParticipant struct {
	UID        string     `json:"uid"`
	MeetingUID string     `json:"meeting_uid"`
	LeadID     *string    `json:"lead_id,omitempty"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	IsExternal bool       `json:"is_external"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Tags generates a consistent set of tags for the meeting participant.
func (p *MeetingParticipant) Tags() []string {
	if p == nil {
		return nil
	}

	tags := []string{}
	if p.UID != "" {
		tags = append(tags, p.UID, fmt.Sprintf("meeting_participant_uid:%s", p.UID))
	}
	if p.MeetingUID != "" {
		tags = append(tags, fmt.Sprintf("meeting_uid:%s", p.MeetingUID))
	}
	if p.LeadID != nil {
		tags = append(tags, fmt.Sprintf("lead_id:%s", *p.LeadID))
	}
	if p.Email != "" {
		tags = append(tags, fmt.Sprintf("email:%s", p.Email))
	}
	return tags
}

// ReconcileResult is the outcome of matching a meeting's invitees against the contact store.
type ReconcileResult struct {
	// Participants holds one row per kept invitee, in invitee order.
	Participants []MeetingParticipant
	// PrimaryContactUID is the first pre-existing contact, else the first created one.
	PrimaryContactUID *string
	ContactsCreated   int
	ContactsLinked    int
	Skipped           int
}

// PersistResult describes what the persister wrote.
type PersistResult struct {
	Meeting               *Meeting
	ParticipantsPersisted int
	// ParticipantsErr is set when the participant batch failed after the meeting was written.
	ParticipantsErr error
}
