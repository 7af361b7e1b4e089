// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"strings"
	"time"
)

const (
	// ContactSourceMeeting marks contacts created from meeting participants.
	ContactSourceMeeting = "meeting"
	// ContactStatusNew is the initial status of a lazily created contact.
	ContactStatusNew = "new"
)

// Contact represents a CRM lead. The CRM owns the record; the ingestion pipeline
// only looks contacts up by email and lazily creates missing ones.
type Contact struct {
	UID       string     `json:"uid"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Company   string     `json:"company,omitempty"`
	Source    string     `json:"source"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewMeetingContact builds a contact for an external participant that has no
// match in the CRM yet. The name falls back to the email local part and the
// company to the email domain.
func NewMeetingContact(name, email string) *Contact {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" {
		name = EmailLocalPart(email)
	}
	return &Contact{
		Name:    name,
		Email:   email,
		Company: EmailDomain(email),
		Source:  ContactSourceMeeting,
		Status:  ContactStatusNew,
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lowercased part after the last "@", or "" if there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// EmailLocalPart returns the part before the last "@".
func EmailLocalPart(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at]
}
