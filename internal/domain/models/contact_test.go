// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMeetingContact(t *testing.T) {
	tests := []struct {
		name            string
		inputName       string
		inputEmail      string
		expectedName    string
		expectedEmail   string
		expectedCompany string
	}{
		{
			name:            "uses participant name",
			inputName:       "Jane Doe",
			inputEmail:      "jane@acme.com",
			expectedName:    "Jane Doe",
			expectedEmail:   "jane@acme.com",
			expectedCompany: "acme.com",
		},
		{
			name:            "falls back to local part",
			inputName:       "  ",
			inputEmail:      " Bob.Smith@Example.ORG ",
			expectedName:    "bob.smith",
			expectedEmail:   "bob.smith@example.org",
			expectedCompany: "example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMeetingContact(tt.inputName, tt.inputEmail)
			assert.Equal(t, tt.expectedName, c.Name)
			assert.Equal(t, tt.expectedEmail, c.Email)
			assert.Equal(t, tt.expectedCompany, c.Company)
			assert.Equal(t, ContactSourceMeeting, c.Source)
			assert.Equal(t, ContactStatusNew, c.Status)
			assert.Empty(t, c.UID)
		})
	}
}

func TestEmailHelpers(t *testing.T) {
	assert.Equal(t, "acme.com", EmailDomain("jane@ACME.com"))
	assert.Equal(t, "", EmailDomain("no-at-sign"))
	assert.Equal(t, "", EmailDomain("trailing@"))
	assert.Equal(t, "jane", EmailLocalPart("jane@acme.com"))
	assert.Equal(t, "no-at-sign", EmailLocalPart("no-at-sign"))
	assert.Equal(t, "jane@acme.com", NormalizeEmail("  Jane@Acme.COM"))
}
