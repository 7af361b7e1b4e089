// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"net/http"
	"time"
)

// IngestState is a stage of the webhook ingestion pipeline.
type IngestState string

// Pipeline stages. The rejected states are terminal early exits.
const (
	IngestStateReceived          IngestState = "received"
	IngestStateVerified          IngestState = "verified"
	IngestStateParsed            IngestState = "parsed"
	IngestStateReconciled        IngestState = "reconciled"
	IngestStatePersisted         IngestState = "persisted"
	IngestStateResponded         IngestState = "responded"
	IngestStateRejectedAuth      IngestState = "rejected_auth"
	IngestStateRejectedMalformed IngestState = "rejected_malformed"
	IngestStateRejectedMethod    IngestState = "rejected_method"
)

// SkipReasonNoRecordingID is reported when a delivery has no recording id.
const SkipReasonNoRecordingID = "no recording id"

// WebhookDelivery is one inbound webhook request, with the body exactly as received.
type WebhookDelivery struct {
	Headers    http.Header
	Body       []byte
	ReceivedAt time.Time
}

// IngestResult is what the pipeline did with a delivery.
type IngestResult struct {
	State            IngestState
	Skipped          bool
	Reason           string
	MeetingUID       string
	RecordingID      string
	PrimaryContactID *string
	Participants     int
	ContactsCreated  int
}

// WebhookResponse is the JSON body returned to the provider.
type WebhookResponse struct {
	OK               bool    `json:"ok"`
	Skipped          bool    `json:"skipped,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	MeetingID        string  `json:"meeting_id,omitempty"`
	PrimaryContactID *string `json:"primary_contact_id,omitempty"`
	Participants     *int    `json:"participants,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// NewWebhookErrorResponse is the body of a rejected delivery.
func NewWebhookErrorResponse(message string) WebhookResponse {
	return WebhookResponse{OK: false, Error: message}
}

// NewWebhookResponse converts an ingestion result into the provider-facing response.
func NewWebhookResponse(result *IngestResult) WebhookResponse {
	if result == nil {
		return WebhookResponse{OK: true}
	}
	if result.Skipped {
		return WebhookResponse{OK: true, Skipped: true, Reason: result.Reason}
	}
	participants := result.Participants
	return WebhookResponse{
		OK:               true,
		MeetingID:        result.MeetingUID,
		PrimaryContactID: result.PrimaryContactID,
		Participants:     &participants,
	}
}
