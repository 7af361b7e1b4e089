// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// WebhookVerifier authenticates an inbound webhook delivery from its headers and raw body.
type WebhookVerifier interface {
	// Verify returns an Unauthorized error when the delivery is not authentic.
	Verify(headers http.Header, body []byte) error
	// Enabled reports whether a secret is configured.
	Enabled() bool
}

// WebhookPayloadParser validates a raw webhook body and converts it into a meeting event.
type WebhookPayloadParser interface {
	// Parse returns a Validation error wrapping ErrMalformedPayload or ErrMissingRecordingID.
	Parse(body []byte) (*models.FathomMeetingEvent, error)
}
