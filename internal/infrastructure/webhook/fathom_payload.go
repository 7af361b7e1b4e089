// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/go-viper/mapstructure/v2"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// FathomPayloadParser turns raw Fathom webhook bodies into meeting events.
type FathomPayloadParser struct {
	internalDomains []string
}

// NewFathomPayloadParser creates a parser. internalDomains classify invitees that
// Fathom did not mark as internal or external.
func NewFathomPayloadParser(internalDomains []string) *FathomPayloadParser {
	return &FathomPayloadParser{internalDomains: internalDomains}
}

// Parse validates the body once and converts it into a meeting plus participant descriptors.
// Invalid JSON yields a Validation error wrapping domain.ErrMalformedPayload. A valid
// object without a recording id yields a Validation error wrapping domain.ErrMissingRecordingID.
func (p *FathomPayloadParser) Parse(body []byte) (*models.FathomMeetingEvent, error) {
	payload, err := decodeFathomPayload(body)
	if err != nil {
		return nil, err
	}

	meeting := payload.ToMeeting(body)
	if meeting.FathomRecordingID == "" {
		return nil, domain.NewValidationError("payload has no recording_id", domain.ErrMissingRecordingID)
	}

	return &models.FathomMeetingEvent{
		Meeting:      meeting,
		Participants: payload.ParticipantDescriptors(p.internalDomains),
	}, nil
}

func decodeFathomPayload(body []byte) (*models.FathomWebhookPayload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.NewValidationError("empty request body", domain.ErrMalformedPayload)
	}

	// Numbers are kept as json.Number so large recording ids are not rounded.
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, domain.NewValidationError("invalid JSON body", domain.ErrMalformedPayload, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.NewValidationError("trailing data after JSON body", domain.ErrMalformedPayload)
	}

	object, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.NewValidationError("JSON body is not an object", domain.ErrMalformedPayload)
	}

	var payload models.FathomWebhookPayload
	config := mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &payload,
	}
	payloadDecoder, err := mapstructure.NewDecoder(&config)
	if err != nil {
		return nil, domain.NewInternalError("error creating payload decoder", err)
	}
	if err := payloadDecoder.Decode(object); err != nil {
		return nil, domain.NewValidationError("payload does not match the Fathom schema", domain.ErrMalformedPayload, err)
	}

	return &payload, nil
}
