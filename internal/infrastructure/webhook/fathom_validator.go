// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/constants"
)

const (
	// DefaultTimestampTolerance is how far a delivery timestamp may be from now, in either direction.
	DefaultTimestampTolerance = 300 * time.Second

	fathomSecretPrefix     = "whsec_"
	fathomSignatureVersion = "v1"
)

// FathomWebhookValidator verifies Fathom webhook signatures.
// It implements domain.WebhookVerifier.
type FathomWebhookValidator struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewFathomWebhookValidator creates a validator for the given secret. An empty secret
// disables verification. A zero tolerance means DefaultTimestampTolerance.
func NewFathomWebhookValidator(secret string, tolerance time.Duration) *FathomWebhookValidator {
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	return &FathomWebhookValidator{
		key:       decodeFathomSecret(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// decodeFathomSecret strips the whsec_ prefix and base64-decodes the rest.
// Secrets that are not valid base64 are used as raw bytes.
func decodeFathomSecret(secret string) []byte {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	trimmed := strings.TrimPrefix(secret, fathomSecretPrefix)
	if key, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(key) > 0 {
		return key
	}
	return []byte(trimmed)
}

// Enabled reports whether a secret is configured.
func (v *FathomWebhookValidator) Enabled() bool {
	return len(v.key) > 0
}

// Verify validates the delivery headers against the raw body. It is a no-op when no
// secret is configured.
func (v *FathomWebhookValidator) Verify(headers http.Header, body []byte) error {
	if !v.Enabled() {
		return nil
	}
	return v.ValidateSignature(
		body,
		headers.Get(constants.WebhookIDHeader),
		headers.Get(constants.WebhookTimestampHeader),
		headers.Get(constants.WebhookSignatureHeader),
	)
}

// ValidateSignature checks that at least one of the space separated signatures matches
// HMAC-SHA256 over "{deliveryID}.{timestamp}.{body}" and that the timestamp is within tolerance.
func (v *FathomWebhookValidator) ValidateSignature(body []byte, deliveryID, timestamp, signatures string) error {
	if deliveryID == "" || timestamp == "" || signatures == "" {
		return domain.NewUnauthorizedError("missing webhook signature headers", domain.ErrAuthenticationFailure)
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return domain.NewUnauthorizedError(fmt.Sprintf("invalid timestamp format: %v", err), domain.ErrAuthenticationFailure)
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return domain.NewUnauthorizedError("request timestamp outside tolerance", domain.ErrAuthenticationFailure)
	}

	expected := []byte(v.sign(deliveryID, timestamp, body))
	for _, candidate := range strings.Fields(signatures) {
		if version, sig, found := strings.Cut(candidate, ","); found {
			if version != fathomSignatureVersion {
				continue
			}
			candidate = sig
		}
		// Compare signatures using constant-time comparison
		if hmac.Equal([]byte(candidate), expected) {
			return nil
		}
	}

	return domain.NewUnauthorizedError("invalid webhook signature", domain.ErrAuthenticationFailure)
}

func (v *FathomWebhookValidator) sign(deliveryID, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, v.key)
	h.Write([]byte(deliveryID))
	h.Write([]byte("."))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
