// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Constants for the HTTP request headers
const (
	// AuthorizationHeader is the header name for the authorization
	AuthorizationHeader string = "authorization"

	// RequestIDHeader is the header name for the request ID
	RequestIDHeader string = "X-REQUEST-ID"

	// WebhookIDHeader carries the provider's unique delivery id.
	WebhookIDHeader string = "webhook-id"

	// WebhookTimestampHeader carries the delivery time in Unix seconds.
	WebhookTimestampHeader string = "webhook-timestamp"

	// WebhookSignatureHeader carries one or more space separated "v1,<base64>" signatures.
	WebhookSignatureHeader string = "webhook-signature"
)

// HTTP routes served by the meeting ingest service.
const (
	// FathomWebhookPath receives Fathom "new meeting content ready" deliveries.
	FathomWebhookPath = "/webhooks/fathom"
	// LivenessPath always answers 200 while the process runs.
	LivenessPath = "/livez"
	// ReadinessPath answers 200 only when the store is reachable.
	ReadinessPath = "/readyz"
)

// DefaultWebhookMaxBodyBytes bounds the size of a webhook body.
const DefaultWebhookMaxBodyBytes int64 = 5 << 20

// contextRequestID is the type for the request ID context key
type contextRequestID string

// RequestIDContextID is the context ID for the request ID
const RequestIDContextID contextRequestID = "X-REQUEST-ID"

// contextAuthorization is the type for the authorization context key
type contextAuthorization string

// AuthorizationContextID is the context ID for the authorization
const AuthorizationContextID contextAuthorization = "authorization"
