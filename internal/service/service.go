// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

// Service is implemented by every service the handlers depend on.
type Service interface {
	ServiceReady() bool
}

var (
	_ Service = (*ContactReconciler)(nil)
	_ Service = (*MeetingPersister)(nil)
	_ Service = (*MeetingIngestService)(nil)
	_ Service = (*MeetingQueryService)(nil)
)

// ServiceConfig is the configuration for the Services.
type ServiceConfig struct {
	// ReconcileConcurrency bounds parallel contact lookups per delivery.
	ReconcileConcurrency int
	// EventsEnabled turns on publishing of ingestion events.
	EventsEnabled bool
}
