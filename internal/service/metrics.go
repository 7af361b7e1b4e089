// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"

// Delivery outcomes recorded on meeting_ingest.deliveries.
const (
	OutcomeIngested          = "ingested"
	OutcomeSkipped           = "skipped"
	OutcomeRejectedAuth      = "rejected_auth"
	OutcomeRejectedMalformed = "rejected_malformed"
	OutcomeFailed            = "failed"
)

// IngestMetrics holds the ingestion instruments. A nil *IngestMetrics records nothing.
type IngestMetrics struct {
	deliveries      metric.Int64Counter
	contactsCreated metric.Int64Counter
	duration        metric.Float64Histogram
}

// NewIngestMetrics creates the instruments on the given provider.
func NewIngestMetrics(provider metric.MeterProvider) (*IngestMetrics, error) {
	meter := provider.Meter(meterName)

	deliveries, err := meter.Int64Counter("meeting_ingest.deliveries",
		metric.WithDescription("Webhook deliveries by outcome"))
	if err != nil {
		return nil, err
	}
	contactsCreated, err := meter.Int64Counter("meeting_ingest.contacts_created",
		metric.WithDescription("Contacts created for external meeting participants"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("meeting_ingest.duration",
		metric.WithDescription("Time spent ingesting one delivery"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &IngestMetrics{
		deliveries:      deliveries,
		contactsCreated: contactsCreated,
		duration:        duration,
	}, nil
}

// RecordDelivery counts one delivery and its processing time.
func (m *IngestMetrics) RecordDelivery(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.deliveries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordContactsCreated adds n created contacts.
func (m *IngestMetrics) RecordContactsCreated(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.contactsCreated.Add(ctx, int64(n))
}
