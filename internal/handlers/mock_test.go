// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
)

// mockIngester implements MeetingIngester for testing
type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, delivery models.WebhookDelivery) (*models.IngestResult, error) {
	args := m.Called(ctx, delivery)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IngestResult), args.Error(1)
}

func (m *mockIngester) ServiceReady() bool {
	args := m.Called()
	return args.Bool(0)
}

type mockReadiness struct {
	mock.Mock
}

func (m *mockReadiness) IsReady(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type staticReady bool

func (r staticReady) HandlerReady() bool { return bool(r) }
