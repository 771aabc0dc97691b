// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// MockStorageEventPublisher implements StorageEventPublisher for testing
type MockStorageEventPublisher struct {
	mock.Mock
}

func (m *MockStorageEventPublisher) PublishStorageEvent(ctx context.Context, event domain.StorageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStorageEventPublisher) PublisherReady() bool {
	args := m.Called()
	return args.Bool(0)
}
