// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, email domain.RenderedEmail) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
