// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

func TestNoOpService_Send(t *testing.T) {
	service := NewNoOpService()

	assert.NotPanics(t, func() {
		err := service.Send(context.Background(), domain.RenderedEmail{
			To:      "test@example.com",
			Subject: "Meeting Confirmed",
			Body:    "body",
		})
		assert.NoError(t, err)

		err = service.Send(context.Background(), domain.RenderedEmail{
			To:            "test@example.com",
			ICSAttachment: &domain.EmailAttachment{Filename: "meeting.ics"},
		})
		assert.NoError(t, err)
	})
}
