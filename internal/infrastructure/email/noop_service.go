// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// NoOpService is a no-operation email service that logs but doesn't send emails
type NoOpService struct{}

var _ domain.EmailSender = (*NoOpService)(nil)

// NewNoOpService creates a new no-op email service
func NewNoOpService() *NoOpService {
	return &NoOpService{}
}

// Send logs the email but doesn't send it
func (s *NoOpService) Send(ctx context.Context, email domain.RenderedEmail) error {
	ctx = logging.AppendCtx(ctx, slog.String("recipient_email", email.To))
	ctx = logging.AppendCtx(ctx, slog.String("email_subject", email.Subject))

	slog.DebugContext(ctx, "email service disabled, skipping email",
		"has_attachment", email.ICSAttachment != nil)
	return nil
}
