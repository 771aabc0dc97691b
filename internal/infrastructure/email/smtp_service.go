// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"context"
	"log/slog"
	"net/mail"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// SMTPService implements [domain.EmailSender] using SMTP
type SMTPService struct {
	config SMTPConfig
}

// SMTPConfig holds the SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string // Optional for authenticated SMTP
	Password string // Optional for authenticated SMTP
}

var _ domain.EmailSender = (*SMTPService)(nil)

// NewSMTPService creates a new SMTP email service
func NewSMTPService(config SMTPConfig) (*SMTPService, error) {
	var problems []string
	if config.Host == "" {
		problems = append(problems, "SMTP host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		problems = append(problems, "SMTP port must be between 1 and 65535")
	}
	if _, err := mail.ParseAddress(config.From); err != nil {
		problems = append(problems, "SMTP from address is invalid")
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid SMTP configuration", problems)
	}
	return &SMTPService{config: config}, nil
}

// Send delivers a rendered email as a text and HTML multipart message.
func (s *SMTPService) Send(ctx context.Context, email domain.RenderedEmail) error {
	ctx = logging.AppendCtx(ctx, slog.String("recipient_email", email.To))
	ctx = logging.AppendCtx(ctx, slog.String("email_subject", email.Subject))

	if _, err := mail.ParseAddress(email.To); err != nil {
		return domain.NewValidationError("invalid recipient email address", err)
	}

	htmlContent, err := HTMLBody(email.Body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render HTML body", logging.ErrKey, err)
		return err
	}

	message := buildEmailMessage(email.To, email.Subject, htmlContent, email.Body, email.ICSAttachment, s.config)
	if err := sendEmailMessage(email.To, message, s.config); err != nil {
		slog.ErrorContext(ctx, "failed to send email", logging.ErrKey, err)
		return domain.NewUnavailableError("email delivery failed", err)
	}

	slog.InfoContext(ctx, "email sent successfully")
	return nil
}
