// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
)

// reminderInterval is how often due reminders are sent.
const reminderInterval = 15 * time.Minute

// setupServiceConfig resolves the scheduler timezone.
func setupServiceConfig(env environment) service.ServiceConfig {
	cfg := service.DefaultServiceConfig()
	if env.Timezone == "" {
		return cfg
	}
	loc, err := time.LoadLocation(env.Timezone)
	if err != nil {
		slog.With(logging.ErrKey, err, "timezone", env.Timezone).Warn("invalid SCHEDULER_TIMEZONE, using default")
		return cfg
	}
	cfg.Location = loc
	return cfg
}

// setupEmailService returns the SMTP sender when email is enabled, otherwise a no-op sender.
func setupEmailService(env environment) (domain.EmailSender, error) {
	if !env.SMTPEnabled {
		slog.Info("email disabled, using no-op sender")
		return email.NewNoOpService(), nil
	}
	sender, err := email.NewSMTPService(env.SMTP)
	if err != nil {
		return nil, err
	}
	slog.Info("email enabled", "smtp_host", env.SMTP.Host, "smtp_port", env.SMTP.Port)
	return sender, nil
}

// setupStorage opens the configured backend. A backend that cannot be reached
// is replaced by the fallback store; only an invalid configuration fails.
func setupStorage(ctx context.Context, env environment, serviceConfig service.ServiceConfig) (*storage.Factory, error) {
	factory := storage.NewFactory(env.Storage,
		storage.WithLocation(serviceConfig.Location),
		storage.WithClock(serviceConfig.Now),
		storage.WithFallbackPath(env.FallbackPath),
	)
	if err := factory.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := factory.EmailTemplates().EnsureDefaults(ctx); err != nil {
		slog.With(logging.ErrKey, err).Warn("failed to store default email templates")
	}
	return factory, nil
}

// setupNATS connects to NATS for storage change events. It returns nil when
// NATS_URL is unset.
func setupNATS(env environment) (*nats.Conn, error) {
	if env.NatsURL == "" {
		slog.Info("NATS_URL not set, storage events are not published")
		return nil, nil
	}
	nc, err := messaging.Connect(env.NatsURL)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to NATS", "url", nc.ConnectedUrl())
	return nc, nil
}

// startReminderLoop sends due reminders every reminderInterval until ctx is done.
func startReminderLoop(ctx context.Context, bookings *service.BookingService, gracefulCloseWG *sync.WaitGroup) {
	gracefulCloseWG.Add(1)
	go func() {
		defer gracefulCloseWG.Done()
		ticker := time.NewTicker(reminderInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sent, err := bookings.SendReminders(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "failed to send reminders", logging.ErrKey, err)
					continue
				}
				if sent > 0 {
					slog.InfoContext(ctx, "reminders sent", "count", sent)
				}
			}
		}
	}()
}
