// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main is the meeting scheduler API: availability, bookings and the
// storage administration endpoints, with storage change events published to
// NATS when configured.
package main

import (
	"context"
	_ "expvar"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/utils"
)

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry")
		return
	}
	closers := []func() error{func() error { return otelShutdown(context.Background()) }}

	emailService, err := setupEmailService(env)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up email service")
		return
	}
	joinLinks, err := email.NewJoinLinkGenerator(env.JoinLinkBase)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up join link generator")
		return
	}

	serviceConfig := setupServiceConfig(env)
	factory, err := setupStorage(ctx, env, serviceConfig)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up storage")
		return
	}
	closers = append([]func() error{factory.Close}, closers...)

	natsConn, err := setupNATS(env)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}
	if natsConn != nil {
		messageBuilder := messaging.NewMessageBuilder(natsConn)
		stopForwarding := messageBuilder.Forward(factory.Subscribe, domain.Collections...)
		closers = append([]func() error{
			func() error { stopForwarding(); return nil },
			func() error { return natsConn.Drain() },
		}, closers...)
	}

	bookingService := service.NewBookingService(factory, emailService, joinLinks, serviceConfig)
	startReminderLoop(ctx, bookingService, &gracefulCloseWG)

	handler := handlers.NewHandler(factory, bookingService)
	httpServer := setupHTTPServer(flags, handler, &gracefulCloseWG)

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, &gracefulCloseWG, cancel, closers...)
}
