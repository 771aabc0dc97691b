// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/middleware"
)

// gracefulShutdownSeconds bounds how long in-flight requests may take to finish.
const gracefulShutdownSeconds = 25

// setupHTTPServer configures and starts the HTTP server
func setupHTTPServer(flags flags, h *handlers.Handler, gracefulCloseWG *sync.WaitGroup) *http.Server {
	var handler http.Handler = h.Routes()

	// Add HTTP middleware
	// Note: Order matters - RequestIDMiddleware should come first in the chain,
	// so it should be the last middleware added to the handler since it is executed in reverse order.
	handler = middleware.RequestLoggerMiddleware()(handler)
	handler = middleware.RequestIDMiddleware()(handler)
	handler = otelhttp.NewHandler(handler, "scheduler-api")

	// Set up http listener in a goroutine using provided command line parameters.
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
	}
	gracefulCloseWG.Add(1)
	go func() {
		slog.With("addr", addr).Debug("starting http server, listening on port " + flags.Port)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("http listener error")
			os.Exit(1)
		}
		// Because ErrServerClosed is *immediately* returned when Shutdown is
		// called, not when when Shutdown completes, this must not yet decrement
		// the wait group.
	}()

	return httpServer
}

// gracefulShutdown stops the HTTP server, then the background work, then
// closes the external connections.
func gracefulShutdown(httpServer *http.Server, gracefulCloseWG *sync.WaitGroup, cancel context.CancelFunc, closers ...func() error) {
	ctx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownSeconds*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down http server")
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.With(logging.ErrKey, err).Error("http shutdown error")
	}
	gracefulCloseWG.Done()

	cancel()

	done := make(chan struct{})
	go func() {
		gracefulCloseWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("graceful shutdown timed out")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			slog.With(logging.ErrKey, err).Error("error closing resource")
		}
	}
	slog.Info("graceful shutdown complete")
}
