// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/utils"
)

// flags are the command line flags for the scheduler.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the scheduler.
type environment struct {
	Port         string
	Timezone     string
	NatsURL      string
	JoinLinkBase string
	FallbackPath string
	SMTP         email.SMTPConfig
	SMTPEnabled  bool
	Storage      storage.Config
}

// parseFlags parses command line flags for the scheduler
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [logging.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// parseEnv parses environment variables for the scheduler. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func parseEnv() environment {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.With(logging.ErrKey, err).Warn("error loading .env file")
	}

	fallbackPath, ok := os.LookupEnv("STORAGE_FALLBACK_PATH")
	if !ok {
		fallbackPath = storage.DefaultFallbackPath
	}

	return environment{
		Port:         utils.Getenv("PORT", "8080"),
		Timezone:     os.Getenv("SCHEDULER_TIMEZONE"),
		NatsURL:      os.Getenv("NATS_URL"),
		JoinLinkBase: os.Getenv("JOIN_LINK_BASE_URL"),
		FallbackPath: fallbackPath,
		SMTP: email.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     utils.GetenvInt("SMTP_PORT", 1025),
			From:     os.Getenv("SMTP_FROM"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		SMTPEnabled: os.Getenv("EMAIL_ENABLED") == "true",
		Storage:     storage.ConfigFromEnv(),
	}
}
