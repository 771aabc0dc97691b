// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("SCHEDULER_TIMEZONE", "Europe/Berlin")

	env := parseEnv()
	assert.Equal(t, "9090", env.Port)
	assert.Equal(t, domain.BackendMemory, env.Storage.Backend)
	assert.Equal(t, 2525, env.SMTP.Port)
	assert.True(t, env.SMTPEnabled)
	assert.Equal(t, storage.DefaultFallbackPath, env.FallbackPath)

	t.Setenv("STORAGE_FALLBACK_PATH", "")
	t.Setenv("SMTP_PORT", "smtp")
	env = parseEnv()
	assert.Empty(t, env.FallbackPath)
	assert.Equal(t, 1025, env.SMTP.Port)
}

func TestSetupServiceConfig(t *testing.T) {
	cfg := setupServiceConfig(environment{Timezone: "Europe/Berlin"})
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())

	cfg = setupServiceConfig(environment{Timezone: "Mars/Olympus"})
	require.NotNil(t, cfg.Location)
	assert.NotEqual(t, "Mars/Olympus", cfg.Location.String())
}

func TestSetupEmailService(t *testing.T) {
	sender, err := setupEmailService(environment{})
	require.NoError(t, err)
	assert.IsType(t, &email.NoOpService{}, sender)

	_, err = setupEmailService(environment{SMTPEnabled: true, SMTP: email.SMTPConfig{Port: 25}})
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))

	sender, err = setupEmailService(environment{SMTPEnabled: true, SMTP: email.SMTPConfig{Host: "localhost", Port: 25, From: "scheduler@example.com"}})
	require.NoError(t, err)
	assert.IsType(t, &email.SMTPService{}, sender)
}
