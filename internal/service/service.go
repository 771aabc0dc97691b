// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service holds the scheduler's domain services. Services never cache
// records: every call reads through the storage adapter it was built with.
package service

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

type Service interface {
	ServiceReady() bool
}

// ServiceConfig is the configuration shared by the services.
type ServiceConfig struct {
	// Location is the reference timezone for "now", dates and slot times.
	Location *time.Location
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultServiceConfig uses the default scheduler timezone and the system clock.
func DefaultServiceConfig() ServiceConfig {
	loc, err := time.LoadLocation(models.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return ServiceConfig{Location: loc, Now: time.Now}
}

func (c ServiceConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c ServiceConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Services is implemented by whatever owns the active storage backend. The
// storage factory rebuilds its services when the backend is switched, so
// callers look them up per operation instead of holding on to them.
type Services interface {
	Meetings() *MeetingService
	Config() *ConfigService
	BlockedSlots() *BlockedSlotService
	EmailTemplates() *EmailTemplateService
}
