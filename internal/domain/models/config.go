// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "slices"

// ConfigID is the id of the singleton configuration record.
const ConfigID = "meeting_config"

// DefaultTimezone is the reference timezone for availability.
const DefaultTimezone = "Asia/Kolkata"

// AvailabilityConfig describes the working hours slots are generated from.
// WorkingDays uses 0 for Sunday through 6 for Saturday.
type AvailabilityConfig struct {
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Timezone     string `json:"timezone"`
	WorkingDays  []int  `json:"workingDays"`
	SlotDuration int    `json:"slotDuration"`
	BufferTime   int    `json:"bufferTime"`
}

// MeetingConfig is the singleton scheduler configuration.
type MeetingConfig struct {
	ID                   string             `json:"id"`
	Availability         AvailabilityConfig `json:"availability"`
	Durations            []int              `json:"durations"`
	MeetingTypes         []MeetingType      `json:"meetingTypes"`
	EmailTemplates       []EmailTemplate    `json:"emailTemplates"`
	DefaultPhoneNumber   string             `json:"defaultPhoneNumber,omitempty"`
	AutoGenerateJoinLink bool               `json:"autoGenerateJoinLink"`
	ReminderHours        int                `json:"reminderHours"`
}

func (c *MeetingConfig) GetID() string   { return c.ID }
func (c *MeetingConfig) SetID(id string) { c.ID = id }

// AllowsDuration reports whether minutes is enabled in the configuration.
func (c *MeetingConfig) AllowsDuration(minutes int) bool {
	return slices.Contains(c.Durations, minutes)
}

// AllowsMeetingType reports whether t is enabled in the configuration.
func (c *MeetingConfig) AllowsMeetingType(t MeetingType) bool {
	return slices.Contains(c.MeetingTypes, t)
}

// Clone returns a deep copy of c.
func (c *MeetingConfig) Clone() *MeetingConfig {
	out := *c
	out.Availability.WorkingDays = slices.Clone(c.Availability.WorkingDays)
	out.Durations = slices.Clone(c.Durations)
	out.MeetingTypes = slices.Clone(c.MeetingTypes)
	out.EmailTemplates = make([]EmailTemplate, len(c.EmailTemplates))
	for i, tmpl := range c.EmailTemplates {
		tmpl.Variables = slices.Clone(tmpl.Variables)
		out.EmailTemplates[i] = tmpl
	}
	return &out
}

// DefaultMeetingConfig returns the configuration used on first access and after a reset.
func DefaultMeetingConfig() *MeetingConfig {
	return &MeetingConfig{
		ID: ConfigID,
		Availability: AvailabilityConfig{
			StartTime:    "10:00",
			EndTime:      "18:00",
			Timezone:     DefaultTimezone,
			WorkingDays:  []int{1, 2, 3, 4, 5},
			SlotDuration: 15,
			BufferTime:   0,
		},
		Durations:            []int{15, 30, 60},
		MeetingTypes:         []MeetingType{MeetingTypeVideo, MeetingTypePhone},
		EmailTemplates:       []EmailTemplate{},
		AutoGenerateJoinLink: true,
		ReminderHours:        24,
	}
}

// ConfigPresets returns the named configuration presets.
func ConfigPresets() map[string]*MeetingConfig {
	business := DefaultMeetingConfig()
	business.Availability.StartTime = "09:00"
	business.Availability.EndTime = "17:00"
	business.Availability.WorkingDays = []int{1, 2, 3, 4, 5}
	business.Availability.SlotDuration = 30
	business.Availability.BufferTime = 15
	business.Durations = []int{30, 60}
	business.ReminderHours = 24

	flexible := DefaultMeetingConfig()
	flexible.Availability.StartTime = "08:00"
	flexible.Availability.EndTime = "20:00"
	flexible.Availability.WorkingDays = []int{1, 2, 3, 4, 5, 6}
	flexible.Availability.SlotDuration = 15
	flexible.Availability.BufferTime = 0
	flexible.Durations = []int{15, 30, 60}
	flexible.ReminderHours = 2

	minimal := DefaultMeetingConfig()
	minimal.Availability.StartTime = "10:00"
	minimal.Availability.EndTime = "16:00"
	minimal.Availability.WorkingDays = []int{1, 2, 3, 4, 5}
	minimal.Availability.SlotDuration = 60
	minimal.Availability.BufferTime = 30
	minimal.Durations = []int{60}
	minimal.MeetingTypes = []MeetingType{MeetingTypeVideo}
	minimal.ReminderHours = 48

	return map[string]*MeetingConfig{
		"default":  DefaultMeetingConfig(),
		"business": business,
		"flexible": flexible,
		"minimal":  minimal,
	}
}
