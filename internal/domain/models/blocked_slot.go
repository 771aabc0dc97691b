// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// BlockedTimeSlot is an admin-declared unavailability window on one date.
type BlockedTimeSlot struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (b *BlockedTimeSlot) GetID() string   { return b.ID }
func (b *BlockedTimeSlot) SetID(id string) { b.ID = id }

// FullDayReason is the reason recorded by full-day blocks.
const FullDayReason = "Full day blocked"

// Full-day block bounds.
const (
	FullDayStart = "00:00"
	FullDayEnd   = "23:59"
)

// RecurringBlockRequest creates the same window on matching weekdays across a date range.
type RecurringBlockRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Weekdays  []int  `json:"weekdays"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Reason    string `json:"reason,omitempty"`
}

// BlockedSlotStatistics summarises the blocked slots collection.
type BlockedSlotStatistics struct {
	Total                int            `json:"total"`
	ByDate               map[string]int `json:"byDate"`
	TotalBlockedHours    float64        `json:"totalBlockedHours"`
	AverageBlockDuration float64        `json:"averageBlockDuration"`
	Upcoming             int            `json:"upcoming"`
	Expired              int            `json:"expired"`
}
