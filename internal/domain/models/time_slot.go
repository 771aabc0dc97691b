// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// TimeSlot is one bookable unit on a date. It is recomputed on every query.
type TimeSlot struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Blocked   bool   `json:"blocked,omitempty"`
}

// DaySlots groups the slots generated for one date.
type DaySlots struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// SlotID builds the identity of the slot at date and time.
func SlotID(date, time string) string {
	return date + "-" + time
}
