// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// defaultOccurrenceLimit caps the occurrences listed for one booking.
const defaultOccurrenceLimit = 10

// GetAvailability lists the slots between the start and end dates. With a
// duration only the slots able to hold it are returned.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" {
		writeError(w, r, domain.NewValidationError("start date is required"))
		return
	}
	if end == "" {
		end = start
	}
	duration, err := intQuery(r, "duration", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var days []models.DaySlots
	if duration > 0 {
		days, err = h.bookings.SlotsForDuration(r.Context(), start, end, duration)
	} else {
		days, err = h.bookings.Slots(r.Context(), start, end)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// GetNextAvailable returns the earliest slot for the requested duration.
func (h *Handler) GetNextAvailable(w http.ResponseWriter, r *http.Request) {
	duration, err := intQuery(r, "duration", 30)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slot, err := h.bookings.NextAvailable(r.Context(), duration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if slot == nil {
		writeError(w, r, domain.NewNotFoundError("no available slot in the search window"))
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// bookingQuery builds the list query from the request's filters.
func bookingQuery(r *http.Request) (*domain.Query, error) {
	q := r.URL.Query()
	query := &domain.Query{Where: map[string]any{}}
	for _, field := range []string{"status", "email", "date", "meetingType"} {
		if v := q.Get(field); v != "" {
			if strings.Contains(v, ",") {
				query.Where[field] = strings.Split(v, ",")
			} else {
				query.Where[field] = v
			}
		}
	}

	sortField := q.Get("sort")
	if sortField == "" {
		sortField = "date"
	}
	direction := domain.SortAsc
	if q.Get("order") == string(domain.SortDesc) {
		direction = domain.SortDesc
	}
	query.OrderBy = &domain.OrderBy{Field: sortField, Direction: direction}

	var err error
	if query.Limit, err = intQuery(r, "limit", 0); err != nil {
		return nil, err
	}
	if query.Offset, err = intQuery(r, "offset", 0); err != nil {
		return nil, err
	}
	if query.Limit < 0 || query.Offset < 0 {
		return nil, domain.NewValidationError("limit and offset must not be negative")
	}
	return query, nil
}

// ListBookings lists bookings. q searches names, emails and notes, upcoming
// restricts to future scheduled bookings, and the remaining parameters
// filter, sort and paginate.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meetings := h.storage.Meetings()

	var (
		bookings []*models.MeetingBooking
		err      error
	)
	q := r.URL.Query()
	switch {
	case q.Get("q") != "":
		bookings, err = meetings.Search(ctx, q.Get("q"))
	case q.Get("phone") != "":
		bookings, err = meetings.GetByPhone(ctx, q.Get("phone"))
	case q.Get("date") != "" && q.Get("time") != "":
		bookings, err = meetings.GetByDateAndTime(ctx, q.Get("date"), q.Get("time"))
	case q.Get("upcoming") == "true":
		bookings, err = meetings.GetUpcoming(ctx)
	case q.Get("past") == "true":
		bookings, err = meetings.GetPast(ctx)
	case q.Get("scheduled") == "true":
		bookings, err = meetings.GetScheduled(ctx)
	case q.Get("recurring") == "true":
		bookings, err = meetings.GetRecurring(ctx)
	case q.Get("start") != "":
		end := q.Get("end")
		if end == "" {
			end = q.Get("start")
		}
		bookings, err = meetings.GetByDateRange(ctx, q.Get("start"), end)
	default:
		var query *domain.Query
		if query, err = bookingQuery(r); err == nil {
			bookings, err = meetings.GetAll(ctx, query)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.MeetingBooking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// CreateBooking books a slot.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	booking, err := h.bookings.Book(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "booking created", "booking_id", booking.ID, "date", booking.Date, "time", booking.Time)
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) BookingStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.Meetings().Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SendReminders emails every booking inside its reminder window.
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.bookings.SendReminders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	booking, err := h.storage.Meetings().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if booking == nil {
		writeError(w, r, notFound("booking", id))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// UpdateBooking applies a partial update to a booking. Moving it to another
// slot is checked like a new booking.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch domain.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	booking, err := h.bookings.Amend(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if booking == nil {
		writeError(w, r, notFound("booking", id))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.storage.Meetings().Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, notFound("booking", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkRequest names the bookings a bulk status change applies to.
type BulkRequest struct {
	IDs    []string             `json:"ids"`
	Status models.BookingStatus `json:"status"`
}

// BulkUpdateStatus cancels or completes several bookings at once. Unknown ids
// are skipped; the bookings that changed are returned.
func (h *Handler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, domain.NewValidationError("ids are required"))
		return
	}

	var (
		changed []*models.MeetingBooking
		err     error
	)
	switch req.Status {
	case models.StatusCancelled:
		changed, err = h.storage.Meetings().CancelMultiple(r.Context(), req.IDs)
	case models.StatusCompleted:
		changed, err = h.storage.Meetings().CompleteMultiple(r.Context(), req.IDs)
	default:
		err = domain.NewValidationError("status must be cancelled or completed")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed == nil {
		changed = []*models.MeetingBooking{}
	}
	writeJSON(w, http.StatusOK, changed)
}

// StatusRequest is the body of a booking status change.
type StatusRequest struct {
	Status models.BookingStatus `json:"status"`
}

// UpdateBookingStatus cancels, completes or reactivates a booking.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		booking *models.MeetingBooking
		err     error
	)
	switch req.Status {
	case models.StatusCancelled:
		booking, err = h.bookings.Cancel(ctx, id)
	case models.StatusCompleted:
		booking, err = h.bookings.Complete(ctx, id)
	case models.StatusScheduled:
		booking, err = h.bookings.Reactivate(ctx, id)
	default:
		err = domain.NewValidationError("status must be scheduled, completed or cancelled")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(ctx, "booking status changed", "booking_id", id, "status", string(req.Status))
	writeJSON(w, http.StatusOK, booking)
}

// RescheduleRequest is the body of a reschedule.
type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	booking, err := h.bookings.Reschedule(r.Context(), id, req.Date, req.Time)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// BookingOccurrences expands a booking's recurrence.
func (h *Handler) BookingOccurrences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := intQuery(r, "limit", defaultOccurrenceLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurrences, err := h.storage.Meetings().BookingOccurrences(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrences)
}

// BookingCalendar downloads the booking as an iCalendar file.
func (h *Handler) BookingCalendar(w http.ResponseWriter, r *http.Request) {
	export, err := h.bookings.CalendarExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(export.Content)); err != nil {
		slog.WarnContext(r.Context(), "failed to write calendar export", logging.ErrKey, err)
	}
}
