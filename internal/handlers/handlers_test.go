// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

// Saturday morning; the next working day is 2024-06-03.
var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, ist)

type staticLinks struct{}

func (staticLinks) Generate() (string, error) { return "https://meet.jit.si/3mJr7AoUXx2Wqd", nil }

type testAPI struct {
	router  chi.Router
	factory *storage.Factory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	factory := storage.NewFactory(storage.Config{Backend: domain.BackendMemory},
		storage.WithClock(func() time.Time { return testNow }),
		storage.WithLocation(ist),
		storage.WithFallbackPath(""),
	)
	require.NoError(t, factory.Initialize(context.Background()))
	t.Cleanup(func() { _ = factory.Close() })

	cfg := service.ServiceConfig{Location: ist, Now: func() time.Time { return testNow }}
	bookings := service.NewBookingService(factory, nil, staticLinks{}, cfg)
	return &testAPI{router: NewHandler(factory, bookings).Routes(), factory: factory}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func bookingBody(date, hhmm string) models.BookingRequest {
	return models.BookingRequest{
		Name:        "Asha Rao",
		Email:       "asha@example.com",
		Phone:       "+91 98765 43210",
		MeetingType: models.MeetingTypeVideo,
		Duration:    30,
		Date:        date,
		Time:        hhmm,
	}
}

func TestHealthChecks(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, api.factory.Close())
	rec = api.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantDetails []string
	}{
		{
			name:        "validation list",
			err:         domain.NewValidationErrors("invalid booking", []string{"name is required", "email is invalid"}),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid booking",
			wantDetails: []string{"name is required", "email is invalid"},
		},
		{
			name:        "not found",
			err:         domain.NewNotFoundError("booking b1 not found"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "booking b1 not found",
		},
		{
			name:        "conflict",
			err:         domain.NewConflictError("Time slot is already booked"),
			wantStatus:  http.StatusConflict,
			wantMessage: "Time slot is already booked",
		},
		{
			name:        "unavailable hides cause",
			err:         domain.NewStorageError(domain.BackendNatsKV, "get", domain.StorageCodeUnavailable, errors.New("nats: no servers")),
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Service unavailable, please try again later.",
		},
		{
			name:        "internal hides cause",
			err:         errors.New("disk on fire"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal error, please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantMessage, body.Error)
			assert.Equal(t, tt.wantDetails, body.Details)
		})
	}
}

func TestAvailability(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/availability?start=2024-06-03&end=2024-06-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[[]models.DaySlots](t, rec)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-06-03", days[0].Date)
	assert.Equal(t, "10:00", days[0].Slots[0].Time)

	rec = api.do(t, http.MethodGet, "/availability?start=2024-06-03&duration=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days = decode[[]models.DaySlots](t, rec)
	require.Len(t, days, 1)
	for _, slot := range days[0].Slots {
		assert.True(t, slot.Available)
		assert.LessOrEqual(t, slot.Time, "17:00")
	}

	rec = api.do(t, http.MethodGet, "/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/availability?start=2024-06-03&duration=45", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/availability/next?duration=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[models.TimeSlot](t, rec)
	assert.Equal(t, "2024-06-03", next.Date)
	assert.Equal(t, "10:00", next.Time)
}

func TestUpdateBookingRules(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "10:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[models.MeetingBooking](t, rec)
	rec = api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "11:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/blocked-slots", map[string]any{
		"date": "2024-06-03", "startTime": "14:00", "endTime": "15:00", "reason": "Lunch",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name       string
		patch      map[string]any
		wantStatus int
	}{
		{name: "unsupported duration", patch: map[string]any{"duration": 45}, wantStatus: http.StatusBadRequest},
		{name: "malformed time", patch: map[string]any{"time": "99:99"}, wantStatus: http.StatusBadRequest},
		{name: "onto another booking", patch: map[string]any{"time": "11:00"}, wantStatus: http.StatusConflict},
		{name: "into a blocked window", patch: map[string]any{"time": "14:30"}, wantStatus: http.StatusConflict},
		{name: "into the past", patch: map[string]any{"date": "2024-05-31"}, wantStatus: http.StatusBadRequest},
		{name: "move to a free slot", patch: map[string]any{"time": "16:00"}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPatch, "/bookings/"+first.ID, tt.patch)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	rec = api.do(t, http.MethodPut, "/bookings/"+first.ID+"/status", StatusRequest{Status: models.StatusCancelled})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodPatch, "/bookings/"+first.ID, map[string]any{"status": "completed", "duration": 45, "time": "99:99"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPatch, "/bookings/"+first.ID, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/bookings/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[models.MeetingBooking](t, rec)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, 30, stored.Duration)
	assert.Equal(t, "16:00", stored.Time)

	rec = api.do(t, http.MethodPatch, "/bookings/missing", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "10:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.MeetingBooking](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusScheduled, created.Status)
	assert.Equal(t, "https://meet.jit.si/3mJr7AoUXx2Wqd", created.JoinLink)

	rec = api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "10:00"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/bookings/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPatch, "/bookings/"+created.ID, map[string]any{"notes": "bring the roadmap"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bring the roadmap", decode[models.MeetingBooking](t, rec).Notes)

	rec = api.do(t, http.MethodPost, "/bookings/"+created.ID+"/reschedule", RescheduleRequest{Date: "2024-06-04", Time: "11:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-06-04", decode[models.MeetingBooking](t, rec).Date)

	rec = api.do(t, http.MethodGet, "/bookings/"+created.ID+"/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".ics")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")

	rec = api.do(t, http.MethodPut, "/bookings/"+created.ID+"/status", StatusRequest{Status: models.StatusCancelled})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCancelled, decode[models.MeetingBooking](t, rec).Status)

	rec = api.do(t, http.MethodPut, "/bookings/"+created.ID+"/status", StatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/bookings/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/bookings/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodDelete, "/bookings/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkUpdateStatus(t *testing.T) {
	api := newTestAPI(t)
	var ids []string
	for _, hhmm := range []string{"10:00", "11:00"} {
		rec := api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", hhmm))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[models.MeetingBooking](t, rec).ID)
	}

	tests := []struct {
		name       string
		body       BulkRequest
		wantStatus int
		wantCount  int
	}{
		{name: "no ids", body: BulkRequest{Status: models.StatusCancelled}, wantStatus: http.StatusBadRequest},
		{name: "unsupported status", body: BulkRequest{IDs: ids, Status: models.StatusScheduled}, wantStatus: http.StatusBadRequest},
		{name: "cancel one", body: BulkRequest{IDs: ids[:1], Status: models.StatusCancelled}, wantStatus: http.StatusOK, wantCount: 1},
		{name: "complete skips cancelled", body: BulkRequest{IDs: ids, Status: models.StatusCompleted}, wantStatus: http.StatusOK, wantCount: 1},
		{name: "unknown id skipped", body: BulkRequest{IDs: []string{"missing"}, Status: models.StatusCancelled}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/bookings/bulk-status", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Len(t, decode[[]models.MeetingBooking](t, rec), tt.wantCount)
			}
		})
	}
}

func TestCreateBookingValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/bookings", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := bookingBody("2024-06-03", "10:00")
	req.Name = ""
	req.Email = "not-an-email"
	rec = api.do(t, http.MethodPost, "/bookings", req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid booking", body.Error)
	assert.GreaterOrEqual(t, len(body.Details), 2)
}

func TestListBookings(t *testing.T) {
	api := newTestAPI(t)
	for _, slot := range []struct{ date, hhmm string }{
		{"2024-06-04", "11:00"},
		{"2024-06-03", "10:00"},
		{"2024-06-05", "15:00"},
	} {
		rec := api.do(t, http.MethodPost, "/bookings", bookingBody(slot.date, slot.hhmm))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tests := []struct {
		name      string
		query     string
		wantDates []string
	}{
		{name: "sorted by date", query: "", wantDates: []string{"2024-06-03", "2024-06-04", "2024-06-05"}},
		{name: "descending", query: "?order=desc", wantDates: []string{"2024-06-05", "2024-06-04", "2024-06-03"}},
		{name: "paginated", query: "?limit=1&offset=1", wantDates: []string{"2024-06-04"}},
		{name: "date filter", query: "?date=2024-06-05", wantDates: []string{"2024-06-05"}},
		{name: "date set", query: "?date=2024-06-03,2024-06-05", wantDates: []string{"2024-06-03", "2024-06-05"}},
		{name: "date range", query: "?start=2024-06-04&end=2024-06-05", wantDates: []string{"2024-06-04", "2024-06-05"}},
		{name: "no match", query: "?status=cancelled", wantDates: []string{}},
		{name: "phone", query: "?phone=" + url.QueryEscape("+91 98765 43210"), wantDates: []string{"2024-06-03", "2024-06-04", "2024-06-05"}},
		{name: "date and time", query: "?date=2024-06-04&time=11:00", wantDates: []string{"2024-06-04"}},
		{name: "date and other time", query: "?date=2024-06-04&time=10:00", wantDates: []string{}},
		{name: "scheduled", query: "?scheduled=true", wantDates: []string{"2024-06-03", "2024-06-04", "2024-06-05"}},
		{name: "past", query: "?past=true", wantDates: []string{}},
		{name: "recurring", query: "?recurring=true", wantDates: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/bookings"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			dates := []string{}
			for _, b := range decode[[]models.MeetingBooking](t, rec) {
				dates = append(dates, b.Date)
			}
			assert.ElementsMatch(t, tt.wantDates, dates)
			if tt.query == "" || strings.HasPrefix(tt.query, "?order") {
				assert.Equal(t, tt.wantDates, dates)
			}
		})
	}

	rec := api.do(t, http.MethodGet, "/bookings?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/bookings/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10:00", decode[models.MeetingConfig](t, rec).Availability.StartTime)

	rec = api.do(t, http.MethodPatch, "/config", map[string]any{"availability": map[string]any{"startTime": "09:00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := decode[models.MeetingConfig](t, rec)
	assert.Equal(t, "09:00", cfg.Availability.StartTime)
	assert.Equal(t, "18:00", cfg.Availability.EndTime)

	rec = api.do(t, http.MethodPatch, "/config", map[string]any{"availability": map[string]any{"startTime": "19:00"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/config/presets/business", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decode[models.MeetingConfig](t, rec).Availability.SlotDuration)

	rec = api.do(t, http.MethodPost, "/config/presets/weekend", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/config/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string]models.MeetingConfig](t, rec), 4)

	rec = api.do(t, http.MethodGet, "/config/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "meeting-config.json")
	exported := rec.Body.String()

	rec = api.do(t, http.MethodPost, "/config/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, decode[models.MeetingConfig](t, rec).Availability.SlotDuration)

	rec = api.do(t, http.MethodPost, "/config/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 30, decode[models.MeetingConfig](t, rec).Availability.SlotDuration)

	rec = api.do(t, http.MethodPost, "/config/import", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockedSlotEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/blocked-slots", BlockRequest{Date: "2024-06-03", StartTime: "12:00", EndTime: "13:00", Reason: "Lunch"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lunch := decode[models.BlockedTimeSlot](t, rec)

	rec = api.do(t, http.MethodPost, "/blocked-slots", BlockRequest{Date: "2024-06-03", StartTime: "12:30", EndTime: "14:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/blocked-slots", BlockRequest{Date: "2024-06-05", FullDay: true})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/blocked-slots", BlockRequest{Dates: []string{"2024-06-10", "2024-06-11"}, StartTime: "16:00", EndTime: "17:00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[[]models.BlockedTimeSlot](t, rec), 2)

	rec = api.do(t, http.MethodGet, "/blocked-slots?date=2024-06-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.BlockedTimeSlot](t, rec), 1)

	rec = api.do(t, http.MethodGet, "/blocked-slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.BlockedTimeSlot](t, rec), 4)

	rec = api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "12:00"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	checks := []struct {
		query       string
		wantStatus  int
		wantBlocked bool
	}{
		{query: "?date=2024-06-03&time=12:15", wantStatus: http.StatusOK, wantBlocked: true},
		{query: "?date=2024-06-03&time=13:00", wantStatus: http.StatusOK},
		{query: "?date=2024-06-03&startTime=11:30&endTime=12:15", wantStatus: http.StatusOK, wantBlocked: true},
		{query: "?date=2024-06-04", wantStatus: http.StatusOK},
		{query: "?date=2024-06-03&time=noon", wantStatus: http.StatusBadRequest},
		{query: "", wantStatus: http.StatusBadRequest},
	}
	for _, c := range checks {
		rec = api.do(t, http.MethodGet, "/blocked-slots/check"+c.query, nil)
		require.Equal(t, c.wantStatus, rec.Code, c.query)
		if c.wantStatus == http.StatusOK {
			assert.Equal(t, c.wantBlocked, decode[BlockedCheck](t, rec).Blocked, c.query)
		}
	}

	rec = api.do(t, http.MethodPost, "/blocked-slots/unblock", BlockRequest{Date: "2024-06-05"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"removed": true}, decode[map[string]bool](t, rec))

	rec = api.do(t, http.MethodDelete, "/blocked-slots/"+lunch.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, "/blocked-slots/"+lunch.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/blocked-slots/recurring", models.RecurringBlockRequest{
		StartDate: "2024-06-03",
		EndDate:   "2024-06-16",
		Weekdays:  []int{1},
		StartTime: "09:00",
		EndTime:   "10:00",
		Reason:    "Standup",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]models.BlockedTimeSlot](t, rec), 2)
}

func TestEmailTemplateEndpoints(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.factory.EmailTemplates().EnsureDefaults(context.Background()))

	rec := api.do(t, http.MethodGet, "/email-templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.EmailTemplate](t, rec), 3)

	rec = api.do(t, http.MethodGet, "/email-templates/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/email-templates/reminder", TemplateRequest{
		Subject: "Reminder: {{date}}",
		Body:    "Hi {{name}}, see you at {{time}}.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/email-templates/reminder", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reminder: {{date}}", decode[models.EmailTemplate](t, rec).Subject)

	rec = api.do(t, http.MethodPost, "/email-templates/reminder/preview", PreviewRequest{Sample: map[string]string{"name": "Asha"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[models.TemplatePreview](t, rec)
	assert.Contains(t, preview.Body, "Hi Asha")
	assert.NotContains(t, preview.Body, "{{")

	rec = api.do(t, http.MethodPost, "/email-templates/missing-id/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/email-templates/variables", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/email-templates/validate", ValidateRequest{
		Subject:   "Booked for {{date}}",
		Body:      "Hi {{name}} at {{venue}}",
		Variables: []string{"date", "name", "time"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	validation := decode[models.TemplateValidation](t, rec)
	assert.False(t, validation.Valid)
	assert.Equal(t, []string{"venue"}, validation.UndefinedVariables)
	assert.Equal(t, []string{"time"}, validation.UnusedVariables)

	rec = api.do(t, http.MethodGet, "/email-templates/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	rec = api.do(t, http.MethodPost, "/email-templates/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/email-templates/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]models.EmailTemplate](t, rec), 3)

	rec = api.do(t, http.MethodGet, "/email-templates/reminder", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reminder: {{date}}", decode[models.EmailTemplate](t, rec).Subject)

	rec = api.do(t, http.MethodPost, "/email-templates/import", `[{"type":"reminder","subject":"","body":""}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageEndpoints(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/bookings", bookingBody("2024-06-03", "10:00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/storage/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[models.BackendInfo](t, rec)
	assert.Equal(t, string(domain.BackendMemory), info.Type)

	rec = api.do(t, http.MethodGet, "/storage/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.HealthHealthy, decode[models.StorageHealth](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/storage/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[models.StorageData](t, rec)
	require.Len(t, export.Meetings, 1)
	assert.Equal(t, models.ExportVersion, export.Metadata.Version)

	rec = api.do(t, http.MethodDelete, "/storage/data", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodGet, "/bookings", nil)
	assert.Empty(t, decode[[]models.MeetingBooking](t, rec))

	rec = api.do(t, http.MethodPost, "/storage/import", export)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodGet, "/bookings", nil)
	assert.Len(t, decode[[]models.MeetingBooking](t, rec), 1)

	rec = api.do(t, http.MethodPost, "/storage/switch", storage.Config{Backend: "floppy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := t.TempDir() + "/switched.db"
	rec = api.do(t, http.MethodPost, "/storage/switch", storage.Config{
		Backend: domain.BackendDurable,
		Options: storage.Options{Durable: storage.DurableOptions{Path: path}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.BackendDurable), decode[models.BackendInfo](t, rec).Type)

	rec = api.do(t, http.MethodGet, "/bookings", nil)
	assert.Len(t, decode[[]models.MeetingBooking](t, rec), 1)
}
