// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package handlers exposes the scheduler over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/constants"
)

// maxBodyBytes bounds every request body, imports included.
const maxBodyBytes = 10 << 20

// StorageManager is the storage factory as seen by the HTTP layer.
type StorageManager interface {
	service.Services
	IsReady() bool
	BackendInfo() models.BackendInfo
	HealthCheck(ctx context.Context) models.StorageHealth
	ExportData(ctx context.Context) (*models.StorageData, error)
	ImportData(ctx context.Context, data *models.StorageData) error
	ClearAllData(ctx context.Context) error
	SwitchBackend(ctx context.Context, cfg storage.Config) error
}

var _ StorageManager = (*storage.Factory)(nil)

// Handler serves the scheduler API.
type Handler struct {
	storage  StorageManager
	bookings *service.BookingService
}

func NewHandler(storage StorageManager, bookings *service.BookingService) *Handler {
	return &Handler{storage: storage, bookings: bookings}
}

// HandlerReady reports whether storage is initialised and the booking service wired.
func (h *Handler) HandlerReady() bool {
	return h.storage != nil && h.storage.IsReady() && h.bookings.ServiceReady()
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/livez", h.Livez)
	r.Get("/readyz", h.Readyz)

	r.Route("/availability", func(r chi.Router) {
		r.Get("/", h.GetAvailability)
		r.Get("/next", h.GetNextAvailable)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", h.ListBookings)
		r.Post("/", h.CreateBooking)
		r.Get("/stats", h.BookingStatistics)
		r.Post("/reminders", h.SendReminders)
		r.Post("/bulk-status", h.BulkUpdateStatus)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetBooking)
			r.Patch("/", h.UpdateBooking)
			r.Delete("/", h.DeleteBooking)
			r.Put("/status", h.UpdateBookingStatus)
			r.Post("/reschedule", h.RescheduleBooking)
			r.Get("/occurrences", h.BookingOccurrences)
			r.Get("/calendar.ics", h.BookingCalendar)
		})
	})

	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.GetConfig)
		r.Patch("/", h.UpdateConfig)
		r.Post("/reset", h.ResetConfig)
		r.Get("/export", h.ExportConfig)
		r.Post("/import", h.ImportConfig)
		r.Get("/presets", h.ListPresets)
		r.Post("/presets/{name}", h.ApplyPreset)
	})

	r.Route("/blocked-slots", func(r chi.Router) {
		r.Get("/", h.ListBlockedSlots)
		r.Post("/", h.CreateBlockedSlot)
		r.Get("/stats", h.BlockedSlotStatistics)
		r.Get("/check", h.CheckBlocked)
		r.Post("/recurring", h.BlockRecurring)
		r.Post("/unblock", h.Unblock)
		r.Post("/cleanup", h.CleanupBlockedSlots)
		r.Delete("/{id}", h.DeleteBlockedSlot)
	})

	r.Route("/email-templates", func(r chi.Router) {
		r.Get("/", h.ListEmailTemplates)
		r.Get("/variables", h.TemplateVariables)
		r.Get("/stats", h.TemplateUsage)
		r.Post("/reset", h.ResetEmailTemplates)
		r.Get("/export", h.ExportEmailTemplates)
		r.Post("/import", h.ImportEmailTemplates)
		r.Post("/validate", h.ValidateEmailTemplate)
		r.Get("/{key}", h.GetEmailTemplate)
		r.Put("/{key}", h.UpdateEmailTemplate)
		r.Post("/{key}/preview", h.PreviewEmailTemplate)
	})

	r.Route("/storage", func(r chi.Router) {
		r.Get("/info", h.StorageInfo)
		r.Get("/health", h.StorageHealth)
		r.Get("/export", h.ExportStorage)
		r.Post("/import", h.ImportStorage)
		r.Post("/switch", h.SwitchStorage)
		r.Delete("/data", h.ClearStorage)
	})

	return r
}

// Livez always answers OK while the process is serving.
func (h *Handler) Livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

// Readyz answers OK once storage is initialised.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.HandlerReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NotReady\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", logging.ErrKey, err)
	}
}

// writeError maps err onto a status code. Server side failures are logged
// and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	errType := domain.GetErrorType(err)

	status := http.StatusInternalServerError
	body := ErrorResponse{Error: "Internal error, please try again later."}
	switch errType {
	case domain.ErrorTypeValidation:
		status = http.StatusBadRequest
		body = ErrorResponse{Error: errorMessage(err), Details: domain.ValidationMessages(err)}
	case domain.ErrorTypeNotFound:
		status = http.StatusNotFound
		body.Error = errorMessage(err)
	case domain.ErrorTypeConflict:
		status = http.StatusConflict
		body.Error = errorMessage(err)
	case domain.ErrorTypeUnavailable:
		status = http.StatusServiceUnavailable
		body.Error = "Service unavailable, please try again later."
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", logging.ErrKey, err, "error_type", errType.String(), "status", status)
	} else {
		slog.DebugContext(ctx, "request rejected", logging.ErrKey, err, "error_type", errType.String(), "status", status)
	}
	writeJSON(w, status, body)
}

// errorMessage returns the top level message of a domain error.
func errorMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid request body", err)
	}
	return nil
}

// readBody returns the raw request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewValidationError("invalid request body", err)
	}
	return data, nil
}

// writeAttachment sends pre-encoded JSON as a download named filename.
func writeAttachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write response", logging.ErrKey, err)
	}
}

// intQuery parses the query parameter name, returning fallback when unset.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name + " must be an integer")
	}
	return v, nil
}

func notFound(what, id string) error {
	return domain.NewNotFoundError(what + " " + id + " not found")
}
