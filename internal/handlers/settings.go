// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
)

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.storage.Config().Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig deep merges the body into the stored configuration.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch domain.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.storage.Config().Update(r.Context(), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ResetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.storage.Config().Reset(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.storage.Config().Presets())
}

func (h *Handler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := h.storage.Config().ApplyPreset(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "configuration preset applied", "preset", name)
	writeJSON(w, http.StatusOK, cfg)
}

// ExportConfig downloads the configuration as JSON.
func (h *Handler) ExportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := h.storage.Config().Export(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "meeting-config.json", data)
}

// ImportConfig stores an exported configuration; missing fields take the
// defaults.
func (h *Handler) ImportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.storage.Config().Import(r.Context(), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ListBlockedSlots lists every block, the blocks of one date, or those
// between start and end.
func (h *Handler) ListBlockedSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	blocked := h.storage.BlockedSlots()

	var (
		slots []*models.BlockedTimeSlot
		err   error
	)
	switch {
	case q.Get("date") != "":
		slots, err = blocked.GetByDate(ctx, q.Get("date"))
	case q.Get("start") != "" && q.Get("end") != "":
		slots, err = blocked.GetByDateRange(ctx, q.Get("start"), q.Get("end"))
	case q.Get("upcoming") != "":
		var days int
		if days, err = intQuery(r, "upcoming", 0); err == nil {
			slots, err = blocked.UpcomingBlocks(ctx, days)
		}
	default:
		slots, err = blocked.GetAll(ctx, &domain.Query{OrderBy: &domain.OrderBy{Field: "date", Direction: domain.SortAsc}})
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []*models.BlockedTimeSlot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

// BlockedCheck answers whether a time or window on a date is blocked.
type BlockedCheck struct {
	Blocked bool                  `json:"blocked"`
	Blocks  []service.BlockedTime `json:"blocks"`
}

// CheckBlocked reports whether time, or the window from startTime to endTime,
// is blocked on date, along with every block on that date.
func (h *Handler) CheckBlocked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		writeError(w, r, domain.NewValidationError("date is required"))
		return
	}
	blocked := h.storage.BlockedSlots()

	var (
		check BlockedCheck
		err   error
	)
	switch {
	case q.Get("time") != "":
		check.Blocked, err = blocked.IsSlotBlocked(ctx, date, q.Get("time"))
	case q.Get("startTime") != "" && q.Get("endTime") != "":
		check.Blocked, err = blocked.IsTimeRangeBlocked(ctx, date, q.Get("startTime"), q.Get("endTime"))
	}
	if err == nil {
		check.Blocks, err = blocked.BlockedTimesForDate(ctx, date)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if check.Blocks == nil {
		check.Blocks = []service.BlockedTime{}
	}
	if q.Get("time") == "" && q.Get("startTime") == "" {
		check.Blocked = len(check.Blocks) > 0
	}
	writeJSON(w, http.StatusOK, check)
}

// BlockRequest blocks a window on one or more dates. FullDay ignores the
// window.
type BlockRequest struct {
	Date      string   `json:"date"`
	Dates     []string `json:"dates,omitempty"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Reason    string   `json:"reason,omitempty"`
	FullDay   bool     `json:"fullDay,omitempty"`
}

func (h *Handler) CreateBlockedSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	blocked := h.storage.BlockedSlots()

	if len(req.Dates) > 0 {
		startTime, endTime := req.StartTime, req.EndTime
		if req.FullDay {
			startTime, endTime = models.FullDayStart, models.FullDayEnd
		}
		slots, err := blocked.BlockMultipleDays(ctx, req.Dates, startTime, endTime, req.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, slots)
		return
	}

	var (
		slot *models.BlockedTimeSlot
		err  error
	)
	if req.FullDay {
		slot, err = blocked.BlockFullDay(ctx, req.Date, req.Reason)
	} else {
		slot, err = blocked.BlockTimeRange(ctx, req.Date, req.StartTime, req.EndTime, req.Reason)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *Handler) BlockRecurring(w http.ResponseWriter, r *http.Request) {
	var req models.RecurringBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	slots, err := h.storage.BlockedSlots().BlockRecurring(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slots)
}

// Unblock removes the blocks overlapping a window, or every block of the
// date when no window is given.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Date == "" {
		writeError(w, r, domain.NewValidationError("date is required"))
		return
	}

	var (
		removed bool
		err     error
	)
	if req.FullDay || (req.StartTime == "" && req.EndTime == "") {
		removed, err = h.storage.BlockedSlots().UnblockFullDay(ctx, req.Date)
	} else {
		removed, err = h.storage.BlockedSlots().UnblockTimeRange(ctx, req.Date, req.StartTime, req.EndTime)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// CleanupBlockedSlots deletes the blocks dated before today.
func (h *Handler) CleanupBlockedSlots(w http.ResponseWriter, r *http.Request) {
	removed, err := h.storage.BlockedSlots().CleanupExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) BlockedSlotStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.BlockedSlots().Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) DeleteBlockedSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.storage.BlockedSlots().Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, notFound("blocked slot", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListEmailTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.storage.EmailTemplates().GetAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if templates == nil {
		templates = []*models.EmailTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *Handler) TemplateVariables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.storage.EmailTemplates().AvailableVariables())
}

func (h *Handler) TemplateUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.storage.EmailTemplates().UsageStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *Handler) ResetEmailTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.storage.EmailTemplates().ResetToDefaults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *Handler) ExportEmailTemplates(w http.ResponseWriter, r *http.Request) {
	data, err := h.storage.EmailTemplates().Export(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "email-templates.json", data)
}

// ImportEmailTemplates replaces the stored templates with an export. Nothing
// is written when any template is invalid.
func (h *Handler) ImportEmailTemplates(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templates, err := h.storage.EmailTemplates().Import(r.Context(), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "email templates imported", "count", len(templates))
	writeJSON(w, http.StatusOK, templates)
}

// ValidateRequest is a template draft and the variables it declares.
type ValidateRequest struct {
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
}

// ValidateEmailTemplate compares the placeholders of a draft with the
// variables it declares. Nothing is stored.
func (h *Handler) ValidateEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.storage.EmailTemplates().ValidateVariables(req.Subject, req.Body, req.Variables))
}

// templateType reads the {key} parameter as a template type.
func templateType(r *http.Request) (models.TemplateType, error) {
	t := models.TemplateType(chi.URLParam(r, "key"))
	if !t.Valid() {
		return "", domain.NewValidationError("unknown template type " + string(t))
	}
	return t, nil
}

// GetEmailTemplate returns the stored template of a type, or its default.
func (h *Handler) GetEmailTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := templateType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tmpl, err := h.storage.EmailTemplates().GetOrDefault(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// TemplateRequest is the body of a template update.
type TemplateRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) UpdateEmailTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := templateType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl, err := h.storage.EmailTemplates().UpdateTemplate(r.Context(), t, req.Subject, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// PreviewRequest carries sample placeholder values.
type PreviewRequest struct {
	Sample map[string]string `json:"sample"`
}

// PreviewEmailTemplate renders a stored template. {key} is a template id or
// the type of a stored template.
func (h *Handler) PreviewEmailTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	var req PreviewRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	templates := h.storage.EmailTemplates()
	id := key
	if t := models.TemplateType(key); t.Valid() {
		tmpl, err := templates.GetByType(ctx, t)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if tmpl != nil {
			id = tmpl.ID
		}
	}
	preview, err := templates.Preview(ctx, id, req.Sample)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
