// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/storage"
)

func (h *Handler) StorageInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.storage.BackendInfo())
}

// StorageHealth reports the health check; an unhealthy backend answers 503.
func (h *Handler) StorageHealth(w http.ResponseWriter, r *http.Request) {
	health := h.storage.HealthCheck(r.Context())
	status := http.StatusOK
	if health.Status == models.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h *Handler) ExportStorage(w http.ResponseWriter, r *http.Request) {
	data, err := h.storage.ExportData(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="meeting-scheduler-export.json"`)
	writeJSON(w, http.StatusOK, data)
}

// ImportStorage replaces every collection with the uploaded export.
func (h *Handler) ImportStorage(w http.ResponseWriter, r *http.Request) {
	var data models.StorageData
	if err := decodeJSON(w, r, &data); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.storage.ImportData(r.Context(), &data); err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "storage data imported",
		"meetings", len(data.Meetings),
		"blocked_slots", len(data.BlockedSlots),
		"email_templates", len(data.EmailTemplates),
	)
	w.WriteHeader(http.StatusNoContent)
}

// SwitchStorage migrates every record to another backend and answers with
// the backend now serving.
func (h *Handler) SwitchStorage(w http.ResponseWriter, r *http.Request) {
	var cfg storage.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.storage.SwitchBackend(r.Context(), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.storage.BackendInfo())
}

func (h *Handler) ClearStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.ClearAllData(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	slog.WarnContext(r.Context(), "all storage data cleared")
	w.WriteHeader(http.StatusNoContent)
}
