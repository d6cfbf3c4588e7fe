package api

import (
	"net/http"
	"time"

	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SettingsHandler handles settings requests.
type SettingsHandler struct {
	settings *settings.Manager
	sched    *scheduler.Scheduler
	logger   zerolog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(sm *settings.Manager, sched *scheduler.Scheduler, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: sm,
		sched:    sched,
		logger:   logger.With().Str("handler", "settings").Logger(),
	}
}

// Get returns the current settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// settingsPatch carries the fields a PATCH may change.
type settingsPatch struct {
	NotificationIntervalMS *int64              `json:"notificationIntervalMs"`
	SoundEnabled           *bool               `json:"soundEnabled"`
	NotificationPermission *storage.Permission `json:"notificationPermission"`
}

// Update applies a partial settings change.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patch settingsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if patch.NotificationIntervalMS != nil {
		d := time.Duration(*patch.NotificationIntervalMS) * time.Millisecond
		if err := h.sched.SetNotificationInterval(ctx, d); err != nil {
			writeFailure(w, h.logger, err, "Failed to change notification interval")
			return
		}
	}
	if patch.SoundEnabled != nil {
		if err := h.settings.SetSoundEnabled(ctx, *patch.SoundEnabled); err != nil {
			writeFailure(w, h.logger, err, "Failed to change sound setting")
			return
		}
	}
	if patch.NotificationPermission != nil {
		if err := h.settings.SetPermission(ctx, *patch.NotificationPermission); err != nil {
			writeFailure(w, h.logger, err, "Failed to change notification permission")
			return
		}
	}

	h.logger.Info().Msg("Settings updated")
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// ListQuietTimes returns the configured quiet times.
func (h *SettingsHandler) ListQuietTimes(w http.ResponseWriter, r *http.Request) {
	quiet := h.settings.Get().QuietTimes
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quietTimes": quiet,
		"count":      len(quiet),
	})
}

// CreateQuietTime adds a quiet time.
func (h *SettingsHandler) CreateQuietTime(w http.ResponseWriter, r *http.Request) {
	var q storage.QuietTime
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.settings.AddQuietTime(r.Context(), q)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to add quiet time")
		return
	}

	h.logger.Info().Str("id", created.ID).Str("name", created.Name).Msg("Quiet time created")
	writeJSON(w, http.StatusCreated, created)
}

// UpdateQuietTime replaces a quiet time.
func (h *SettingsHandler) UpdateQuietTime(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var q storage.QuietTime
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.ID = id

	if err := h.settings.UpdateQuietTime(r.Context(), q); err != nil {
		writeFailure(w, h.logger, err, "Failed to update quiet time")
		return
	}

	for _, existing := range h.settings.Get().QuietTimes {
		if existing.ID == id {
			writeJSON(w, http.StatusOK, existing)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Quiet time not found")
}

// DeleteQuietTime removes a quiet time.
func (h *SettingsHandler) DeleteQuietTime(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.settings.RemoveQuietTime(r.Context(), id); err != nil {
		writeFailure(w, h.logger, err, "Failed to delete quiet time")
		return
	}

	h.logger.Info().Str("id", id).Msg("Quiet time deleted")
	w.WriteHeader(http.StatusNoContent)
}
