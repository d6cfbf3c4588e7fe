package api

import (
	"net/http"
	"time"

	"github.com/goodtune/promptlog/internal/report"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/rs/zerolog"
)

// ReportHandler handles exports, imports and summaries.
type ReportHandler struct {
	store    storage.ActivityStore
	settings *settings.Manager
	loc      *time.Location
	logger   zerolog.Logger
}

// NewReportHandler creates a new report handler. Dates are grouped in loc.
func NewReportHandler(store storage.ActivityStore, sm *settings.Manager, loc *time.Location, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		store:    store,
		settings: sm,
		loc:      loc,
		logger:   logger.With().Str("handler", "report").Logger(),
	}
}

// Export returns the JSON backup document.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	backup, err := report.Export(r.Context(), h.store, h.settings, time.Now())
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to export")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="promptlog-backup.json"`)
	writeJSON(w, http.StatusOK, backup)
}

// Import replaces the log and settings with a backup document.
func (h *ReportHandler) Import(w http.ResponseWriter, r *http.Request) {
	backup, err := report.ReadBackup(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := report.Import(r.Context(), backup, h.store, h.settings); err != nil {
		writeFailure(w, h.logger, err, "Failed to import")
		return
	}

	h.logger.Info().Int("activities", len(backup.Activities)).Msg("Backup imported")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(backup.Activities),
	})
}

// CSV streams the activity log as CSV.
func (h *ReportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	activities, err := listActivities(r, h.store)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to retrieve activities")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="promptlog.csv"`)
	if err := report.WriteCSV(w, activities, h.loc); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write CSV")
	}
}

// Tags returns time totals by tag; ?skipped=true includes skipped intervals.
func (h *ReportHandler) Tags(w http.ResponseWriter, r *http.Request) {
	activities, err := listActivities(r, h.store)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to retrieve activities")
		return
	}

	totals := report.TagTotals(activities, r.URL.Query().Get("skipped") == "true")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tags":  totals,
		"count": len(totals),
	})
}

// Timeline returns activities grouped by day.
func (h *ReportHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	activities, err := listActivities(r, h.store)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to retrieve activities")
		return
	}

	days := report.Timeline(activities, h.loc)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"count": len(days),
	})
}
