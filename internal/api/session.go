package api

import (
	"net/http"

	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/rs/zerolog"
)

// SessionHandler handles session control requests.
type SessionHandler struct {
	sched  *scheduler.Scheduler
	rec    *recorder.Recorder
	logger zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sched *scheduler.Scheduler, rec *recorder.Recorder, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sched:  sched,
		rec:    rec,
		logger: logger.With().Str("handler", "session").Logger(),
	}
}

// Info returns the session snapshot.
func (h *SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.SessionInfo())
}

// pendingResponse is the span the next entry would cover.
type pendingResponse struct {
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	DurationMS int64  `json:"duration"`
	Final      bool   `json:"final"`
}

// Pending returns the interval the next entry would be recorded against.
func (h *SessionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	iv, err := h.sched.Pending()
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to compute pending interval")
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{
		StartTime:  iv.Start.Format(timeFormat),
		EndTime:    iv.End.Format(timeFormat),
		DurationMS: iv.End.Sub(iv.Start).Milliseconds(),
		Final:      iv.Final,
	})
}

// Start begins tracking. Starting twice is not an error.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.StartTracking(r.Context()); err != nil {
		writeFailure(w, h.logger, err, "Failed to start tracking")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.SessionInfo())
}

// Stop requests the final entry.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.StopTracking(r.Context()); err != nil {
		writeFailure(w, h.logger, err, "Failed to stop tracking")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.SessionInfo())
}

// Skip records the open interval as skipped.
func (h *SessionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	activity, err := h.rec.RecordSkippedInterval(r.Context())
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to skip interval")
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

// Snooze closes the open interval without recording it.
func (h *SessionHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.SkipNotification(r.Context()); err != nil {
		writeFailure(w, h.logger, err, "Failed to snooze")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.SessionInfo())
}

// Quiet toggles manual quiet mode.
func (h *SessionHandler) Quiet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.sched.SetQuietMode(*req.Enabled)
	writeJSON(w, http.StatusOK, h.sched.SessionInfo())
}
