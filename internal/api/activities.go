package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/report"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const timeFormat = time.RFC3339

// ActivityHandler handles activity log requests.
type ActivityHandler struct {
	store  storage.ActivityStore
	rec    *recorder.Recorder
	logger zerolog.Logger
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(store storage.ActivityStore, rec *recorder.Recorder, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		store:  store,
		rec:    rec,
		logger: logger.With().Str("handler", "activity").Logger(),
	}
}

// rangeQuery reads the optional from/to RFC 3339 query parameters.
func rangeQuery(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		if from, err = time.Parse(timeFormat, s); err != nil {
			return from, to, fmt.Errorf("%w: invalid from %q", apperrors.ErrInvalidArgument, s)
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = time.Parse(timeFormat, s); err != nil {
			return from, to, fmt.Errorf("%w: invalid to %q", apperrors.ErrInvalidArgument, s)
		}
	}
	return from, to, nil
}

// listActivities returns the log filtered by the request's range and tag.
func listActivities(r *http.Request, store storage.ActivityStore) ([]storage.Activity, error) {
	from, to, err := rangeQuery(r)
	if err != nil {
		return nil, err
	}
	activities, err := store.List(r.Context())
	if err != nil {
		return nil, err
	}
	activities = report.Between(activities, from, to)

	if tag := r.URL.Query().Get("tag"); tag != "" {
		filtered := activities[:0]
		for _, a := range activities {
			if a.HasTag(tag) {
				filtered = append(filtered, a)
			}
		}
		activities = filtered
	}
	return activities, nil
}

// List returns activities, optionally filtered with ?from=&to=&tag=.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	activities, err := listActivities(r, h.store)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to retrieve activities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activities": activities,
		"count":      len(activities),
	})
}

// Get returns a single activity by ID.
func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	activity, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to retrieve activity")
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// Create records an entry for the open interval.
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var entry recorder.Entry
	if err := decodeBody(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	activity, err := h.rec.RecordActivity(r.Context(), entry)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to record activity")
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

// Update replaces the user fields of an activity.
func (h *ActivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var entry recorder.Entry
	if err := decodeBody(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	activity, err := h.rec.UpdateActivity(r.Context(), id, entry)
	if err != nil {
		writeFailure(w, h.logger, err, "Failed to update activity")
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// Delete removes an activity.
func (h *ActivityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.rec.DeleteActivity(r.Context(), id); err != nil {
		writeFailure(w, h.logger, err, "Failed to delete activity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
