package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/goodtune/promptlog/internal/policy"
	"github.com/rs/zerolog"
)

// SystemHandler handles health and policy control requests.
type SystemHandler struct {
	policyEngine *policy.Engine
	startTime    time.Time
	logger       zerolog.Logger
}

// NewSystemHandler creates a new system handler. policyEngine may be nil.
func NewSystemHandler(policyEngine *policy.Engine, logger zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		policyEngine: policyEngine,
		startTime:    time.Now(),
		logger:       logger.With().Str("handler", "system").Logger(),
	}
}

// ReloadPolicy re-reads the prompt policy directory.
func (h *SystemHandler) ReloadPolicy(w http.ResponseWriter, r *http.Request) {
	if h.policyEngine == nil {
		writeError(w, http.StatusNotFound, "No prompt policy configured")
		return
	}

	h.logger.Info().Msg("Manual policy reload requested")
	if err := h.policyEngine.Reload(); err != nil {
		h.logger.Error().Err(err).Msg("Failed to reload prompt policy")
		writeError(w, http.StatusInternalServerError, "Failed to reload policy: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Prompt policy reloaded",
		"timestamp": time.Now(),
	})
}

// GetHealth reports liveness and uptime.
func (h *SystemHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(uptime.Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	})
}
