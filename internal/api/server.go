// Package api is the loopback HTTP/JSON control surface for a running
// tracker.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/promptlog/internal/apperrors"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/policy"
	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs server-side failures and writes the mapped status.
func writeFailure(w http.ResponseWriter, logger zerolog.Logger, err error, message string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(message)
		writeError(w, code, message)
		return
	}
	writeError(w, code, err.Error())
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", apperrors.ErrInvalidArgument, err)
	}
	return nil
}

// Deps are the components the API drives.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Recorder   *recorder.Recorder
	Activities storage.ActivityStore
	Settings   *settings.Manager
	// Policy is optional; without it the reload route answers 404.
	Policy *policy.Engine
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
	Location   *time.Location
}

// Server is the control API HTTP server.
type Server struct {
	config   Config
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates the API server and its routes.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes(deps)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(MetricsMiddleware)

	sessionHandler := NewSessionHandler(deps.Scheduler, deps.Recorder, s.logger)
	s.router.HandleFunc("/api/session", sessionHandler.Info).Methods("GET")
	s.router.HandleFunc("/api/session/pending", sessionHandler.Pending).Methods("GET")
	s.router.HandleFunc("/api/session/start", sessionHandler.Start).Methods("POST")
	s.router.HandleFunc("/api/session/stop", sessionHandler.Stop).Methods("POST")
	s.router.HandleFunc("/api/session/skip", sessionHandler.Skip).Methods("POST")
	s.router.HandleFunc("/api/session/snooze", sessionHandler.Snooze).Methods("POST")
	s.router.HandleFunc("/api/session/quiet", sessionHandler.Quiet).Methods("PUT")

	activityHandler := NewActivityHandler(deps.Activities, deps.Recorder, s.logger)
	s.router.HandleFunc("/api/activities", activityHandler.List).Methods("GET")
	s.router.HandleFunc("/api/activities", activityHandler.Create).Methods("POST")
	s.router.HandleFunc("/api/activities/{id}", activityHandler.Get).Methods("GET")
	s.router.HandleFunc("/api/activities/{id}", activityHandler.Update).Methods("PUT")
	s.router.HandleFunc("/api/activities/{id}", activityHandler.Delete).Methods("DELETE")

	settingsHandler := NewSettingsHandler(deps.Settings, deps.Scheduler, s.logger)
	s.router.HandleFunc("/api/settings", settingsHandler.Get).Methods("GET")
	s.router.HandleFunc("/api/settings", settingsHandler.Update).Methods("PATCH")
	s.router.HandleFunc("/api/settings/quiet-times", settingsHandler.ListQuietTimes).Methods("GET")
	s.router.HandleFunc("/api/settings/quiet-times", settingsHandler.CreateQuietTime).Methods("POST")
	s.router.HandleFunc("/api/settings/quiet-times/{id}", settingsHandler.UpdateQuietTime).Methods("PUT")
	s.router.HandleFunc("/api/settings/quiet-times/{id}", settingsHandler.DeleteQuietTime).Methods("DELETE")

	reportHandler := NewReportHandler(deps.Activities, deps.Settings, s.config.Location, s.logger)
	s.router.HandleFunc("/api/export", reportHandler.Export).Methods("GET")
	s.router.HandleFunc("/api/import", reportHandler.Import).Methods("POST")
	s.router.HandleFunc("/api/reports/csv", reportHandler.CSV).Methods("GET")
	s.router.HandleFunc("/api/reports/tags", reportHandler.Tags).Methods("GET")
	s.router.HandleFunc("/api/reports/timeline", reportHandler.Timeline).Methods("GET")

	systemHandler := NewSystemHandler(deps.Policy, s.logger)
	s.router.HandleFunc("/health", systemHandler.GetHealth).Methods("GET")
	s.router.HandleFunc("/api/system/reload-policy", systemHandler.ReloadPolicy).Methods("POST")
}

// Handler returns the router, for tests and for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts serving in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting control API")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Control API error")
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping control API")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("control API shutdown: %w", err)
	}
	return nil
}

// LoggingMiddleware logs every request.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("API request")
		})
	}
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
