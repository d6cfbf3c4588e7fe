package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Scheduler metrics
	PromptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_prompts_total",
			Help: "Total prompts fired",
		},
		[]string{"reason"},
	)

	PromptsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_prompts_suppressed_total",
			Help: "Due prompts held back by quiet mode, quiet times or policy",
		},
		[]string{"reason"},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptlog_session_active",
			Help: "1 while a tracking session is open",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_sessions_total",
			Help: "Session lifecycle transitions",
		},
		[]string{"outcome"},
	)

	IntervalsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_intervals_closed_total",
			Help: "Intervals closed, by how they were closed",
		},
		[]string{"kind"},
	)

	QuietCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptlog_quiet_cache_hits_total",
			Help: "Quiet-period decisions served from cache",
		},
	)

	QuietCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptlog_quiet_cache_misses_total",
			Help: "Quiet-period decisions computed",
		},
	)

	PolicyEvalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptlog_policy_eval_duration_seconds",
			Help:    "Prompt policy evaluation time in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// Recorder metrics
	ActivitiesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_activities_recorded_total",
			Help: "Activities persisted",
		},
		[]string{"kind"},
	)

	TrackedMinutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_tracked_minutes_total",
			Help: "Minutes covered by recorded activities",
		},
		[]string{"kind"},
	)

	ActivitiesPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptlog_activities_pruned_total",
			Help: "Activities removed by retention",
		},
	)

	// Infrastructure metrics
	PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_persistence_errors_total",
			Help: "Store read/write failures",
		},
		[]string{"op"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_events_published_total",
			Help: "Events published on the bus",
		},
		[]string{"event"},
	)

	ListenerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_listener_failures_total",
			Help: "Event listeners that returned an error or panicked",
		},
		[]string{"event"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_notifications_total",
			Help: "Notifications handed to the notifier",
		},
		[]string{"result"},
	)

	// Control API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlog_api_requests_total",
			Help: "Control API requests processed",
		},
		[]string{"route", "method", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptlog_api_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		PromptsTotal,
		PromptsSuppressed,
		SessionActive,
		SessionsTotal,
		IntervalsClosed,
		QuietCacheHits,
		QuietCacheMisses,
		PolicyEvalDuration,
		ActivitiesRecorded,
		TrackedMinutes,
		ActivitiesPruned,
		PersistenceErrors,
		EventsPublished,
		ListenerFailures,
		NotificationsTotal,
		RequestsTotal,
		RequestDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
