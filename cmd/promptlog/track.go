package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/promptlog/internal/api"
	"github.com/goodtune/promptlog/internal/config"
	"github.com/goodtune/promptlog/internal/events"
	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/notify"
	"github.com/goodtune/promptlog/internal/policy"
	"github.com/goodtune/promptlog/internal/prompt"
	"github.com/goodtune/promptlog/internal/recorder"
	"github.com/goodtune/promptlog/internal/retention"
	"github.com/goodtune/promptlog/internal/scheduler"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/goodtune/promptlog/internal/systemd"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var trackStart bool

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the tracker",
	Long: `Run the tracker in the foreground. On a terminal it reads entries from
stdin; under systemd it serves the control API on the activated sockets.`,
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().BoolVar(&trackStart, "start", false, "Start tracking immediately")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout belongs to the prompt, so logs go to stderr
	logger := setupLogger(cfg.Logging, os.Stderr)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting promptlog")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().
			Bool("api", sdListeners.API != nil).
			Bool("metrics", sdListeners.Metrics != nil).
			Msg("Running under systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm := settings.Load(ctx, store.Settings(), logger)
	bus := events.NewBus(logger)

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if interactive && sm.Get().NotificationPermission == storage.PermissionDefault {
		// Running in a terminal is consent enough for terminal prompts
		if err := sm.SetPermission(ctx, storage.PermissionGranted); err != nil {
			logger.Warn().Err(err).Msg("Failed to record notification permission")
		}
	}

	notifier := notify.NewGate(
		notify.NewTerminal(os.Stdout, cfg.Notifications.Bell),
		func() storage.Permission { return sm.Get().NotificationPermission },
	)

	sched, err := scheduler.New(store.Session(), sm, bus, notifier, scheduler.Config{
		PollInterval:      config.ParseDuration(cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval),
		RecoveryWindow:    config.ParseDuration(cfg.Scheduler.RecoveryWindow, scheduler.DefaultRecoveryWindow),
		QuietCacheSize:    cfg.Scheduler.QuietCacheSize,
		NotificationTitle: cfg.Notifications.Title,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	defer sched.Close()

	var policyEngine *policy.Engine
	if cfg.Policy.Dir != "" {
		policyEngine, err = policy.NewEngine(storage.ExpandPath(cfg.Policy.Dir), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize prompt policy: %w", err)
		}
		sched.SetPolicy(policyEngine)
		logger.Info().Str("dir", cfg.Policy.Dir).Msg("Prompt policy loaded")
	}

	rec := recorder.New(store.Activities(), sched, bus, logger)

	// Keep the systemd status line in step with the session
	unsubscribe := bus.SubscribeAll(func(e events.Event) error {
		switch e.Kind {
		case events.SessionStarted:
			return systemd.NotifyStatus("Tracking since " + e.Session.Start.Format("15:04"))
		case events.SessionStopped:
			return systemd.NotifyStatus("Idle")
		case events.ActivityAdded:
			return systemd.NotifyStatus("Last entry at " + e.Activity.EndTime.Format("15:04"))
		}
		return nil
	})
	defer unsubscribe()

	// Subscribers must be in place before a recovered session publishes
	var ui *prompt.UI
	if interactive {
		ui = prompt.New(os.Stdin, os.Stdout, sched, rec, bus, logger)
		defer ui.Close()
	}

	if sched.Recover(ctx) {
		logger.Info().Msg("Resumed the previous session")
	} else if trackStart {
		if err := sched.StartTracking(ctx); err != nil {
			return fmt.Errorf("failed to start tracking: %w", err)
		}
	}

	var pruner *retention.Pruner
	if cfg.Retention.Days > 0 {
		pruner, err = retention.NewPruner(store.Activities(), cfg.Retention.Days, cfg.Retention.DailyTime, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize retention: %w", err)
		}
		pruner.Start()
		defer pruner.Stop()
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled || sdListeners.Metrics != nil {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", cfg.Metrics.Addr()).Msg("Metrics server started")
	}

	// Initialize Control API
	var apiServer *api.Server
	if cfg.API.Enabled || sdListeners.API != nil {
		apiServer = api.NewServer(api.Config{
			ListenAddr: cfg.API.Addr(),
			Location:   time.Local,
		}, api.Deps{
			Scheduler:  sched,
			Recorder:   rec,
			Activities: store.Activities(),
			Settings:   sm,
			Policy:     policyEngine,
		}, logger)
		if sdListeners.API != nil {
			apiServer.SetListener(sdListeners.API)
		}
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start control API: %w", err)
		}
		logger.Info().Str("addr", cfg.API.Addr()).Msg("Control API started")
	}

	uiDone := make(chan error, 1)
	if ui != nil {
		go func() { uiDone <- ui.Run(ctx) }()
	} else {
		logger.Info().Msg("Stdin is not a terminal, prompt disabled")
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}
	logger.Info().Msg("promptlog startup complete")

	// Wait for signals (shutdown or reload) or the prompt to quit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	waitForShutdown(sigChan, uiDone, policyEngine, logger)

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd of shutdown")
	}

	cancel()

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping control API")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	if sched.SessionInfo().IsActive {
		logger.Info().Msg("Session left open for the next start")
	}
	logger.Info().Msg("promptlog stopped")
	return nil
}

// waitForShutdown blocks until a shutdown signal or the end of the prompt,
// reloading the policy on SIGHUP.
func waitForShutdown(sigChan <-chan os.Signal, uiDone <-chan error, policyEngine *policy.Engine, logger zerolog.Logger) {
	for {
		select {
		case sig := <-sigChan:
			if sig != syscall.SIGHUP {
				logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
				return
			}
			if policyEngine == nil {
				logger.Info().Msg("SIGHUP received, no prompt policy configured")
				continue
			}
			logger.Info().Msg("SIGHUP received, reloading prompt policy...")
			if err := policyEngine.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload prompt policy")
			} else {
				logger.Info().Msg("Prompt policy reloaded successfully")
			}
		case err := <-uiDone:
			if err != nil {
				logger.Error().Err(err).Msg("Prompt stopped")
			}
			return
		}
	}
}
