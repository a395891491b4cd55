package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tideway/internal/config"
	"tideway/internal/daemon"
	"tideway/internal/download"
	"tideway/internal/endpoints"
	"tideway/internal/history"
	"tideway/internal/logging"
	"tideway/internal/notifications"
	"tideway/internal/preflight"
	"tideway/internal/queue"
	"tideway/internal/staging"
	"tideway/internal/statefile"
	"tideway/internal/tidal"
)

// Partial files younger than this may belong to a transfer that is still
// being written.
const stalePartialAge = 6 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel      string
	Development   bool
	SkipPreflight bool
}

// Run starts the tideway daemon and blocks until SIGINT/SIGTERM or cmdCtx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", cfg.LogPath()},
		ErrorOutputPaths: []string{"stderr", cfg.LogPath()},
		Development:      opts.Development,
		SessionID:        sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if !opts.SkipPreflight {
		if err := runPreflight(signalCtx, logger, cfg); err != nil {
			return err
		}
	}

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	ledger, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("open download history", logging.Error(err))
		return err
	}

	router := endpoints.NewRouter(endpoints.Load(cfg.Paths.EndpointsFile, logger))
	client := tidal.New(router,
		tidal.WithRequestTimeout(cfg.MetadataTimeout()),
		tidal.WithRateLimitBackoff(cfg.RateLimitBackoff()),
		tidal.WithUserAgent(cfg.Upstream.UserAgent),
		tidal.WithLogger(logger),
	)
	worker := download.New(client, cfg.Paths.DownloadDir,
		download.WithChunkSize(cfg.ChunkSize()),
		download.WithStreamTimeout(cfg.StreamTimeout()),
		download.WithHeaderTimeout(cfg.StreamHeaderTimeout()),
		download.WithUserAgent(cfg.Upstream.UserAgent),
		download.WithLogger(logger),
	)
	notifier := notifications.NewService(cfg)
	state := statefile.New(cfg.StatePath(), router, logger)
	manager := queue.NewManager(worker,
		queue.WithMaxConcurrent(cfg.Downloads.MaxConcurrent),
		queue.WithPersister(state),
		queue.WithObserver(daemon.NewRecorder(ledger, notifier, logger)),
		queue.WithLogger(logger),
	)

	d, err := daemon.New(cfg, daemon.Deps{
		Queue:     manager,
		Catalog:   client,
		Router:    router,
		History:   ledger,
		State:     state,
		Notifier:  notifier,
		SessionID: sessionID,
	}, logger)
	if err != nil {
		_ = ledger.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logConfigSnapshot(logger, cfg, len(router.Endpoints()))

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.Hint("stop the other tidewayd instance or check state_dir permissions"),
		)
		return err
	}

	if cleaned := staging.CleanStale(signalCtx, cfg.Paths.DownloadDir, stalePartialAge, logger); len(cleaned.Removed) > 0 {
		logger.Info("reclaimed partial downloads", logging.Int("removed", len(cleaned.Removed)))
	}

	if err := d.Serve(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(logger, "api server stopped", "api_server_failed",
			logging.Error(err),
			logging.Hint("check that api_bind is free"),
		)
		return err
	}
	logger.Info("tideway daemon shutting down")
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("required", result.Required),
		)
	}
	if blocking := preflight.Blocking(results); len(blocking) > 0 {
		names := make([]string, len(blocking))
		for i, r := range blocking {
			names[i] = r.Name
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, endpointCount int) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("download_dir", cfg.Paths.DownloadDir),
		logging.String("state_dir", cfg.Paths.StateDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Int("max_concurrent", cfg.Downloads.MaxConcurrent),
		logging.String("default_quality", cfg.Downloads.DefaultQuality),
		logging.Int("endpoints", endpointCount),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
