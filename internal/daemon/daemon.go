package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tideway/internal/api"
	"tideway/internal/config"
	"tideway/internal/endpoints"
	"tideway/internal/fileutil"
	"tideway/internal/history"
	"tideway/internal/logging"
	"tideway/internal/notifications"
	"tideway/internal/queue"
	"tideway/internal/statefile"
	"tideway/internal/tidal"
)

// Catalog is the mirror-backed lookup surface the API exposes.
type Catalog interface {
	SearchTracks(ctx context.Context, query string) ([]tidal.Track, bool)
	SearchAlbums(ctx context.Context, query string) ([]tidal.Album, bool)
	SearchArtists(ctx context.Context, query string) ([]tidal.Artist, bool)
	AlbumTracks(ctx context.Context, albumID int64) ([]tidal.Track, bool)
	GetArtist(ctx context.Context, artistID int64) (tidal.ArtistPage, bool)
	ResolveStream(ctx context.Context, trackID int64, quality string) (tidal.Stream, error)
}

// Deps are the collaborators a Daemon coordinates.
type Deps struct {
	Queue     *queue.Manager
	Catalog   Catalog
	Router    *endpoints.Router
	History   *history.Store
	State     *statefile.Store
	Notifier  notifications.Service
	SessionID string
}

// Daemon coordinates the download queue and API server and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt atomic.Int64
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Queue == nil || deps.Catalog == nil || deps.Router == nil || deps.State == nil {
		return nil, errors.New("daemon requires config, queue, catalog, router, and state store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, restores the persisted queue, and begins
// dispatching downloads.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tideway daemon instance is already running")
	}

	state := d.deps.State.Load()
	d.deps.Router.RestoreHistory(state.EndpointHistory)
	restored := d.deps.Queue.Restore(state.RestoreState())

	if err := d.deps.Queue.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start queue: %w", err)
	}

	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("tideway daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("restored_items", restored),
		logging.Int("endpoints", len(d.deps.Router.Endpoints())),
	)
	return nil
}

// Stop requeues interrupted downloads, writes the final snapshot, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.deps.Queue.Shutdown()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tideway daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.History != nil {
		return d.deps.History.Close()
	}
	return nil
}

// Handler returns the authenticated API handler.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		SessionID:    d.deps.SessionID,
		LockFilePath: d.lockPath,
		StatePath:    d.deps.State.Path(),
		DownloadDir:  d.cfg.Paths.DownloadDir,
		Endpoints:    len(d.deps.Router.Endpoints()),
		Queue:        api.CountsFromSnapshot(d.deps.Queue.State()),
	}
	if started := d.startedAt.Load(); started != 0 {
		status.StartedAt = time.Unix(0, started)
	}
	if d.deps.History != nil {
		status.HistoryPath = d.deps.History.Path()
	}
	return status
}

// DefaultQuality is the quality applied to enqueue requests that omit one.
func (d *Daemon) DefaultQuality() queue.Quality {
	if q, ok := queue.ParseQuality(d.cfg.Downloads.DefaultQuality); ok {
		return q
	}
	return queue.QualityLossless
}

// DownloadState reports where trackID is in its lifecycle. Live queue state
// wins over the ledger; the ledger entry is attached whenever one exists.
func (d *Daemon) DownloadState(ctx context.Context, trackID int64) (api.DownloadState, error) {
	state := api.DownloadState{TrackID: trackID, State: api.StateNotFound}

	if active, ok := d.deps.Queue.Progress(trackID); ok {
		state.State = api.StateDownloading
		state.Progress = active.Progress
	} else {
		snap := d.deps.Queue.State()
		switch {
		case containsTrack(snap.Queue, trackID, func(i queue.Item) int64 { return i.TrackID }):
			state.State = api.StateQueued
		case containsTrack(snap.Completed, trackID, func(r queue.CompletedRecord) int64 { return r.TrackID }):
			state.State = api.StateCompleted
			state.Progress = 100
		case containsTrack(snap.Failed, trackID, func(r queue.FailedRecord) int64 { return r.TrackID }):
			state.State = api.StateFailed
		}
	}

	if d.deps.History == nil {
		return state, nil
	}
	entry, found, err := d.deps.History.Get(ctx, trackID)
	if err != nil {
		return state, fmt.Errorf("lookup download history: %w", err)
	}
	if !found {
		return state, nil
	}
	state.History = &entry
	if state.State == api.StateNotFound {
		switch entry.Status {
		case history.StatusCompleted:
			state.State = api.StateCompleted
			state.Progress = 100
		case history.StatusFailed:
			state.State = api.StateFailed
		}
	}
	return state, nil
}

// RecentDownloads lists ledger entries, newest first.
func (d *Daemon) RecentDownloads(ctx context.Context, limit int) ([]history.Entry, error) {
	if d.deps.History == nil {
		return []history.Entry{}, nil
	}
	return d.deps.History.Recent(ctx, limit)
}

// ForgetDownload drops the ledger entry for trackID. Queue collections are
// left alone.
func (d *Daemon) ForgetDownload(ctx context.Context, trackID int64) (bool, error) {
	if d.deps.History == nil {
		return false, nil
	}
	return d.deps.History.Forget(ctx, trackID)
}

// CompletedFile returns the on-disk path of a completed download. Only files
// that exist inside the download directory are returned.
func (d *Daemon) CompletedFile(ctx context.Context, trackID int64) (string, bool) {
	var candidates []string
	for _, record := range d.deps.Queue.State().Completed {
		if record.TrackID != trackID {
			continue
		}
		if p := record.Metadata["final_path"]; p != "" {
			candidates = append(candidates, p)
		}
		if record.Filename != "" {
			candidates = append(candidates, filepath.Join(d.cfg.Paths.DownloadDir, record.Filename))
		}
	}
	if d.deps.History != nil {
		if entry, found, err := d.deps.History.Get(ctx, trackID); err == nil && found && entry.Status == history.StatusCompleted {
			if entry.FinalPath != "" {
				candidates = append(candidates, entry.FinalPath)
			}
		}
	}
	for _, candidate := range candidates {
		if fileutil.Within(d.cfg.Paths.DownloadDir, candidate) && fileutil.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func containsTrack[T any](items []T, trackID int64, id func(T) int64) bool {
	for _, item := range items {
		if id(item) == trackID {
			return true
		}
	}
	return false
}
