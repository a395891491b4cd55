package queue

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"tideway/internal/logging"
)

// DefaultMaxConcurrent is used when no positive cap is configured.
const DefaultMaxConcurrent = 3

// ProgressFunc reports a transfer's status and percent complete (0-100).
type ProgressFunc func(status Status, percent int)

// Result is what a successful download reports back.
type Result struct {
	Filename string
	Metadata map[string]string
}

// Downloader performs one transfer. A returned error moves the item to failed
// with err.Error() as the reason.
type Downloader interface {
	Download(ctx context.Context, item Item, report ProgressFunc) (Result, error)
}

// Observer is told about terminal transitions after they happen, outside the
// manager's lock.
type Observer interface {
	ItemCompleted(record CompletedRecord)
	ItemFailed(record FailedRecord)
}

// Persister writes snapshots durably.
type Persister interface {
	Save(snapshot Snapshot) error
}

type activeEntry struct {
	item      Item
	seq       uint64
	startedAt time.Time
	progress  atomic.Int32
	status    atomic.Value
}

func (e *activeEntry) view() ActiveItem {
	status, _ := e.status.Load().(Status)
	return ActiveItem{
		Item:      e.item,
		Progress:  int(e.progress.Load()),
		Status:    status,
		StartedAt: e.startedAt,
	}
}

func (e *activeEntry) report(status Status, percent int) {
	if status != "" {
		e.status.Store(status)
	}
	e.progress.Store(int32(min(max(percent, 0), 100)))
}

// Manager owns the download collections and the dispatch loop.
type Manager struct {
	downloader    Downloader
	persister     Persister
	observer      Observer
	logger        *slog.Logger
	maxConcurrent int
	now           func() time.Time

	mu        sync.Mutex
	queued    []Item
	queuedIDs map[int64]struct{}
	active    map[int64]*activeEntry
	completed []CompletedRecord
	failed    []FailedRecord
	version   uint64
	seq       uint64

	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	saveMu       sync.Mutex
	savedVersion uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConcurrent sets the concurrency cap.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

// WithPersister sets where snapshots are saved.
func WithPersister(p Persister) Option {
	return func(m *Manager) {
		m.persister = p
	}
}

// WithObserver registers a terminal-transition observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager constructs an idle manager. Dispatch begins with Start.
func NewManager(downloader Downloader, opts ...Option) *Manager {
	m := &Manager{
		downloader:    downloader,
		maxConcurrent: DefaultMaxConcurrent,
		now:           time.Now,
		queued:        make([]Item, 0),
		queuedIDs:     make(map[int64]struct{}),
		active:        make(map[int64]*activeEntry),
		completed:     make([]CompletedRecord, 0),
		failed:        make([]FailedRecord, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "queue")
	return m
}

// MaxConcurrent returns the concurrency cap.
func (m *Manager) MaxConcurrent() int {
	return m.maxConcurrent
}

// Start enables dispatch. Workers run under a context derived from ctx.
func (m *Manager) Start(ctx context.Context) error {
	if m.downloader == nil {
		return ErrNoDownloader
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.dispatchLocked()
	queued, active := len(m.queued), len(m.active)
	m.mu.Unlock()

	m.logger.Info("queue dispatch started",
		logging.Int("max_concurrent", m.maxConcurrent),
		logging.Int("queued", queued),
		logging.Int("active", active),
	)
	return nil
}

// Shutdown stops admission, cancels in-flight transfers, and waits for their
// workers. Interrupted items return to the head of the queue in admission
// order so the next Start retries them from the beginning.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	interrupted := make([]*activeEntry, 0, len(m.active))
	for _, entry := range m.active {
		interrupted = append(interrupted, entry)
	}
	slices.SortFunc(interrupted, func(a, b *activeEntry) int { return cmp.Compare(a.seq, b.seq) })
	requeue := make([]Item, 0, len(interrupted))
	for _, entry := range interrupted {
		delete(m.active, entry.item.TrackID)
		m.queuedIDs[entry.item.TrackID] = struct{}{}
		requeue = append(requeue, entry.item)
	}
	m.queued = append(requeue, m.queued...)
	m.runCtx, m.cancel = nil, nil
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	m.logger.Info("queue dispatch stopped", logging.Int("requeued", len(requeue)))
}

// dispatchLocked admits queued items while slots are free. Caller holds m.mu.
func (m *Manager) dispatchLocked() {
	if !m.running {
		return
	}
	for len(m.active) < m.maxConcurrent && len(m.queued) > 0 {
		item := m.queued[0]
		m.queued[0] = Item{}
		m.queued = m.queued[1:]
		delete(m.queuedIDs, item.TrackID)

		m.seq++
		entry := &activeEntry{item: item, seq: m.seq, startedAt: m.now()}
		entry.status.Store(StatusResolving)
		m.active[item.TrackID] = entry

		m.wg.Add(1)
		go m.runWorker(m.runCtx, entry)
	}
}

func (m *Manager) runWorker(ctx context.Context, entry *activeEntry) {
	defer m.wg.Done()
	logger := m.logger.With(logging.TrackID(entry.item.TrackID))
	logger.Info("download started", logging.String("title", entry.item.Title), logging.String("artist", entry.item.Artist))

	result, err := m.download(ctx, entry)
	if err != nil && ctx.Err() != nil {
		logger.Info("download interrupted by shutdown")
		return
	}
	if err != nil {
		if markErr := m.finishFailed(entry, err.Error()); markErr != nil {
			logger.Debug("failure not recorded", logging.Error(markErr))
		}
		return
	}
	if markErr := m.finishCompleted(entry, result.Filename, result.Metadata); markErr != nil {
		logger.Debug("completion not recorded", logging.Error(markErr))
	}
}

func (m *Manager) download(ctx context.Context, entry *activeEntry) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return m.downloader.Download(ctx, entry.item, entry.report)
}

// mutatedLocked bumps the version and returns the snapshot to persist.
// Caller holds m.mu.
func (m *Manager) mutatedLocked() Snapshot {
	m.version++
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	active := make(map[int64]ActiveItem, len(m.active))
	for id, entry := range m.active {
		active[id] = entry.view()
	}
	return Snapshot{
		Queue:     slices.Clone(m.queued),
		Active:    active,
		Completed: slices.Clone(m.completed),
		Failed:    slices.Clone(m.failed),
		Settings:  Settings{MaxConcurrent: m.maxConcurrent},
		Version:   m.version,
	}
}

// save hands snap to the persister. Saves are serialized and stale versions
// are dropped.
func (m *Manager) save(snap Snapshot) {
	if m.persister == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if snap.Version <= m.savedVersion {
		return
	}
	if err := m.persister.Save(snap); err != nil {
		logging.WarnWithContext(m.logger, "queue state not saved", "state_save_failed",
			logging.Error(err),
			logging.Any("version", snap.Version),
			logging.Hint("check state_dir permissions and free space"),
			logging.Impact("queue changes since the last save are lost on restart"),
		)
		return
	}
	m.savedVersion = snap.Version
}

func sortActive(items []ActiveItem) {
	slices.SortFunc(items, func(a, b ActiveItem) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.TrackID, b.Item.TrackID)
	})
}
