package statefile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"tideway/internal/endpoints"
	"tideway/internal/fileutil"
	"tideway/internal/logging"
	"tideway/internal/queue"
)

// HistorySource supplies the learned endpoint preferences saved alongside the queue.
type HistorySource interface {
	History() map[string]endpoints.SuccessRecord
}

// State is the persisted document.
type State struct {
	Queue           []queue.Item                       `json:"queue"`
	Completed       []queue.CompletedRecord            `json:"completed"`
	Failed          []queue.FailedRecord               `json:"failed"`
	Settings        queue.Settings                     `json:"settings"`
	EndpointHistory map[string]endpoints.SuccessRecord `json:"endpoint_history"`
	SavedAt         time.Time                          `json:"saved_at"`
}

// RestoreState converts s into the form the queue manager restores from.
func (s State) RestoreState() queue.RestoreState {
	return queue.RestoreState{
		Queue:     s.Queue,
		Completed: s.Completed,
		Failed:    s.Failed,
	}
}

// Store reads and writes the state file.
type Store struct {
	path    string
	history HistorySource
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New returns a Store writing to path. history may be nil.
func New(path string, history HistorySource, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		history: history,
		logger:  logging.NewComponentLogger(logger, "statefile"),
		now:     time.Now,
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes snap, with active items prepended to the queue, plus the current
// endpoint history.
func (s *Store) Save(snap queue.Snapshot) error {
	active := snap.ActiveInOrder()
	pending := make([]queue.Item, 0, len(active)+len(snap.Queue))
	for _, item := range active {
		pending = append(pending, item.Item)
	}
	pending = append(pending, snap.Queue...)

	state := State{
		Queue:           pending,
		Completed:       nonNil(snap.Completed),
		Failed:          nonNil(snap.Failed),
		Settings:        snap.Settings,
		EndpointHistory: map[string]endpoints.SuccessRecord{},
		SavedAt:         s.now().UTC(),
	}
	if s.history != nil {
		if history := s.history.History(); history != nil {
			state.EndpointHistory = history
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.AtomicWriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}

// Load reads the state file. Missing, unreadable, or corrupt files yield an
// empty State.
func (s *Store) Load() State {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "state file unreadable; starting empty", "state_read_failed",
				logging.String("path", s.path),
				logging.Error(err),
				logging.Hint("check state_dir permissions"),
				logging.Impact("previous queue is not restored"),
			)
		}
		return empty()
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logging.WarnWithContext(s.logger, "state file corrupt; starting empty", "state_parse_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.Hint("inspect or delete the state file"),
			logging.Impact("previous queue is not restored"),
		)
		return empty()
	}

	state.Queue = nonNil(state.Queue)
	state.Completed = nonNil(state.Completed)
	state.Failed = nonNil(state.Failed)
	if state.EndpointHistory == nil {
		state.EndpointHistory = map[string]endpoints.SuccessRecord{}
	}
	s.logger.Info("loaded queue state",
		logging.String("path", s.path),
		logging.Int("queued", len(state.Queue)),
		logging.Int("completed", len(state.Completed)),
		logging.Int("failed", len(state.Failed)),
	)
	return state
}

func empty() State {
	return State{
		Queue:           []queue.Item{},
		Completed:       []queue.CompletedRecord{},
		Failed:          []queue.FailedRecord{},
		EndpointHistory: map[string]endpoints.SuccessRecord{},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
