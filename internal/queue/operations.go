package queue

import (
	"maps"
	"slices"

	"tideway/internal/logging"
)

// Add enqueues item. It returns false, leaving state unchanged, when the track
// id is already queued or active. A completed or failed record for the same id
// is dropped: the add is a fresh request. Content is not validated; an empty
// quality defaults to LOSSLESS and a zero RequestedAt is stamped.
func (m *Manager) Add(item Item) bool {
	m.mu.Lock()
	added := m.addLocked(item)
	if !added {
		m.mu.Unlock()
		return false
	}
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	m.logger.Debug("item queued", logging.TrackID(item.TrackID))
	return true
}

// AddMany applies Add to each item, taking the lock per item. Partial success
// is kept.
func (m *Manager) AddMany(items []Item) AddResult {
	var result AddResult
	for _, item := range items {
		m.mu.Lock()
		if m.addLocked(item) {
			result.Added++
			m.dispatchLocked()
			m.version++
		} else {
			result.Skipped++
		}
		m.mu.Unlock()
	}

	if result.Added > 0 {
		m.mu.Lock()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.save(snap)
	}
	m.logger.Debug("batch queued", logging.Int("added", result.Added), logging.Int("skipped", result.Skipped))
	return result
}

func (m *Manager) addLocked(item Item) bool {
	id := item.TrackID
	if _, ok := m.queuedIDs[id]; ok {
		return false
	}
	if _, ok := m.active[id]; ok {
		return false
	}
	if item.Quality == "" {
		item.Quality = QualityLossless
	}
	if item.RequestedAt.IsZero() {
		item.RequestedAt = m.now()
	}
	m.completed = slices.DeleteFunc(m.completed, func(r CompletedRecord) bool { return r.TrackID == id })
	m.failed = slices.DeleteFunc(m.failed, func(r FailedRecord) bool { return r.TrackID == id })
	m.queued = append(m.queued, item)
	m.queuedIDs[id] = struct{}{}
	return true
}

// Remove drops a queued item. Active transfers are not cancelled.
func (m *Manager) Remove(trackID int64) bool {
	m.mu.Lock()
	if _, ok := m.queuedIDs[trackID]; !ok {
		m.mu.Unlock()
		return false
	}
	m.queued = slices.DeleteFunc(m.queued, func(it Item) bool { return it.TrackID == trackID })
	delete(m.queuedIDs, trackID)
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	return true
}

// State returns a snapshot of every collection.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// MarkCompleted moves an active item to completed.
func (m *Manager) MarkCompleted(trackID int64, filename string, metadata map[string]string) error {
	return m.finishCompleted(m.lookupActive(trackID), filename, metadata)
}

// MarkFailed moves an active item to failed with reason recorded verbatim.
func (m *Manager) MarkFailed(trackID int64, reason string) error {
	return m.finishFailed(m.lookupActive(trackID), reason)
}

func (m *Manager) lookupActive(trackID int64) *activeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[trackID]
}

// finishCompleted transitions entry only if it is still the active entry for
// its id, so a stale worker cannot complete a newer request.
func (m *Manager) finishCompleted(entry *activeEntry, filename string, metadata map[string]string) error {
	if entry == nil {
		return ErrNotActive
	}
	m.mu.Lock()
	if m.active[entry.item.TrackID] != entry {
		m.mu.Unlock()
		return ErrNotActive
	}
	delete(m.active, entry.item.TrackID)
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	record := CompletedRecord{
		Item:        entry.item,
		Filename:    filename,
		Metadata:    meta,
		CompletedAt: m.now(),
	}
	m.completed = append(m.completed, record)
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	m.logger.Info("download completed",
		logging.TrackID(record.TrackID),
		logging.String("filename", filename),
	)
	if m.observer != nil {
		m.observer.ItemCompleted(record)
	}
	return nil
}

func (m *Manager) finishFailed(entry *activeEntry, reason string) error {
	if entry == nil {
		return ErrNotActive
	}
	m.mu.Lock()
	if m.active[entry.item.TrackID] != entry {
		m.mu.Unlock()
		return ErrNotActive
	}
	delete(m.active, entry.item.TrackID)
	record := FailedRecord{
		Item:     entry.item,
		Error:    reason,
		FailedAt: m.now(),
	}
	m.failed = append(m.failed, record)
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	logging.WarnWithContext(m.logger, "download failed", "download_failed",
		logging.TrackID(record.TrackID),
		logging.String("reason", reason),
		logging.Hint("retry the item or check mirror availability"),
		logging.Impact("track was not saved"),
	)
	if m.observer != nil {
		m.observer.ItemFailed(record)
	}
	return nil
}

// RetryFailed moves every failed item to the tail of the queue.
func (m *Manager) RetryFailed() int {
	m.mu.Lock()
	if len(m.failed) == 0 {
		m.mu.Unlock()
		return 0
	}
	moved := 0
	for _, record := range m.failed {
		if m.requeueLocked(record.Item) {
			moved++
		}
	}
	m.failed = m.failed[:0]
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	m.logger.Info("retrying failed downloads", logging.Int("count", moved))
	return moved
}

// RetrySingle moves one failed item to the tail of the queue.
func (m *Manager) RetrySingle(trackID int64) bool {
	m.mu.Lock()
	idx := slices.IndexFunc(m.failed, func(r FailedRecord) bool { return r.TrackID == trackID })
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	record := m.failed[idx]
	m.failed = slices.Delete(m.failed, idx, idx+1)
	m.requeueLocked(record.Item)
	m.dispatchLocked()
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	return true
}

func (m *Manager) requeueLocked(item Item) bool {
	if _, ok := m.queuedIDs[item.TrackID]; ok {
		return false
	}
	if _, ok := m.active[item.TrackID]; ok {
		return false
	}
	m.queued = append(m.queued, item)
	m.queuedIDs[item.TrackID] = struct{}{}
	return true
}

// ClearQueue drops every queued item.
func (m *Manager) ClearQueue() int {
	m.mu.Lock()
	n := len(m.queued)
	if n == 0 {
		m.mu.Unlock()
		return 0
	}
	m.queued = make([]Item, 0)
	clear(m.queuedIDs)
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	return n
}

// ClearCompleted drops every completed record.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	n := len(m.completed)
	if n == 0 {
		m.mu.Unlock()
		return 0
	}
	m.completed = make([]CompletedRecord, 0)
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	return n
}

// ClearFailed drops every failed record.
func (m *Manager) ClearFailed() int {
	m.mu.Lock()
	n := len(m.failed)
	if n == 0 {
		m.mu.Unlock()
		return 0
	}
	m.failed = make([]FailedRecord, 0)
	snap := m.mutatedLocked()
	m.mu.Unlock()

	m.save(snap)
	return n
}

// Progress returns the live view of an active transfer.
func (m *Manager) Progress(trackID int64) (ActiveItem, bool) {
	entry := m.lookupActive(trackID)
	if entry == nil {
		return ActiveItem{}, false
	}
	return entry.view(), true
}

// ActiveProgress returns live views of every active transfer in admission order.
func (m *Manager) ActiveProgress() []ActiveItem {
	m.mu.Lock()
	entries := make([]*activeEntry, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	views := make([]ActiveItem, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entry.view())
	}
	sortActive(views)
	return views
}

// Restore loads persisted collections into an idle manager, replacing its
// contents. Duplicate ids are dropped so each id lands in one collection, with
// queue entries taking precedence. It returns the number of queued items.
func (m *Manager) Restore(state RestoreState) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queued = make([]Item, 0, len(state.Queue))
	m.queuedIDs = make(map[int64]struct{}, len(state.Queue))
	m.completed = make([]CompletedRecord, 0, len(state.Completed))
	m.failed = make([]FailedRecord, 0, len(state.Failed))

	seen := make(map[int64]struct{})
	for id := range m.active {
		seen[id] = struct{}{}
	}
	for _, item := range state.Queue {
		if _, dup := seen[item.TrackID]; dup {
			continue
		}
		seen[item.TrackID] = struct{}{}
		if item.Quality == "" {
			item.Quality = QualityLossless
		}
		m.queued = append(m.queued, item)
		m.queuedIDs[item.TrackID] = struct{}{}
	}
	for _, record := range state.Completed {
		if _, dup := seen[record.TrackID]; dup {
			continue
		}
		seen[record.TrackID] = struct{}{}
		if record.Metadata == nil {
			record.Metadata = map[string]string{}
		}
		m.completed = append(m.completed, record)
	}
	for _, record := range state.Failed {
		if _, dup := seen[record.TrackID]; dup {
			continue
		}
		seen[record.TrackID] = struct{}{}
		m.failed = append(m.failed, record)
	}
	m.version++
	m.dispatchLocked()
	return len(m.queued)
}
