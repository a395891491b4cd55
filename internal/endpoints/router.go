package endpoints

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Router orders mirrors for each operation and remembers which one last succeeded.
// It is safe for concurrent use.
type Router struct {
	base []Endpoint

	mu      sync.RWMutex
	history map[string]SuccessRecord
	now     func() time.Time
}

// NewRouter builds a router over list. An empty list falls back to Defaults.
func NewRouter(list []Endpoint) *Router {
	if len(list) == 0 {
		list = Defaults()
	}
	base := slices.Clone(list)
	slices.SortStableFunc(base, func(a, b Endpoint) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return &Router{
		base:    base,
		history: make(map[string]SuccessRecord),
		now:     time.Now,
	}
}

// Endpoints returns the configured mirrors in base order.
func (r *Router) Endpoints() []Endpoint {
	return slices.Clone(r.base)
}

// Candidates returns every mirror in the order op should try them.
func (r *Router) Candidates(op string) []Endpoint {
	out := slices.Clone(r.base)

	r.mu.RLock()
	record, ok := r.history[op]
	r.mu.RUnlock()
	if !ok {
		return out
	}

	_, idx, found := lo.FindIndexOf(out, func(e Endpoint) bool { return e.Name == record.Name })
	if !found || idx == 0 {
		return out
	}
	learned := out[idx]
	copy(out[1:idx+1], out[:idx])
	out[0] = learned
	return out
}

// RecordSuccess makes ep the first candidate for op.
func (r *Router) RecordSuccess(op string, ep Endpoint) {
	r.mu.Lock()
	r.history[op] = SuccessRecord{Name: ep.Name, URL: ep.URL, Timestamp: r.now().UTC()}
	r.mu.Unlock()
}

// History returns a copy of the learned per-operation success records.
func (r *Router) History() map[string]SuccessRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.history)
}

// RestoreHistory replaces learned state with records, ignoring entries that name
// mirrors no longer configured.
func (r *Router) RestoreHistory(records map[string]SuccessRecord) {
	known := lo.SliceToMap(r.base, func(e Endpoint) (string, struct{}) { return e.Name, struct{}{} })

	restored := make(map[string]SuccessRecord, len(records))
	for op, record := range records {
		if _, ok := known[record.Name]; ok {
			restored[op] = record
		}
	}

	r.mu.Lock()
	r.history = restored
	r.mu.Unlock()
}
