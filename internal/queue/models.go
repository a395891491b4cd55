package queue

import (
	"strings"
	"time"
)

// Quality is the requested audio quality.
type Quality string

const (
	QualityLow      Quality = "LOW"
	QualityHigh     Quality = "HIGH"
	QualityLossless Quality = "LOSSLESS"
	QualityHiRes    Quality = "HI_RES"
)

// ParseQuality normalizes s. Empty input yields QualityLossless; unknown values
// report false.
func ParseQuality(s string) (Quality, bool) {
	switch q := Quality(strings.ToUpper(strings.TrimSpace(s))); q {
	case "":
		return QualityLossless, true
	case QualityLow, QualityHigh, QualityLossless, QualityHiRes:
		return q, true
	default:
		return q, false
	}
}

// Lossless reports whether q is delivered as FLAC.
func (q Quality) Lossless() bool {
	return q == QualityLossless || q == QualityHiRes
}

// Item is one requested track download.
type Item struct {
	TrackID     int64     `json:"track_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album,omitempty"`
	Quality     Quality   `json:"quality"`
	RequestedAt time.Time `json:"requested_at"`
}

// Status describes what an active transfer is doing.
type Status string

const (
	StatusResolving   Status = "resolving"
	StatusDownloading Status = "downloading"
	StatusFinalizing  Status = "finalizing"
)

// ActiveItem is a point-in-time view of an active transfer.
type ActiveItem struct {
	Item      Item      `json:"item"`
	Progress  int       `json:"progress"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// CompletedRecord is a terminal success. Metadata is read-only once recorded.
type CompletedRecord struct {
	Item
	Filename    string            `json:"filename"`
	Metadata    map[string]string `json:"metadata"`
	CompletedAt time.Time         `json:"completed_at"`
}

// FailedRecord is a terminal failure; it stays retryable until cleared.
type FailedRecord struct {
	Item
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Settings reports manager configuration alongside a snapshot.
type Settings struct {
	MaxConcurrent int `json:"max_concurrent"`
}

// Snapshot is a point-in-time copy of every collection. Slices and maps are
// never nil. Version increases with every mutation.
type Snapshot struct {
	Queue     []Item               `json:"queue"`
	Active    map[int64]ActiveItem `json:"active"`
	Completed []CompletedRecord    `json:"completed"`
	Failed    []FailedRecord       `json:"failed"`
	Settings  Settings             `json:"settings"`
	Version   uint64               `json:"-"`
}

// ActiveInOrder returns the active items in admission order.
func (s Snapshot) ActiveInOrder() []ActiveItem {
	out := make([]ActiveItem, 0, len(s.Active))
	for _, item := range s.Active {
		out = append(out, item)
	}
	sortActive(out)
	return out
}

// AddResult tallies an AddMany call.
type AddResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// RestoreState is the persisted content loaded at startup.
type RestoreState struct {
	Queue     []Item
	Completed []CompletedRecord
	Failed    []FailedRecord
}
