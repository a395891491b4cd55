package api

import (
	"time"

	"tideway/internal/history"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

// TrackRequest is one track to enqueue.
type TrackRequest struct {
	TrackID int64  `json:"track_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// AddRequest is the envelope form of an enqueue payload.
type AddRequest struct {
	Items []TrackRequest `json:"items"`
}

// AddResponse reports an enqueue outcome.
type AddResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// CountResponse reports how many entries an operation affected.
type CountResponse struct {
	Count int `json:"count"`
}

// ResultResponse reports whether a single-item operation applied.
type ResultResponse struct {
	OK bool `json:"ok"`
}

// QueueState is the full queue view.
type QueueState struct {
	Queue     []queue.Item            `json:"queue"`
	Active    []queue.ActiveItem      `json:"active"`
	Completed []queue.CompletedRecord `json:"completed"`
	Failed    []queue.FailedRecord    `json:"failed"`
	Settings  queue.Settings          `json:"settings"`
}

// QueueCounts summarizes collection sizes.
type QueueCounts struct {
	Queued        int `json:"queued"`
	Active        int `json:"active"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	MaxConcurrent int `json:"max_concurrent"`
}

// ProgressEntry is the live state of one active transfer.
type ProgressEntry struct {
	TrackID   int64        `json:"track_id"`
	Title     string       `json:"title"`
	Artist    string       `json:"artist"`
	Progress  int          `json:"progress"`
	Status    queue.Status `json:"status"`
	StartedAt time.Time    `json:"started_at"`
}

// ProgressResponse lists active transfers in admission order.
type ProgressResponse struct {
	Active []ProgressEntry `json:"active"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool        `json:"running"`
	PID          int         `json:"pid"`
	SessionID    string      `json:"session_id,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	LockFilePath string      `json:"lock_file_path"`
	StatePath    string      `json:"state_path"`
	HistoryPath  string      `json:"history_path"`
	DownloadDir  string      `json:"download_dir"`
	Endpoints    int         `json:"endpoints"`
	Queue        QueueCounts `json:"queue"`
}

// ItemsResponse wraps a result list.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// SearchTracksResponse is returned by GET /api/search/tracks.
type SearchTracksResponse = ItemsResponse[tidal.Track]

// SearchAlbumsResponse is returned by GET /api/search/albums.
type SearchAlbumsResponse = ItemsResponse[tidal.Album]

// SearchArtistsResponse is returned by GET /api/search/artists.
type SearchArtistsResponse = ItemsResponse[tidal.Artist]

// HistoryResponse is returned by GET /api/history.
type HistoryResponse = ItemsResponse[history.Entry]

// StreamURLResponse is a resolved playable URL.
type StreamURLResponse struct {
	StreamURL string `json:"stream_url"`
	TrackID   int64  `json:"track_id"`
	Quality   string `json:"quality"`
	Endpoint  string `json:"endpoint"`
}

// EndpointView is a configured mirror and the operations it is preferred for.
type EndpointView struct {
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Priority     int      `json:"priority"`
	PreferredFor []string `json:"preferred_for,omitempty"`
}

// EndpointsResponse lists mirrors in base priority order.
type EndpointsResponse struct {
	Endpoints []EndpointView `json:"endpoints"`
}

// Download states reported by DownloadState.
const (
	StateQueued      = "queued"
	StateDownloading = "downloading"
	StateCompleted   = "completed"
	StateFailed      = "failed"
	StateNotFound    = "not_found"
)

// DownloadState reports where a track is in its download lifecycle. History
// is present when the ledger has an entry.
type DownloadState struct {
	TrackID  int64          `json:"track_id"`
	State    string         `json:"state"`
	Progress int            `json:"progress"`
	History  *history.Entry `json:"history,omitempty"`
}

// NotifyResponse reports a test notification attempt.
type NotifyResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
