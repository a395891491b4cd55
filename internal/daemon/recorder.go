package daemon

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"tideway/internal/history"
	"tideway/internal/logging"
	"tideway/internal/notifications"
	"tideway/internal/queue"
)

const recordTimeout = 15 * time.Second

// Ledger stores terminal download outcomes.
type Ledger interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Recorder is the queue observer that writes the download ledger and sends
// notifications. Failures are logged and never affect the queue.
type Recorder struct {
	ledger   Ledger
	notifier notifications.Service
	logger   *slog.Logger
}

// NewRecorder builds a Recorder. ledger and notifier may be nil.
func NewRecorder(ledger Ledger, notifier notifications.Service, logger *slog.Logger) *Recorder {
	return &Recorder{
		ledger:   ledger,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "recorder"),
	}
}

// ItemCompleted implements queue.Observer.
func (r *Recorder) ItemCompleted(record queue.CompletedRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	bytes, _ := strconv.ParseInt(record.Metadata["bytes"], 10, 64)
	r.record(ctx, history.Entry{
		TrackID:      record.TrackID,
		Status:       history.StatusCompleted,
		Title:        record.Title,
		Artist:       record.Artist,
		Album:        record.Album,
		Quality:      string(record.Quality),
		Filename:     record.Filename,
		FinalPath:    record.Metadata["final_path"],
		Bytes:        bytes,
		EndpointHost: record.Metadata["endpoint_host"],
		UpdatedAt:    record.CompletedAt,
	})
	r.notify(ctx, notifications.EventDownloadCompleted, record.TrackID, notifications.Payload{
		"track_id": record.TrackID,
		"artist":   record.Artist,
		"title":    record.Title,
		"filename": record.Filename,
	})
}

// ItemFailed implements queue.Observer.
func (r *Recorder) ItemFailed(record queue.FailedRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	r.record(ctx, history.Entry{
		TrackID:   record.TrackID,
		Status:    history.StatusFailed,
		Title:     record.Title,
		Artist:    record.Artist,
		Album:     record.Album,
		Quality:   string(record.Quality),
		Error:     record.Error,
		UpdatedAt: record.FailedAt,
	})
	r.notify(ctx, notifications.EventDownloadFailed, record.TrackID, notifications.Payload{
		"track_id": record.TrackID,
		"artist":   record.Artist,
		"title":    record.Title,
		"error":    record.Error,
	})
}

func (r *Recorder) record(ctx context.Context, entry history.Entry) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Record(ctx, entry); err != nil {
		logging.WarnWithContext(r.logger, "download ledger not updated", "history_record_failed",
			logging.TrackID(entry.TrackID),
			logging.Error(err),
			logging.Hint("check history.db in state_dir"),
			logging.Impact("download state lookups may be stale"),
		)
	}
}

func (r *Recorder) notify(ctx context.Context, event notifications.Event, trackID int64, payload notifications.Payload) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
			logging.TrackID(trackID),
			logging.String("event", string(event)),
			logging.Error(err),
			logging.Hint("check ntfy_topic and network access"),
			logging.Impact("no push notification for this download"),
		)
	}
}
