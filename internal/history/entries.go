package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const entryColumns = `track_id, status, title, artist, album, quality, filename,
	final_path, bytes, endpoint_host, error, updated_at`

// Record inserts or replaces the ledger row for entry.TrackID. A zero
// UpdatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	if entry.Status != StatusCompleted && entry.Status != StatusFailed {
		return fmt.Errorf("record track %d: invalid status %q", entry.TrackID, entry.Status)
	}
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `INSERT INTO downloads (`+entryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(track_id) DO UPDATE SET
				status = excluded.status,
				title = excluded.title,
				artist = excluded.artist,
				album = excluded.album,
				quality = excluded.quality,
				filename = excluded.filename,
				final_path = excluded.final_path,
				bytes = excluded.bytes,
				endpoint_host = excluded.endpoint_host,
				error = excluded.error,
				updated_at = excluded.updated_at`,
			entry.TrackID,
			string(entry.Status),
			entry.Title,
			entry.Artist,
			entry.Album,
			entry.Quality,
			entry.Filename,
			entry.FinalPath,
			entry.Bytes,
			entry.EndpointHost,
			entry.Error,
			entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("record track %d: %w", entry.TrackID, err)
	}
	return nil
}

// Get returns the ledger row for trackID. The boolean is false when the track
// has never finished.
func (s *Store) Get(ctx context.Context, trackID int64) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM downloads WHERE track_id = ?`, trackID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get track %d: %w", trackID, err)
	}
	return entry, true, nil
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM downloads ORDER BY updated_at DESC, track_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Forget deletes the ledger row for trackID and reports whether one existed.
func (s *Store) Forget(ctx context.Context, trackID int64) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE track_id = ?`, trackID)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("forget track %d: %w", trackID, err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry     Entry
		status    string
		updatedAt string
	)
	if err := row.Scan(
		&entry.TrackID,
		&status,
		&entry.Title,
		&entry.Artist,
		&entry.Album,
		&entry.Quality,
		&entry.Filename,
		&entry.FinalPath,
		&entry.Bytes,
		&entry.EndpointHost,
		&entry.Error,
		&updatedAt,
	); err != nil {
		return Entry{}, err
	}
	entry.Status = Status(status)
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		entry.UpdatedAt = parsed
	}
	return entry, nil
}
