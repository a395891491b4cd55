// Package staging reclaims partial transfer files that interrupted downloads
// leave beside their destinations in the download directory.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tideway/internal/logging"
)

const partialSuffix = ".part"

// CleanStaleResult contains the outcome of a stale partial cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// PartialInfo describes one partial transfer file.
type PartialInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// IsPartial reports whether name is a hidden partial transfer file.
func IsPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, partialSuffix) && len(name) > len(partialSuffix)+1
}

// ListPartials returns every partial transfer file under downloadDir. A
// missing directory yields no entries.
func ListPartials(ctx context.Context, downloadDir string) ([]PartialInfo, error) {
	downloadDir = strings.TrimSpace(downloadDir)
	if downloadDir == "" {
		return nil, nil
	}

	var partials []PartialInfo
	err := filepath.WalkDir(downloadDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() || !IsPartial(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		partials = append(partials, PartialInfo{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	return partials, err
}

// CleanStale removes partial transfer files older than maxAge. Younger files
// may belong to a transfer still in flight and are left alone.
func CleanStale(ctx context.Context, downloadDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	logger = logging.NewComponentLogger(logger, "staging")
	result := CleanStaleResult{}

	partials, err := ListPartials(ctx, downloadDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: downloadDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, partial := range partials {
		if !partial.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(partial.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: partial.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale partial download", "staging_cleanup_failed",
				logging.String("path", partial.Path),
				logging.Error(err),
				logging.Hint("check download_dir permissions"),
				logging.Impact("disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, partial.Path)
		logger.Info("removed stale partial download",
			logging.String("path", partial.Path),
			logging.Int64("bytes", partial.Size),
			logging.Duration("age", time.Since(partial.ModTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
