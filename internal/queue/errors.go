package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned by MarkCompleted and MarkFailed when the track
	// is not currently active.
	ErrNotActive = errors.New("track is not active")
	// ErrRunning is returned by Start when the manager is already dispatching.
	ErrRunning = errors.New("queue manager already running")
	// ErrNoDownloader is returned by Start when no Downloader was configured.
	ErrNoDownloader = errors.New("queue manager has no downloader")
)

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("download panicked: %v", e.value)
}
