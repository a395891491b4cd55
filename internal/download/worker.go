package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"tideway/internal/fileutil"
	"tideway/internal/logging"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

const (
	defaultChunkSize     = 64 * 1024
	defaultStreamTimeout = 30 * time.Minute
)

// ErrStreamStatus reports a stream response other than HTTP 200.
var ErrStreamStatus = errors.New("unexpected stream status")

// Resolver turns a track id into a playable stream.
type Resolver interface {
	ResolveStream(ctx context.Context, trackID int64, quality string) (tidal.Stream, error)
}

// Worker downloads queue items into a directory.
type Worker struct {
	resolver      Resolver
	dir           string
	httpClient    *http.Client
	chunkSize     int
	streamTimeout time.Duration
	userAgent     string
	logger        *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithHTTPClient overrides the client used for stream transfers.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Worker) {
		if client != nil {
			w.httpClient = client
		}
	}
}

// WithChunkSize sets the copy buffer size in bytes.
func WithChunkSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.chunkSize = n
		}
	}
}

// WithStreamTimeout bounds a whole transfer.
func WithStreamTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.streamTimeout = d
		}
	}
}

// WithHeaderTimeout bounds the wait for stream response headers. It has no
// effect on a client whose transport is not an *http.Transport.
func WithHeaderTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d <= 0 {
			return
		}
		if transport, ok := w.httpClient.Transport.(*http.Transport); ok {
			transport.ResponseHeaderTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent sent to stream hosts.
func WithUserAgent(ua string) Option {
	return func(w *Worker) {
		w.userAgent = ua
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// New constructs a Worker saving into dir.
func New(resolver Resolver, dir string, opts ...Option) *Worker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	w := &Worker{
		resolver:      resolver,
		dir:           dir,
		httpClient:    &http.Client{Transport: transport},
		chunkSize:     defaultChunkSize,
		streamTimeout: defaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "download")
	return w
}

// Dir returns the download directory.
func (w *Worker) Dir() string {
	return w.dir
}

// Destination returns where item is saved.
func (w *Worker) Destination(item queue.Item) string {
	return filepath.Join(w.dir, fileutil.TrackFilename(item.Artist, item.Title)+extension(item.Quality))
}

func extension(q queue.Quality) string {
	if q == "" || q.Lossless() {
		return ".flac"
	}
	return ".m4a"
}

// Download resolves and saves item. Errors are returned unwrapped from the
// resolver and the transfer so the queue records them verbatim.
func (w *Worker) Download(ctx context.Context, item queue.Item, report queue.ProgressFunc) (queue.Result, error) {
	logger := w.logger.With(logging.TrackID(item.TrackID))
	quality := string(item.Quality)
	dest := w.Destination(item)
	filename := filepath.Base(dest)

	if fileutil.Exists(dest) {
		logger.Info("destination exists; skipping transfer", logging.String("path", dest))
		report(queue.StatusFinalizing, 100)
		return existingResult(dest, filename, quality), nil
	}

	report(queue.StatusResolving, 0)
	stream, err := w.resolver.ResolveStream(ctx, item.TrackID, quality)
	if err != nil {
		return queue.Result{}, err
	}
	logger.Debug("stream resolved",
		logging.Endpoint(stream.Endpoint.Name),
		logging.String("quality", stream.Quality),
	)

	written, placed, err := w.transfer(ctx, stream.URL, dest, report)
	if err != nil {
		return queue.Result{}, err
	}
	if !placed {
		logger.Info("destination appeared during transfer; keeping existing file", logging.String("path", dest))
		return existingResult(dest, filename, stream.Quality), nil
	}

	logger.Info("track saved",
		logging.String("path", dest),
		logging.Int64("bytes", written),
		logging.Endpoint(stream.Endpoint.Name),
	)
	return queue.Result{
		Filename: filename,
		Metadata: map[string]string{
			"final_path":    dest,
			"quality":       stream.Quality,
			"bytes":         strconv.FormatInt(written, 10),
			"endpoint_host": stream.Endpoint.Host(),
		},
	}, nil
}

func existingResult(dest, filename, quality string) queue.Result {
	size := int64(0)
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}
	return queue.Result{
		Filename: filename,
		Metadata: map[string]string{
			"final_path": dest,
			"quality":    quality,
			"bytes":      strconv.FormatInt(size, 10),
			"skipped":    "exists",
		},
	}
}

// transfer copies streamURL to dest through a partial file. placed is false
// when dest was created by someone else before the copy finished.
func (w *Worker) transfer(ctx context.Context, streamURL, dest string, report queue.ProgressFunc) (written int64, placed bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, w.streamTimeout)
	defer cancel()

	resp, err := w.get(ctx, streamURL)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("%w: HTTP %d", ErrStreamStatus, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, false, fmt.Errorf("create download directory: %w", err)
	}
	part, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, false, fmt.Errorf("create partial file: %w", err)
	}
	partName := part.Name()
	// After a successful link the partial name is only a second link to dest.
	defer func() {
		part.Close()
		os.Remove(partName)
	}()

	progress := &progressWriter{total: resp.ContentLength, report: report}
	report(queue.StatusDownloading, 0)
	written, err = io.CopyBuffer(part, io.TeeReader(resp.Body, progress), make([]byte, w.chunkSize))
	if err != nil {
		return written, false, err
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return written, false, fmt.Errorf("stream ended after %d of %d bytes: %w", written, resp.ContentLength, io.ErrUnexpectedEOF)
	}

	report(queue.StatusFinalizing, 100)
	if err := part.Sync(); err != nil {
		return written, false, fmt.Errorf("sync partial file: %w", err)
	}
	if err := part.Close(); err != nil {
		return written, false, fmt.Errorf("close partial file: %w", err)
	}
	placed, err = place(partName, dest)
	if err != nil {
		return written, false, fmt.Errorf("finalize download: %w", err)
	}
	return written, placed, nil
}

// place publishes the finished partial at dest without replacing an existing
// file. Filesystems without hard links fall back to check-then-rename.
func place(partName, dest string) (bool, error) {
	err := os.Link(partName, dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.EMLINK):
		if fileutil.Exists(dest) {
			return false, nil
		}
		return true, os.Rename(partName, dest)
	default:
		return false, err
	}
}

func (w *Worker) get(ctx context.Context, streamURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	return w.httpClient.Do(req)
}

// progressWriter converts bytes seen into whole-percent reports.
type progressWriter struct {
	total   int64
	current int64
	last    int
	report  queue.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.current += int64(len(b))
	if p.total <= 0 {
		return len(b), nil
	}
	percent := int(p.current * 100 / p.total)
	if percent != p.last {
		p.last = percent
		p.report(queue.StatusDownloading, percent)
	}
	return len(b), nil
}
