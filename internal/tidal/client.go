package tidal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"tideway/internal/endpoints"
	"tideway/internal/logging"
)

// Operation names key the router's learned preference. Each public method uses
// its own name so learning stays independent per call type.
const (
	OpSearchTracks   = "search_tracks"
	OpSearchAlbums   = "search_albums"
	OpSearchArtists  = "search_artists"
	OpGetTrack       = "get_track"
	OpGetAlbum       = "get_album"
	OpGetAlbumTracks = "get_album_tracks"
	OpGetArtist      = "get_artist"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultBackoff        = 2 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxResponseBytes      = 32 << 20
)

var errInvalidJSON = errors.New("response body is not valid JSON")

// Response is a successful answer from one mirror.
type Response struct {
	Body     []byte
	Endpoint endpoints.Endpoint
}

// Client executes API calls across the mirror pool.
type Client struct {
	router     *endpoints.Router
	httpClient *http.Client
	timeout    time.Duration
	backoff    time.Duration
	userAgent  string
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRequestTimeout bounds each individual mirror request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimitBackoff sets the pause after a mirror answers 429.
func WithRateLimitBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithUserAgent overrides the User-Agent header sent to mirrors.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithSleeper replaces the context-aware wait used for rate-limit backoff.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client routing through router.
func New(router *endpoints.Router, opts ...Option) *Client {
	if router == nil {
		router = endpoints.NewRouter(nil)
	}
	client := &Client{
		router:     router,
		httpClient: &http.Client{},
		timeout:    defaultRequestTimeout,
		backoff:    defaultBackoff,
		userAgent:  defaultUserAgent,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "tidal")
	return client
}

// Router exposes the router used for candidate ordering.
func (c *Client) Router() *endpoints.Router {
	return c.router
}

// Get runs op against the mirror pool and returns the first valid JSON body.
// The boolean is false when every mirror failed.
func (c *Client) Get(ctx context.Context, op, path string, params url.Values) ([]byte, bool) {
	resp, ok := c.Fetch(ctx, op, path, params)
	if !ok {
		return nil, false
	}
	return resp.Body, true
}

// Fetch is Get that also reports which mirror answered.
func (c *Client) Fetch(ctx context.Context, op, path string, params url.Values) (Response, bool) {
	candidates := c.router.Candidates(op)
	logger := c.logger.With(logging.Operation(op))

	for _, ep := range candidates {
		if ctx.Err() != nil {
			return Response{}, false
		}

		status, body, err := c.request(ctx, ep, path, params)
		attemptLogger := logger.With(logging.Endpoint(ep.Name))
		switch {
		case err != nil:
			attemptLogger.Debug("mirror request failed", logging.Error(err))
			continue
		case status == http.StatusTooManyRequests:
			attemptLogger.Debug("mirror rate limited", logging.Duration("backoff", c.backoff))
			if err := c.sleep(ctx, c.backoff); err != nil {
				return Response{}, false
			}
			continue
		case status == http.StatusNotFound || status == http.StatusInternalServerError:
			attemptLogger.Debug("mirror rejected request", logging.Int("status", status))
			continue
		case status != http.StatusOK:
			attemptLogger.Debug("mirror returned unexpected status", logging.Int("status", status))
			continue
		}

		if !gjson.ValidBytes(body) {
			attemptLogger.Debug("mirror response discarded", logging.Error(errInvalidJSON))
			continue
		}

		c.router.RecordSuccess(op, ep)
		attemptLogger.Debug("mirror request succeeded", logging.Int("bytes", len(body)))
		return Response{Body: body, Endpoint: ep}, true
	}

	if ctx.Err() == nil {
		logging.WarnWithContext(logger, "all mirrors failed", "mirrors_exhausted",
			logging.Int("candidates", len(candidates)),
			logging.Hint("mirrors may be down; refresh the endpoints file"),
			logging.Impact("request returned no result"),
		)
	}
	return Response{}, false
}

func (c *Client) request(ctx context.Context, ep endpoints.Endpoint, path string, params url.Values) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := ep.URL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
