package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tideway/internal/api"
	"tideway/internal/history"
	"tideway/internal/tidal"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("tideway daemon unavailable")

// StatusError is a non-2xx answer from the daemon.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.Code)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Code, e.Message)
}

// Client issues requests against the daemon API.
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	transfer *http.Client
}

// New returns a client for the daemon listening on bind. A bind without a
// scheme is treated as plain HTTP.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("%w: api_bind is empty", ErrUnavailable)
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 60 * time.Second},
		// File transfers are bounded by the caller's context only.
		transfer: &http.Client{},
	}, nil
}

// Health checks that the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	var out api.HealthResponse
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Queue returns the full queue view.
func (c *Client) Queue(ctx context.Context) (api.QueueState, error) {
	var out api.QueueState
	err := c.do(ctx, http.MethodGet, "/api/queue", nil, nil, &out)
	return out, err
}

// Add enqueues tracks.
func (c *Client) Add(ctx context.Context, tracks []api.TrackRequest) (api.AddResponse, error) {
	var out api.AddResponse
	err := c.do(ctx, http.MethodPost, "/api/queue", nil, api.AddRequest{Items: tracks}, &out)
	return out, err
}

// Remove drops a queued track.
func (c *Client) Remove(ctx context.Context, trackID int64) (bool, error) {
	var out api.ResultResponse
	err := c.do(ctx, http.MethodDelete, "/api/queue/"+id(trackID), nil, nil, &out)
	return out.OK, err
}

// ClearQueue drops every queued track.
func (c *Client) ClearQueue(ctx context.Context) (int, error) {
	return c.count(ctx, http.MethodDelete, "/api/queue")
}

// ClearCompleted drops completed records.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	return c.count(ctx, http.MethodDelete, "/api/completed")
}

// ClearFailed drops failed records.
func (c *Client) ClearFailed(ctx context.Context) (int, error) {
	return c.count(ctx, http.MethodDelete, "/api/failed")
}

// RetryFailed requeues every failed track.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	return c.count(ctx, http.MethodPost, "/api/queue/retry")
}

// RetrySingle requeues one failed track.
func (c *Client) RetrySingle(ctx context.Context, trackID int64) (bool, error) {
	var out api.ResultResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/retry/"+id(trackID), nil, nil, &out)
	return out.OK, err
}

// Progress returns active transfers.
func (c *Client) Progress(ctx context.Context) (api.ProgressResponse, error) {
	var out api.ProgressResponse
	err := c.do(ctx, http.MethodGet, "/api/progress", nil, nil, &out)
	return out, err
}

// SearchTracks searches the catalog for tracks.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]tidal.Track, error) {
	var out api.SearchTracksResponse
	err := c.do(ctx, http.MethodGet, "/api/search/tracks", url.Values{"q": {query}}, nil, &out)
	return out.Items, err
}

// SearchAlbums searches the catalog for albums.
func (c *Client) SearchAlbums(ctx context.Context, query string) ([]tidal.Album, error) {
	var out api.SearchAlbumsResponse
	err := c.do(ctx, http.MethodGet, "/api/search/albums", url.Values{"q": {query}}, nil, &out)
	return out.Items, err
}

// SearchArtists searches the catalog for artists.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]tidal.Artist, error) {
	var out api.SearchArtistsResponse
	err := c.do(ctx, http.MethodGet, "/api/search/artists", url.Values{"q": {query}}, nil, &out)
	return out.Items, err
}

// AlbumTracks lists an album's tracks.
func (c *Client) AlbumTracks(ctx context.Context, albumID int64) ([]tidal.Track, error) {
	var out api.ItemsResponse[tidal.Track]
	err := c.do(ctx, http.MethodGet, "/api/album/"+id(albumID)+"/tracks", nil, nil, &out)
	return out.Items, err
}

// Artist returns an artist page.
func (c *Client) Artist(ctx context.Context, artistID int64) (tidal.ArtistPage, error) {
	var out tidal.ArtistPage
	err := c.do(ctx, http.MethodGet, "/api/artist/"+id(artistID), nil, nil, &out)
	return out, err
}

// Endpoints lists configured mirrors and their learned preferences.
func (c *Client) Endpoints(ctx context.Context) (api.EndpointsResponse, error) {
	var out api.EndpointsResponse
	err := c.do(ctx, http.MethodGet, "/api/endpoints", nil, nil, &out)
	return out, err
}

// StreamURL resolves a playable URL. An empty quality uses the daemon default.
func (c *Client) StreamURL(ctx context.Context, trackID int64, quality string) (api.StreamURLResponse, error) {
	var params url.Values
	if quality != "" {
		params = url.Values{"quality": {quality}}
	}
	var out api.StreamURLResponse
	err := c.do(ctx, http.MethodGet, "/api/download/stream/"+id(trackID), params, nil, &out)
	return out, err
}

// DownloadState reports where a track is in its lifecycle.
func (c *Client) DownloadState(ctx context.Context, trackID int64) (api.DownloadState, error) {
	var out api.DownloadState
	err := c.do(ctx, http.MethodGet, "/api/download/state/"+id(trackID), nil, nil, &out)
	return out, err
}

// ForgetDownload drops the ledger entry for a track.
func (c *Client) ForgetDownload(ctx context.Context, trackID int64) (bool, error) {
	var out api.ResultResponse
	err := c.do(ctx, http.MethodDelete, "/api/download/state/"+id(trackID), nil, nil, &out)
	return out.OK, err
}

// History lists recent ledger entries, newest first. A zero limit uses the
// daemon default.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	var params url.Values
	if limit > 0 {
		params = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history", params, nil, &out)
	return out.Items, err
}

// DownloadFile copies a completed download into w.
func (c *Client) DownloadFile(ctx context.Context, trackID int64, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/download/file/"+id(trackID), nil, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, wrapTransport(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy download: %w", err)
	}
	return n, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotifyResponse, error) {
	var out api.NotifyResponse
	err := c.do(ctx, http.MethodPost, "/api/notify/test", nil, nil, &out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusBadGateway {
		return api.NotifyResponse{Sent: false, Message: statusErr.Message}, nil
	}
	return out, err
}

func (c *Client) count(ctx context.Context, method, path string) (int, error) {
	var out api.CountResponse
	err := c.do(ctx, method, path, nil, nil, &out)
	return out.Count, err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransport(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: params.Encode()})
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(data))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			message = payload.Error
		case payload.Message != "":
			message = payload.Message
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: message}
}

func wrapTransport(err error) error {
	if IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
