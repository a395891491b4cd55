package apiclient_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"tideway/internal/api"
	"tideway/internal/apiclient"
)

type seen struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func serve(t *testing.T, status int, payload any) (*apiclient.Client, *seen) {
	t.Helper()
	got := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.auth = r.Header.Get("Authorization")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)

	client, err := apiclient.New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, got
}

func TestNewRejectsEmptyBind(t *testing.T) {
	if _, err := apiclient.New("  ", ""); !errors.Is(err, apiclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAddSendsEnvelopeWithToken(t *testing.T) {
	client, got := serve(t, http.StatusOK, api.AddResponse{Added: 1, Skipped: 1})

	resp, err := client.Add(context.Background(), []api.TrackRequest{
		{TrackID: 1, Title: "One", Artist: "A"},
		{TrackID: 1, Title: "One", Artist: "A"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if resp.Added != 1 || resp.Skipped != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.method != http.MethodPost || got.path != "/api/queue" || got.auth != "Bearer tok" {
		t.Fatalf("unexpected request: %+v", got)
	}
	var body api.AddRequest
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].TrackID != 1 {
		t.Fatalf("unexpected body: %s", got.body)
	}
}

func TestRoutes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		call   func(*apiclient.Client) error
		method string
		path   string
		query  string
	}{
		{"remove", func(c *apiclient.Client) error { _, err := c.Remove(ctx, 5); return err }, http.MethodDelete, "/api/queue/5", ""},
		{"clear queue", func(c *apiclient.Client) error { _, err := c.ClearQueue(ctx); return err }, http.MethodDelete, "/api/queue", ""},
		{"clear completed", func(c *apiclient.Client) error { _, err := c.ClearCompleted(ctx); return err }, http.MethodDelete, "/api/completed", ""},
		{"clear failed", func(c *apiclient.Client) error { _, err := c.ClearFailed(ctx); return err }, http.MethodDelete, "/api/failed", ""},
		{"retry all", func(c *apiclient.Client) error { _, err := c.RetryFailed(ctx); return err }, http.MethodPost, "/api/queue/retry", ""},
		{"retry one", func(c *apiclient.Client) error { _, err := c.RetrySingle(ctx, 9); return err }, http.MethodPost, "/api/queue/retry/9", ""},
		{"search", func(c *apiclient.Client) error { _, err := c.SearchTracks(ctx, "a b"); return err }, http.MethodGet, "/api/search/tracks", "q=a+b"},
		{"albums", func(c *apiclient.Client) error { _, err := c.SearchAlbums(ctx, "x"); return err }, http.MethodGet, "/api/search/albums", "q=x"},
		{"artists", func(c *apiclient.Client) error { _, err := c.SearchArtists(ctx, "x"); return err }, http.MethodGet, "/api/search/artists", "q=x"},
		{"album tracks", func(c *apiclient.Client) error { _, err := c.AlbumTracks(ctx, 3); return err }, http.MethodGet, "/api/album/3/tracks", ""},
		{"artist", func(c *apiclient.Client) error { _, err := c.Artist(ctx, 4); return err }, http.MethodGet, "/api/artist/4", ""},
		{"stream", func(c *apiclient.Client) error { _, err := c.StreamURL(ctx, 2, "HIGH"); return err }, http.MethodGet, "/api/download/stream/2", "quality=HIGH"},
		{"stream default", func(c *apiclient.Client) error { _, err := c.StreamURL(ctx, 2, ""); return err }, http.MethodGet, "/api/download/stream/2", ""},
		{"state", func(c *apiclient.Client) error { _, err := c.DownloadState(ctx, 2); return err }, http.MethodGet, "/api/download/state/2", ""},
		{"history", func(c *apiclient.Client) error { _, err := c.History(ctx, 5); return err }, http.MethodGet, "/api/history", "limit=5"},
		{"history default", func(c *apiclient.Client) error { _, err := c.History(ctx, 0); return err }, http.MethodGet, "/api/history", ""},
		{"forget", func(c *apiclient.Client) error { _, err := c.ForgetDownload(ctx, 2); return err }, http.MethodDelete, "/api/download/state/2", ""},
		{"endpoints", func(c *apiclient.Client) error { _, err := c.Endpoints(ctx); return err }, http.MethodGet, "/api/endpoints", ""},
		{"progress", func(c *apiclient.Client) error { _, err := c.Progress(ctx); return err }, http.MethodGet, "/api/progress", ""},
		{"status", func(c *apiclient.Client) error { _, err := c.Status(ctx); return err }, http.MethodGet, "/api/status", ""},
		{"queue", func(c *apiclient.Client) error { _, err := c.Queue(ctx); return err }, http.MethodGet, "/api/queue", ""},
		{"health", func(c *apiclient.Client) error { return c.Health(ctx) }, http.MethodGet, "/api/health", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, got := serve(t, http.StatusOK, map[string]any{})
			if err := tc.call(client); err != nil {
				t.Fatalf("call: %v", err)
			}
			if got.method != tc.method || got.path != tc.path || got.query != tc.query {
				t.Fatalf("expected %s %s?%s, got %s %s?%s", tc.method, tc.path, tc.query, got.method, got.path, got.query)
			}
		})
	}
}

func TestErrorStatusCarriesMessage(t *testing.T) {
	client, _ := serve(t, http.StatusNotFound, api.ErrorResponse{Error: "artist not found"})

	_, err := client.Artist(context.Background(), 1)
	if !apiclient.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.Message != "artist not found" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotificationFailureIsReported(t *testing.T) {
	client, _ := serve(t, http.StatusBadGateway, api.NotifyResponse{Sent: false, Message: "failed to send notification: 403"})

	resp, err := client.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if resp.Sent || resp.Message != "failed to send notification: 403" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDownloadFileStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download/file/7" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	n, err := client.DownloadFile(context.Background(), 7, &buf)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if n != 5 || buf.String() != "audio" {
		t.Fatalf("unexpected copy: %d %q", n, buf.String())
	}
	if _, err := client.DownloadFile(context.Background(), 8, &buf); !apiclient.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnreachableDaemonIsUnavailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	client, err := apiclient.New(addr, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Health(context.Background())
	if !apiclient.IsUnavailable(err) || !errors.Is(err, apiclient.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if apiclient.IsUnavailable(errors.New("other")) || apiclient.IsUnavailable(nil) {
		t.Fatal("unexpected unavailable classification")
	}
}
