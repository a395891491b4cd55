package daemon_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"tideway/internal/config"
	"tideway/internal/daemon"
	"tideway/internal/endpoints"
	"tideway/internal/history"
	"tideway/internal/queue"
	"tideway/internal/statefile"
	"tideway/internal/testsupport"
	"tideway/internal/tidal"
)

type fakeCatalog struct {
	mu sync.Mutex

	tracks    []tidal.Track
	albums    map[int64][]tidal.Track
	artists   map[int64]tidal.ArtistPage
	stream    tidal.Stream
	streamErr error
	quality   string
}

func (f *fakeCatalog) SearchTracks(context.Context, string) ([]tidal.Track, bool) {
	return f.tracks, len(f.tracks) > 0
}

func (f *fakeCatalog) SearchAlbums(context.Context, string) ([]tidal.Album, bool) {
	return nil, false
}

func (f *fakeCatalog) SearchArtists(context.Context, string) ([]tidal.Artist, bool) {
	return []tidal.Artist{{ID: 7, Name: "Nina Simone"}}, true
}

func (f *fakeCatalog) AlbumTracks(_ context.Context, id int64) ([]tidal.Track, bool) {
	tracks, ok := f.albums[id]
	return tracks, ok
}

func (f *fakeCatalog) GetArtist(_ context.Context, id int64) (tidal.ArtistPage, bool) {
	page, ok := f.artists[id]
	return page, ok
}

func (f *fakeCatalog) ResolveStream(_ context.Context, _ int64, quality string) (tidal.Stream, error) {
	f.mu.Lock()
	f.quality = quality
	f.mu.Unlock()
	if f.streamErr != nil {
		return tidal.Stream{}, f.streamErr
	}
	stream := f.stream
	stream.Quality = quality
	return stream, nil
}

func (f *fakeCatalog) lastQuality() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quality
}

// instantDownloader completes every item immediately.
type instantDownloader struct{}

func (instantDownloader) Download(_ context.Context, item queue.Item, report queue.ProgressFunc) (queue.Result, error) {
	report(queue.StatusDownloading, 100)
	return queue.Result{Filename: item.Title + ".flac", Metadata: map[string]string{"bytes": "42"}}, nil
}

type harness struct {
	cfg     *config.Config
	daemon  *daemon.Daemon
	queue   *queue.Manager
	router  *endpoints.Router
	history *history.Store
	state   *statefile.Store
	catalog *fakeCatalog
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, testsupport.WithAPIBind(""))
}

func newHarness(t *testing.T, cfg *config.Config, downloader queue.Downloader, opts ...queue.Option) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	if downloader == nil {
		downloader = instantDownloader{}
	}
	router := endpoints.NewRouter([]endpoints.Endpoint{
		{Name: "primary", URL: "https://primary.example", Priority: 1},
		{Name: "backup", URL: "https://backup.example", Priority: 2},
	})
	ledger, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	state := statefile.New(cfg.StatePath(), router, nil)
	recorder := daemon.NewRecorder(ledger, nil, nil)
	opts = append([]queue.Option{queue.WithPersister(state), queue.WithObserver(recorder)}, opts...)
	mgr := queue.NewManager(downloader, opts...)
	catalog := &fakeCatalog{
		albums:  map[int64][]tidal.Track{},
		artists: map[int64]tidal.ArtistPage{},
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Queue:     mgr,
		Catalog:   catalog,
		Router:    router,
		History:   ledger,
		State:     state,
		SessionID: "session-1",
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &harness{cfg: cfg, daemon: d, queue: mgr, router: router, history: ledger, state: state, catalog: catalog}
}

func (h *harness) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.daemon.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	testsupport.WriteText(t, path, content)
}
