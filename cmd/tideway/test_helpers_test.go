package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tideway/internal/config"
	"tideway/internal/daemon"
	"tideway/internal/endpoints"
	"tideway/internal/history"
	"tideway/internal/queue"
	"tideway/internal/statefile"
	"tideway/internal/testsupport"
	"tideway/internal/tidal"
)

type stubCatalog struct {
	tracks  []tidal.Track
	albums  map[int64][]tidal.Track
	artists map[int64]tidal.ArtistPage
}

func (c *stubCatalog) SearchTracks(context.Context, string) ([]tidal.Track, bool) {
	return c.tracks, len(c.tracks) > 0
}

func (c *stubCatalog) SearchAlbums(context.Context, string) ([]tidal.Album, bool) {
	return nil, false
}

func (c *stubCatalog) SearchArtists(context.Context, string) ([]tidal.Artist, bool) {
	return nil, false
}

func (c *stubCatalog) AlbumTracks(_ context.Context, id int64) ([]tidal.Track, bool) {
	tracks, ok := c.albums[id]
	return tracks, ok
}

func (c *stubCatalog) GetArtist(_ context.Context, id int64) (tidal.ArtistPage, bool) {
	page, ok := c.artists[id]
	return page, ok
}

func (c *stubCatalog) ResolveStream(_ context.Context, id int64, quality string) (tidal.Stream, error) {
	return tidal.Stream{
		URL:      fmt.Sprintf("https://cdn.example/%d.flac", id),
		Quality:  quality,
		Endpoint: endpoints.Endpoint{Name: "primary", URL: "https://primary.example", Priority: 1},
	}, nil
}

type idleDownloader struct{}

func (idleDownloader) Download(ctx context.Context, _ queue.Item, _ queue.ProgressFunc) (queue.Result, error) {
	<-ctx.Done()
	return queue.Result{}, ctx.Err()
}

type cliTestEnv struct {
	cfg        *config.Config
	queue      *queue.Manager
	history    *history.Store
	catalog    *stubCatalog
	configPath string
	apiAddr    string
}

// setupCLITestEnv serves a daemon API whose queue never dispatches, so
// queued items stay put between commands.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("TIDEWAY_API_TOKEN", "")

	cfg := testsupport.NewConfig(t)

	router := endpoints.NewRouter([]endpoints.Endpoint{
		{Name: "primary", URL: "https://primary.example", Priority: 1},
		{Name: "backup", URL: "https://backup.example", Priority: 2},
	})
	ledger, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	state := statefile.New(cfg.StatePath(), router, nil)
	mgr := queue.NewManager(idleDownloader{}, queue.WithPersister(state))
	catalog := &stubCatalog{
		albums:  map[int64][]tidal.Track{},
		artists: map[int64]tidal.ArtistPage{},
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Queue:   mgr,
		Catalog: catalog,
		Router:  router,
		History: ledger,
		State:   state,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		queue:      mgr,
		history:    ledger,
		catalog:    catalog,
		configPath: configPath,
		apiAddr:    srv.Listener.Addr().String(),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, nil, append([]string{"--api", e.apiAddr, "--config", e.configPath}, args...))
	return out, err
}

func runCLI(t *testing.T, stdin io.Reader, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndownload_dir = %q\nstate_dir = %q\nlog_dir = %q\nendpoints_file = %q\napi_bind = %q\n",
		cfg.Paths.DownloadDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.EndpointsFile, cfg.Paths.APIBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// closedAddr returns an address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}
