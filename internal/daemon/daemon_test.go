package daemon_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"tideway/internal/api"
	"tideway/internal/daemon"
	"tideway/internal/history"
	"tideway/internal/notifications"
	"tideway/internal/queue"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := h.daemon.Status()
	if !status.Running || status.StartedAt.IsZero() {
		t.Fatalf("expected running status, got %+v", status)
	}
	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	h.daemon.Stop()
	if h.daemon.Status().Running {
		t.Fatal("expected daemon to report stopped")
	}
	h.daemon.Stop()
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testConfig(t)
	first := newHarness(t, cfg, nil)
	second := newHarness(t, cfg, nil)
	ctx := context.Background()

	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.daemon.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	first.daemon.Stop()
	if err := second.daemon.Start(ctx); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
	second.daemon.Stop()
}

func TestDaemonRestoresStateAndRecordsOutcomes(t *testing.T) {
	cfg := testConfig(t)

	seed := newHarness(t, cfg, nil)
	backup := seed.router.Endpoints()[1]
	seed.router.RecordSuccess("track", backup)
	seed.queue.AddMany([]queue.Item{
		{TrackID: 1, Title: "One", Artist: "A"},
		{TrackID: 2, Title: "Two", Artist: "B"},
	})
	if err := seed.daemon.Close(); err != nil {
		t.Fatalf("Close seed: %v", err)
	}

	h := newHarness(t, cfg, nil)
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	candidates := h.router.Candidates("track")
	if candidates[0].Name != backup.Name {
		t.Fatalf("expected learned endpoint first, got %s", candidates[0].Name)
	}

	waitFor(t, "restored items to complete", func() bool {
		return len(h.queue.State().Completed) == 2
	})
	waitFor(t, "ledger entries", func() bool {
		entry, found, err := h.history.Get(context.Background(), 2)
		return err == nil && found && entry.Status == history.StatusCompleted
	})

	entry, _, _ := h.history.Get(context.Background(), 1)
	if entry.Filename != "One.flac" || entry.Bytes != 42 || entry.Artist != "A" {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}

	state, err := h.daemon.DownloadState(context.Background(), 1)
	if err != nil {
		t.Fatalf("DownloadState: %v", err)
	}
	if state.State != api.StateCompleted || state.History == nil {
		t.Fatalf("unexpected download state: %+v", state)
	}
	h.daemon.Stop()

	reloaded := h.state.Load()
	if len(reloaded.Completed) != 2 || len(reloaded.Queue) != 0 {
		t.Fatalf("unexpected persisted state: %+v", reloaded)
	}
	if reloaded.EndpointHistory["track"].Name != backup.Name {
		t.Fatalf("expected endpoint history persisted, got %+v", reloaded.EndpointHistory)
	}
}

func TestDaemonServeListensUntilCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	cfg := testConfig(t)
	cfg.Paths.APIBind = addr
	h := newHarness(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Serve(ctx) }()

	waitFor(t, "api server", func() bool {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type recordingLedger struct {
	entries []history.Entry
	err     error
}

func (l *recordingLedger) Record(_ context.Context, entry history.Entry) error {
	l.entries = append(l.entries, entry)
	return l.err
}

type publishedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	events []publishedEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.events = append(n.events, publishedEvent{event: event, payload: payload})
	return n.err
}

func TestRecorderWritesLedgerAndNotifies(t *testing.T) {
	ledger := &recordingLedger{}
	notifier := &recordingNotifier{}
	rec := daemon.NewRecorder(ledger, notifier, nil)
	now := time.Now()

	rec.ItemCompleted(queue.CompletedRecord{
		Item:     queue.Item{TrackID: 1, Title: "Song", Artist: "Band", Quality: queue.QualityHiRes},
		Filename: "Band - Song.flac",
		Metadata: map[string]string{
			"final_path":    "/music/Band - Song.flac",
			"bytes":         "1024",
			"endpoint_host": "mirror.example",
		},
		CompletedAt: now,
	})
	rec.ItemFailed(queue.FailedRecord{
		Item:     queue.Item{TrackID: 2, Title: "Other", Artist: "Band"},
		Error:    "stream request failed: HTTP 403",
		FailedAt: now,
	})

	if len(ledger.entries) != 2 {
		t.Fatalf("expected two ledger entries, got %d", len(ledger.entries))
	}
	done := ledger.entries[0]
	if done.Status != history.StatusCompleted || done.FinalPath != "/music/Band - Song.flac" ||
		done.Bytes != 1024 || done.EndpointHost != "mirror.example" || done.Quality != "HI_RES" {
		t.Fatalf("unexpected completed entry: %+v", done)
	}
	failed := ledger.entries[1]
	if failed.Status != history.StatusFailed || failed.Error != "stream request failed: HTTP 403" {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}

	if len(notifier.events) != 2 {
		t.Fatalf("expected two notifications, got %d", len(notifier.events))
	}
	if notifier.events[0].event != notifications.EventDownloadCompleted || notifier.events[0].payload["filename"] != "Band - Song.flac" {
		t.Fatalf("unexpected completion notification: %+v", notifier.events[0])
	}
	if notifier.events[1].event != notifications.EventDownloadFailed || notifier.events[1].payload["error"] != "stream request failed: HTTP 403" {
		t.Fatalf("unexpected failure notification: %+v", notifier.events[1])
	}
}

func TestRecorderToleratesFailures(t *testing.T) {
	ledger := &recordingLedger{err: errors.New("disk full")}
	notifier := &recordingNotifier{err: errors.New("offline")}
	rec := daemon.NewRecorder(ledger, notifier, nil)

	rec.ItemFailed(queue.FailedRecord{Item: queue.Item{TrackID: 3}, Error: "boom"})
	if len(ledger.entries) != 1 || len(notifier.events) != 1 {
		t.Fatalf("expected both sinks to be attempted, got %d ledger, %d notify", len(ledger.entries), len(notifier.events))
	}
}

func TestDaemonRejectsMissingDependencies(t *testing.T) {
	cfg := testConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
