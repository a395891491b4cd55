package main

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"tideway/internal/api"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

func TestQueueAddListRemove(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "queue", "add", "101", "--title", "Blue in Green", "--artist", "Miles Davis", "-q", "hi_res")
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued 1 track(s)")

	out, err = env.run(t, "queue", "add", "101", "--title", "Blue in Green", "--artist", "Miles Davis")
	if err != nil {
		t.Fatalf("queue add duplicate: %v", err)
	}
	requireContains(t, out, "skipped 1 already known")

	out, err = env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queued")
	requireContains(t, out, "Blue in Green")
	requireContains(t, out, "HI_RES")

	out, err = env.run(t, "queue", "list", "--json")
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var state api.QueueState
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode list json: %v\n%s", err, out)
	}
	if len(state.Queue) != 1 || state.Queue[0].Quality != queue.QualityHiRes {
		t.Fatalf("unexpected queue state: %+v", state)
	}

	out, err = env.run(t, "queue", "remove", "101", "202")
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Track 101 removed")
	requireContains(t, out, "Track 202 not queued")

	out, err = env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueAddValidation(t *testing.T) {
	env := setupCLITestEnv(t)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing metadata", []string{"queue", "add", "5"}, "--title and --artist are required"},
		{"no source", []string{"queue", "add"}, "provide a track id"},
		{"bad id", []string{"queue", "add", "abc", "--title", "x", "--artist", "y"}, "invalid track id"},
		{"bad quality", []string{"queue", "add", "5", "--title", "x", "--artist", "y", "-q", "ultra"}, "unknown quality"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.run(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestQueueAddFromStdin(t *testing.T) {
	env := setupCLITestEnv(t)

	payload := `[{"track_id":1,"title":"One","artist":"A"},{"track_id":2,"title":"Two","artist":"B","quality":"LOW"}]`
	out, _, err := runCLI(t, strings.NewReader(payload), []string{
		"--api", env.apiAddr, "--config", env.configPath, "queue", "add", "--file", "-", "--quality", "HIGH",
	})
	if err != nil {
		t.Fatalf("queue add --file: %v", err)
	}
	requireContains(t, out, "Queued 2 track(s)")

	snap := env.queue.State()
	if len(snap.Queue) != 2 {
		t.Fatalf("expected two queued items, got %+v", snap.Queue)
	}
	if snap.Queue[0].Quality != queue.QualityHigh || snap.Queue[1].Quality != queue.QualityLow {
		t.Fatalf("expected flag quality only where unset, got %s and %s", snap.Queue[0].Quality, snap.Queue[1].Quality)
	}
}

func TestQueueAddAlbum(t *testing.T) {
	env := setupCLITestEnv(t)
	env.catalog.albums[9] = []tidal.Track{
		{ID: 91, Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue"},
		{ID: 92, Title: "Freddie Freeloader", Artist: "Miles Davis", Album: "Kind of Blue"},
	}

	out, err := env.run(t, "queue", "add", "--album-id", "9")
	if err != nil {
		t.Fatalf("queue add --album-id: %v", err)
	}
	requireContains(t, out, "Queued 2 track(s)")
	if got := env.queue.State().Queue; len(got) != 2 || got[1].Album != "Kind of Blue" {
		t.Fatalf("unexpected queue: %+v", got)
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "No failed downloads to retry")

	out, err = env.run(t, "queue", "retry", "7")
	if err != nil {
		t.Fatalf("queue retry 7: %v", err)
	}
	requireContains(t, out, "Track 7 is not in the failed list")

	env.queue.AddMany([]queue.Item{{TrackID: 1, Title: "One", Artist: "A"}, {TrackID: 2, Title: "Two", Artist: "B"}})
	out, err = env.run(t, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 2 queued track(s)")

	out, err = env.run(t, "queue", "clear", "--failed")
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Cleared 0 failed record(s)")

	if _, err := env.run(t, "queue", "clear", "--failed", "--completed"); err == nil {
		t.Fatal("expected mutually exclusive flags to fail")
	}
}

func TestQueueProgressEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "queue", "progress")
	if err != nil {
		t.Fatalf("queue progress: %v", err)
	}
	requireContains(t, out, "No active downloads")
}

func TestQueueCommandsReportUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	addr := closedAddr(t)

	_, _, err := runCLI(t, nil, []string{"--api", addr, "--config", env.configPath, "queue", "list"})
	if err == nil {
		t.Fatal("expected error for unreachable daemon")
	}
	if !strings.Contains(err.Error(), "tideway start") || !strings.Contains(err.Error(), addr) {
		t.Fatalf("expected start hint, got %v", err)
	}
}
