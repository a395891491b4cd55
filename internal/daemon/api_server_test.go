package daemon_test

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tideway/internal/api"
	"tideway/internal/endpoints"
	"tideway/internal/history"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

func TestAPIQueueLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodPost, "/api/queue", `[{"track_id":1,"title":"One","artist":"A"},{"track_id":2,"title":"Two","artist":"B","quality":"hi_res"}]`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[api.AddResponse](t, rec); got.Added != 2 || got.Skipped != 0 {
		t.Fatalf("unexpected add result: %+v", got)
	}

	rec = h.do(t, http.MethodPost, "/api/queue", `{"track_id":1,"title":"One","artist":"A"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[api.AddResponse](t, rec); got.Added != 0 || got.Skipped != 1 {
		t.Fatalf("expected duplicate to be skipped, got %+v", got)
	}

	rec = h.do(t, http.MethodGet, "/api/queue", "")
	expectStatus(t, rec, http.StatusOK)
	state := decode[api.QueueState](t, rec)
	if len(state.Queue) != 2 || state.Queue[0].TrackID != 1 || state.Queue[1].TrackID != 2 {
		t.Fatalf("unexpected queue: %+v", state.Queue)
	}
	if state.Queue[0].Quality != queue.QualityLossless || state.Queue[1].Quality != queue.QualityHiRes {
		t.Fatalf("unexpected qualities: %q %q", state.Queue[0].Quality, state.Queue[1].Quality)
	}
	if state.Active == nil || state.Completed == nil || state.Failed == nil {
		t.Fatalf("expected empty collections to encode as arrays: %s", rec.Body.String())
	}

	rec = h.do(t, http.MethodDelete, "/api/queue/1", "")
	expectStatus(t, rec, http.StatusOK)
	if !decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected first remove to apply")
	}
	rec = h.do(t, http.MethodDelete, "/api/queue/1", "")
	if decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected second remove to be a no-op")
	}

	rec = h.do(t, http.MethodDelete, "/api/queue", "")
	if got := decode[api.CountResponse](t, rec); got.Count != 1 {
		t.Fatalf("expected one cleared item, got %d", got.Count)
	}
}

func TestAPIQueueAddEnvelopeAndDefaultQuality(t *testing.T) {
	cfg := testConfig(t)
	cfg.Downloads.DefaultQuality = "HIGH"
	h := newHarness(t, cfg, nil)

	rec := h.do(t, http.MethodPost, "/api/queue", `{"items":[{"track_id":9,"title":"Nine","artist":"C"}]}`)
	expectStatus(t, rec, http.StatusOK)
	snap := h.queue.State()
	if len(snap.Queue) != 1 || snap.Queue[0].Quality != queue.QualityHigh {
		t.Fatalf("expected configured default quality, got %+v", snap.Queue)
	}
}

func TestAPIQueueAddRejectsBadPayloads(t *testing.T) {
	h := newHarness(t, nil, nil)
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "{oops"},
		{"wrong shape", `{"title":"no id"}`},
		{"unknown quality", `[{"track_id":1,"title":"x","artist":"y","quality":"ULTRA"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/queue", tc.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if decode[api.ErrorResponse](t, rec).Error == "" {
				t.Fatal("expected error message")
			}
		})
	}
	if got := len(h.queue.State().Queue); got != 0 {
		t.Fatalf("rejected payloads must not enqueue, got %d items", got)
	}
}

func TestAPIRejectsInvalidIDsAndMethods(t *testing.T) {
	h := newHarness(t, nil, nil)

	expectStatus(t, h.do(t, http.MethodDelete, "/api/queue/abc", ""), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodGet, "/api/artist/1.5", ""), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPut, "/api/queue", ""), http.StatusMethodNotAllowed)
	expectStatus(t, h.do(t, http.MethodGet, "/api/nope", ""), http.StatusNotFound)
}

func TestAPIRetryAndClearTerminal(t *testing.T) {
	h := newHarness(t, nil, nil)
	now := time.Now()
	h.queue.Restore(queue.RestoreState{
		Completed: []queue.CompletedRecord{{Item: queue.Item{TrackID: 1}, Filename: "a.flac", CompletedAt: now}},
		Failed: []queue.FailedRecord{
			{Item: queue.Item{TrackID: 2}, Error: "boom", FailedAt: now},
			{Item: queue.Item{TrackID: 3}, Error: "boom", FailedAt: now},
		},
	})

	rec := h.do(t, http.MethodPost, "/api/queue/retry/3", "")
	if !decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected single retry to apply")
	}
	rec = h.do(t, http.MethodPost, "/api/queue/retry/3", "")
	if decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected retry of a queued item to be a no-op")
	}
	rec = h.do(t, http.MethodPost, "/api/queue/retry", "")
	if got := decode[api.CountResponse](t, rec).Count; got != 1 {
		t.Fatalf("expected one retried item, got %d", got)
	}
	rec = h.do(t, http.MethodDelete, "/api/completed", "")
	if got := decode[api.CountResponse](t, rec).Count; got != 1 {
		t.Fatalf("expected one cleared completed record, got %d", got)
	}
	rec = h.do(t, http.MethodDelete, "/api/failed", "")
	if got := decode[api.CountResponse](t, rec).Count; got != 0 {
		t.Fatalf("expected no failed records left, got %d", got)
	}

	snap := h.queue.State()
	if len(snap.Queue) != 2 || snap.Queue[0].TrackID != 3 || snap.Queue[1].TrackID != 2 {
		t.Fatalf("unexpected queue after retries: %+v", snap.Queue)
	}
}

func TestAPIProgressEmpty(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(t, http.MethodGet, "/api/progress", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"active":[]`) {
		t.Fatalf("expected empty active list, got %s", rec.Body.String())
	}
}

func TestAPISearch(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.catalog.tracks = []tidal.Track{{ID: 5, Title: "Feeling Good", Artist: "Nina Simone"}}

	rec := h.do(t, http.MethodGet, "/api/search/tracks?q=feeling", "")
	expectStatus(t, rec, http.StatusOK)
	tracks := decode[api.SearchTracksResponse](t, rec)
	if len(tracks.Items) != 1 || tracks.Items[0].ID != 5 {
		t.Fatalf("unexpected tracks: %+v", tracks.Items)
	}

	rec = h.do(t, http.MethodGet, "/api/search/albums?q=feeling", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items for absent results, got %s", rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/search/artists?q=nina", "")
	if got := decode[api.SearchArtistsResponse](t, rec); len(got.Items) != 1 || got.Items[0].Name != "Nina Simone" {
		t.Fatalf("unexpected artists: %+v", got.Items)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/search/tracks?q=%20", ""), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodGet, "/api/search/playlists?q=x", ""), http.StatusNotFound)
}

func TestAPIAlbumAndArtist(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.catalog.albums[10] = []tidal.Track{{ID: 1, Title: "Intro"}, {ID: 2, Title: "Outro"}}
	h.catalog.artists[7] = tidal.ArtistPage{
		Artist:    tidal.Artist{ID: 7, Name: "Nina Simone"},
		TopTracks: []tidal.Track{{ID: 5, Title: "Feeling Good"}},
	}

	rec := h.do(t, http.MethodGet, "/api/album/10/tracks", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[api.ItemsResponse[tidal.Track]](t, rec); len(got.Items) != 2 || got.Items[1].Title != "Outro" {
		t.Fatalf("unexpected album tracks: %+v", got.Items)
	}
	expectStatus(t, h.do(t, http.MethodGet, "/api/album/11/tracks", ""), http.StatusNotFound)

	rec = h.do(t, http.MethodGet, "/api/artist/7", "")
	expectStatus(t, rec, http.StatusOK)
	page := decode[tidal.ArtistPage](t, rec)
	if page.Artist.Name != "Nina Simone" || len(page.TopTracks) != 1 {
		t.Fatalf("unexpected artist page: %+v", page)
	}
	expectStatus(t, h.do(t, http.MethodGet, "/api/artist/8", ""), http.StatusNotFound)
}

func TestAPIStreamURL(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.catalog.stream = tidal.Stream{
		URL:      "https://cdn.example/5.flac",
		Endpoint: endpoints.Endpoint{Name: "primary", URL: "https://primary.example"},
	}

	rec := h.do(t, http.MethodGet, "/api/download/stream/5?quality=hi_res", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[api.StreamURLResponse](t, rec)
	if got.StreamURL != "https://cdn.example/5.flac" || got.TrackID != 5 || got.Endpoint != "primary" {
		t.Fatalf("unexpected stream response: %+v", got)
	}
	if h.catalog.lastQuality() != "HI_RES" {
		t.Fatalf("expected normalized quality, got %q", h.catalog.lastQuality())
	}

	h.do(t, http.MethodGet, "/api/download/stream/5", "")
	if h.catalog.lastQuality() != "LOSSLESS" {
		t.Fatalf("expected default quality, got %q", h.catalog.lastQuality())
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/download/stream/5?quality=ultra", ""), http.StatusBadRequest)

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("track 5: %w", tidal.ErrNoStreamURL), http.StatusNotFound},
		{fmt.Errorf("track 5 %w", tidal.ErrUnavailable), http.StatusBadGateway},
	}
	for _, tc := range cases {
		h.catalog.streamErr = tc.err
		rec := h.do(t, http.MethodGet, "/api/download/stream/5", "")
		expectStatus(t, rec, tc.want)
		if got := decode[api.ErrorResponse](t, rec).Error; got != tc.err.Error() {
			t.Fatalf("expected error %q, got %q", tc.err.Error(), got)
		}
	}
}

func TestAPIDownloadFileStaysInsideDownloadDir(t *testing.T) {
	h := newHarness(t, nil, nil)
	inside := filepath.Join(h.cfg.Paths.DownloadDir, "Artist - Song.flac")
	writeFile(t, inside, "flac-bytes")
	outside := filepath.Join(t.TempDir(), "secret.flac")
	writeFile(t, outside, "secret")

	now := time.Now()
	h.queue.Restore(queue.RestoreState{Completed: []queue.CompletedRecord{
		{Item: queue.Item{TrackID: 1}, Filename: "Artist - Song.flac", Metadata: map[string]string{"final_path": inside}, CompletedAt: now},
		{Item: queue.Item{TrackID: 2}, Filename: "../secret.flac", Metadata: map[string]string{"final_path": outside}, CompletedAt: now},
		{Item: queue.Item{TrackID: 3}, Filename: "missing.flac", CompletedAt: now},
	}})

	rec := h.do(t, http.MethodGet, "/api/download/file/1", "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "flac-bytes" {
		t.Fatalf("unexpected file body %q", rec.Body.String())
	}
	for _, target := range []string{"/api/download/file/2", "/api/download/file/3", "/api/download/file/4"} {
		expectStatus(t, h.do(t, http.MethodGet, target, ""), http.StatusNotFound)
	}
}

func TestAPIDownloadState(t *testing.T) {
	h := newHarness(t, nil, nil)
	now := time.Now()
	h.queue.Restore(queue.RestoreState{
		Queue:     []queue.Item{{TrackID: 1}},
		Completed: []queue.CompletedRecord{{Item: queue.Item{TrackID: 2}, Filename: "b.flac", CompletedAt: now}},
	})
	if err := h.history.Record(context.Background(), history.Entry{
		TrackID:   3,
		Status:    history.StatusFailed,
		Title:     "Gone",
		Error:     "HTTP 403",
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	cases := []struct {
		id       int64
		state    string
		progress int
		history  bool
	}{
		{1, api.StateQueued, 0, false},
		{2, api.StateCompleted, 100, false},
		{3, api.StateFailed, 0, true},
		{4, api.StateNotFound, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.state, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, fmt.Sprintf("/api/download/state/%d", tc.id), "")
			expectStatus(t, rec, http.StatusOK)
			got := decode[api.DownloadState](t, rec)
			if got.TrackID != tc.id || got.State != tc.state || got.Progress != tc.progress {
				t.Fatalf("unexpected state: %+v", got)
			}
			if (got.History != nil) != tc.history {
				t.Fatalf("expected history present=%v, got %+v", tc.history, got.History)
			}
		})
	}
}

func TestAPIEndpointsReportPreferences(t *testing.T) {
	h := newHarness(t, nil, nil)
	backup := h.router.Endpoints()[1]
	h.router.RecordSuccess("search", backup)
	h.router.RecordSuccess("track", backup)

	rec := h.do(t, http.MethodGet, "/api/endpoints", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[api.EndpointsResponse](t, rec)
	if len(got.Endpoints) != 2 || got.Endpoints[0].Name != "primary" {
		t.Fatalf("unexpected endpoints: %+v", got.Endpoints)
	}
	if len(got.Endpoints[0].PreferredFor) != 0 {
		t.Fatalf("primary should lead nothing, got %v", got.Endpoints[0].PreferredFor)
	}
	if pref := got.Endpoints[1].PreferredFor; len(pref) != 2 || pref[0] != "search" || pref[1] != "track" {
		t.Fatalf("unexpected backup preferences: %v", pref)
	}
}

func TestAPIStatus(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.queue.Add(queue.Item{TrackID: 1})

	rec := h.do(t, http.MethodGet, "/api/status", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[api.DaemonStatus](t, rec)
	if got.Running {
		t.Fatal("daemon was never started")
	}
	if got.SessionID != "session-1" || got.Endpoints != 2 || got.Queue.Queued != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.StatePath != h.cfg.StatePath() || got.HistoryPath != h.cfg.HistoryPath() {
		t.Fatalf("unexpected paths: %+v", got)
	}
}

func TestAPIAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIToken = "s3cret"
	h := newHarness(t, cfg, nil)

	expectStatus(t, h.do(t, http.MethodGet, "/api/health", ""), http.StatusOK)

	rec := h.do(t, http.MethodGet, "/api/status", "")
	expectStatus(t, rec, http.StatusUnauthorized)
	if got := decode[api.ErrorResponse](t, rec).Error; got != "unauthorized" {
		t.Fatalf("unexpected error %q", got)
	}
	expectStatus(t, h.do(t, http.MethodGet, "/api/status", "", "Authorization", "Bearer wrong"), http.StatusUnauthorized)
	expectStatus(t, h.do(t, http.MethodGet, "/api/status", "", "Authorization", "s3cret"), http.StatusUnauthorized)
	expectStatus(t, h.do(t, http.MethodGet, "/api/status", "", "Authorization", "Bearer s3cret"), http.StatusOK)
}

func TestAPIRequestID(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
	rec = h.do(t, http.MethodGet, "/api/health", "", "X-Request-ID", "abc-123")
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestAPINotifyTestWithoutTopic(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(t, http.MethodPost, "/api/notify/test", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[api.NotifyResponse](t, rec)
	if got.Sent || got.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notify response: %+v", got)
	}
}

func TestAPIHistoryAndForget(t *testing.T) {
	h := newHarness(t, nil, nil)
	base := time.Now().Add(-time.Hour)
	for i, id := range []int64{10, 11, 12} {
		if err := h.history.Record(context.Background(), history.Entry{
			TrackID:   id,
			Status:    history.StatusCompleted,
			Title:     fmt.Sprintf("Track %d", id),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	rec := h.do(t, http.MethodGet, "/api/history?limit=2", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[api.HistoryResponse](t, rec)
	if len(got.Items) != 2 || got.Items[0].TrackID != 12 || got.Items[1].TrackID != 11 {
		t.Fatalf("unexpected history: %+v", got.Items)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/history?limit=lots", ""), http.StatusBadRequest)

	rec = h.do(t, http.MethodDelete, "/api/download/state/12", "")
	expectStatus(t, rec, http.StatusOK)
	if !decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected forget to remove the ledger entry")
	}
	rec = h.do(t, http.MethodDelete, "/api/download/state/12", "")
	if decode[api.ResultResponse](t, rec).OK {
		t.Fatal("expected second forget to be a no-op")
	}

	rec = h.do(t, http.MethodGet, "/api/download/state/12", "")
	if state := decode[api.DownloadState](t, rec); state.State != api.StateNotFound || state.History != nil {
		t.Fatalf("expected forgotten track to be unknown, got %+v", state)
	}

	rec = h.do(t, http.MethodGet, "/api/history", "")
	if got := decode[api.HistoryResponse](t, rec); len(got.Items) != 2 {
		t.Fatalf("expected two remaining entries, got %+v", got.Items)
	}
}
