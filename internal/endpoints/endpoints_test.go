package endpoints_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tideway/internal/endpoints"
	"tideway/internal/logging"
)

func names(list []endpoints.Endpoint) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Name)
	}
	return out
}

func TestDefaults(t *testing.T) {
	defaults := endpoints.Defaults()
	if len(defaults) != 12 {
		t.Fatalf("expected 12 default mirrors, got %d", len(defaults))
	}
	if defaults[0].URL != "https://kraken.squid.wtf" || defaults[0].Priority != 1 {
		t.Fatalf("unexpected first default: %+v", defaults[0])
	}
	if defaults[len(defaults)-1].URL != "https://wolf.qqdl.site" || defaults[len(defaults)-1].Priority != 2 {
		t.Fatalf("unexpected last default: %+v", defaults[len(defaults)-1])
	}
}

func TestLoadMissingFileMaterializesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_endpoints.json")

	list := endpoints.Load(path, logging.NewNop())
	if len(list) != len(endpoints.Defaults()) {
		t.Fatalf("expected defaults, got %d entries", len(list))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected defaults to be written: %v", err)
	}
	if !strings.Contains(string(data), `"last_updated"`) || !strings.Contains(string(data), "kraken.squid.wtf") {
		t.Fatalf("unexpected file content: %s", data)
	}

	reloaded := endpoints.Load(path, logging.NewNop())
	if strings.Join(names(reloaded), ",") != strings.Join(names(list), ",") {
		t.Fatalf("reload mismatch: %v vs %v", names(reloaded), names(list))
	}
}

func TestLoadCustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_endpoints.json")
	content := `{"endpoints":[
		{"name":"beta","url":"https://beta.example/","priority":2},
		{"name":"alpha","url":"https://alpha.example"},
		{"name":"","url":"https://nameless.example","priority":1},
		{"name":"beta","url":"https://dup.example","priority":0}
	],"last_updated":1700000000.5}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	list := endpoints.Load(path, logging.NewNop())
	if len(list) != 2 {
		t.Fatalf("expected 2 usable entries, got %+v", list)
	}
	if list[0].URL != "https://beta.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", list[0].URL)
	}
	if list[1].Priority != endpoints.DefaultPriority {
		t.Fatalf("expected missing priority to default, got %d", list[1].Priority)
	}
}

func TestLoadCorruptFileFallsBackWithoutOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_endpoints.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	list := endpoints.Load(path, logging.NewNop())
	if len(list) != len(endpoints.Defaults()) {
		t.Fatalf("expected defaults, got %d", len(list))
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Fatalf("expected corrupt file to be left untouched, got %q", data)
	}
}

func TestCandidatesOrderByPriorityThenName(t *testing.T) {
	router := endpoints.NewRouter([]endpoints.Endpoint{
		{Name: "zulu", URL: "https://z", Priority: 1},
		{Name: "bravo", URL: "https://b", Priority: 2},
		{Name: "alpha", URL: "https://a", Priority: 2},
		{Name: "echo", URL: "https://e", Priority: 1},
	})

	got := strings.Join(names(router.Candidates("search_tracks")), ",")
	if got != "echo,zulu,alpha,bravo" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestRecordSuccessMovesEndpointFirstPerOperation(t *testing.T) {
	list := []endpoints.Endpoint{
		{Name: "a", URL: "https://a", Priority: 1},
		{Name: "b", URL: "https://b", Priority: 1},
		{Name: "c", URL: "https://c", Priority: 2},
	}
	router := endpoints.NewRouter(list)

	router.RecordSuccess("get_track", list[2])

	if got := strings.Join(names(router.Candidates("get_track")), ","); got != "c,a,b" {
		t.Fatalf("expected learned endpoint first, got %s", got)
	}
	if got := strings.Join(names(router.Candidates("search_tracks")), ","); got != "a,b,c" {
		t.Fatalf("expected other operations unaffected, got %s", got)
	}
	if got := strings.Join(names(router.Endpoints()), ","); got != "a,b,c" {
		t.Fatalf("expected base order unchanged, got %s", got)
	}

	history := router.History()
	record, ok := history["get_track"]
	if !ok || record.Name != "c" || record.URL != "https://c" || record.Timestamp.IsZero() {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestRestoreHistoryDropsUnknownMirrors(t *testing.T) {
	router := endpoints.NewRouter([]endpoints.Endpoint{
		{Name: "a", URL: "https://a", Priority: 1},
		{Name: "b", URL: "https://b", Priority: 1},
	})

	router.RestoreHistory(map[string]endpoints.SuccessRecord{
		"get_track":     {Name: "b", URL: "https://b", Timestamp: time.Now()},
		"search_albums": {Name: "gone", URL: "https://gone", Timestamp: time.Now()},
	})

	history := router.History()
	if len(history) != 1 {
		t.Fatalf("expected one restored record, got %+v", history)
	}
	if got := names(router.Candidates("get_track")); got[0] != "b" {
		t.Fatalf("expected restored preference, got %v", got)
	}
}

func TestEndpointHost(t *testing.T) {
	e := endpoints.Endpoint{Name: "kraken", URL: "https://kraken.squid.wtf"}
	if e.Host() != "kraken.squid.wtf" {
		t.Fatalf("unexpected host %q", e.Host())
	}
}
