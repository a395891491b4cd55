package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/goccy/go-json"

	"tideway/internal/api"
)

func TestEndpointsFromDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "endpoints", "--json")
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	var resp api.EndpointsResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(resp.Endpoints) != 2 || resp.Endpoints[0].Name != "primary" {
		t.Fatalf("unexpected endpoints: %+v", resp)
	}
}

func TestEndpointsOfflineReadsFileAndProbes(t *testing.T) {
	env := setupCLITestEnv(t)

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer mirror.Close()

	content := `{"endpoints":[{"name":"local","url":"` + mirror.URL + `","priority":1}]}`
	if err := os.WriteFile(env.cfg.Paths.EndpointsFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write endpoints: %v", err)
	}

	out, _, err := runCLI(t, nil, []string{"--api", closedAddr(t), "--config", env.configPath, "endpoints", "--probe"})
	if err != nil {
		t.Fatalf("endpoints --probe: %v", err)
	}
	requireContains(t, out, "Daemon not running; showing endpoints file")
	requireContains(t, out, "local")
	requireContains(t, out, "OK reachable")
}
