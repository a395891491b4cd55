package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tideway/internal/daemonrun"
	"tideway/internal/fileutil"
	"tideway/internal/testsupport"
)

func TestRunStartsAndShutsDownCleanly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stale := filepath.Join(cfg.Paths.DownloadDir, ".Old - Song.flac.1.part")
	testsupport.WriteFile(t, stale, 64)
	testsupport.Age(t, stale, 24*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error", SkipPreflight: true})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !fileutil.Exists(cfg.PIDPath()) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !fileutil.Exists(cfg.PIDPath()) {
		t.Fatal("expected pid file while running")
	}
	for fileutil.Exists(stale) && time.Now().Before(deadline.Add(5*time.Second)) {
		time.Sleep(10 * time.Millisecond)
	}
	if fileutil.Exists(stale) {
		t.Fatal("expected stale partial download to be removed")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if fileutil.Exists(cfg.PIDPath()) {
		t.Fatal("expected pid file to be removed")
	}
	if !fileutil.Exists(cfg.Paths.EndpointsFile) {
		t.Fatal("expected default endpoints file to be materialized")
	}
	if !fileutil.Exists(cfg.StatePath()) {
		t.Fatal("expected final state snapshot")
	}
	if !fileutil.Exists(cfg.LogPath()) {
		t.Fatal("expected log file")
	}
}

func TestRunFailsPreflightOnUnwritableDownloadDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	cfg := testsupport.NewConfig(t)
	if err := os.Chmod(cfg.Paths.DownloadDir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(cfg.Paths.DownloadDir, 0o755) })

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "error"})
	if err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
}
