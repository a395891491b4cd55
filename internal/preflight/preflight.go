package preflight

import (
	"context"

	"tideway/internal/config"
)

// MinFreeBytes is the free space below which the download directory check fails.
const MinFreeBytes = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Required bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir)),
		required(CheckDirectoryAccess("State directory", cfg.Paths.StateDir)),
		CheckFreeSpace("Download free space", cfg.Paths.DownloadDir, MinFreeBytes),
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// Blocking returns the failed checks that must pass before the daemon starts.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func required(r Result) Result {
	r.Required = true
	return r
}
