package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"tideway/internal/endpoints"
)

const probeTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least min bytes available.
func CheckFreeSpace(name, path string, min uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if free < min {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, humanize.IBytes(min))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckMirror reports whether a mirror answers HTTP at all. Any status below
// 500 counts as reachable; the API client decides per request whether the
// mirror is usable.
func CheckMirror(ctx context.Context, ep endpoints.Endpoint) Result {
	return probe(ctx, ep.Name, ep.URL+"/", http.MethodGet)
}

// CheckMirrors probes every mirror concurrently. Results keep the input order.
func CheckMirrors(ctx context.Context, list []endpoints.Endpoint) []Result {
	results := make([]Result, len(list))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for i, ep := range list {
		group.Go(func() error {
			results[i] = CheckMirror(groupCtx, ep)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// CheckNtfy verifies the ntfy server is reachable without publishing a message.
func CheckNtfy(ctx context.Context, topic string) Result {
	r := probe(ctx, "Notifications", strings.TrimSpace(topic), http.MethodHead)
	r.Name = "Notifications"
	return r
}

func probe(ctx context.Context, name, target, method string) Result {
	if strings.TrimSpace(target) == "" || target == "/" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, method, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	started := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	resp.Body.Close()

	elapsed := time.Since(started).Round(time.Millisecond)
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d in %s)", resp.StatusCode, elapsed)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns lookup failed"
	}
	return err.Error()
}
