package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir   string `toml:"download_dir"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	EndpointsFile string `toml:"endpoints_file"`
	APIBind       string `toml:"api_bind"`
	APIToken      string `toml:"api_token"`
}

// Downloads contains queue and transfer settings.
type Downloads struct {
	MaxConcurrent       int    `toml:"max_concurrent"`
	DefaultQuality      string `toml:"default_quality"`
	ChunkSizeKiB        int    `toml:"chunk_size_kib"`
	StreamTimeout       int    `toml:"stream_timeout"`
	StreamHeaderTimeout int    `toml:"stream_header_timeout"`
}

// Upstream contains settings for the mirror API client.
type Upstream struct {
	MetadataTimeout  int    `toml:"metadata_timeout"`
	RateLimitBackoff int    `toml:"rate_limit_backoff"`
	UserAgent        string `toml:"user_agent"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	DownloadCompleted bool   `toml:"download_completed"`
	DownloadFailed    bool   `toml:"download_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Tideway.
//
// Configuration sections by subsystem:
//   - Paths: download/state/log directories, endpoint file, API bind address
//   - Downloads: concurrency cap, default quality, transfer timeouts
//   - Upstream: mirror request timeout, rate-limit backoff, user agent
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Downloads     Downloads     `toml:"downloads"`
	Upstream      Upstream      `toml:"upstream"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tideway/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tideway.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StatePath is the queue snapshot written after every queue mutation.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, "queue_state.json")
}

// HistoryPath is the SQLite download ledger.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "tidewayd.lock")
}

// PIDPath records the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "tidewayd.pid")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "tideway.log")
}

// MetadataTimeout returns the per-request timeout for mirror API calls.
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Upstream.MetadataTimeout) * time.Second
}

// RateLimitBackoff returns the pause applied after a mirror answers 429.
func (c *Config) RateLimitBackoff() time.Duration {
	return time.Duration(c.Upstream.RateLimitBackoff) * time.Second
}

// StreamTimeout bounds a whole stream transfer.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.Downloads.StreamTimeout) * time.Second
}

// StreamHeaderTimeout bounds the wait for stream response headers.
func (c *Config) StreamHeaderTimeout() time.Duration {
	return time.Duration(c.Downloads.StreamHeaderTimeout) * time.Second
}

// ChunkSize returns the transfer chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Downloads.ChunkSizeKiB * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
