package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownloads()
	c.normalizeUpstream()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.EndpointsFile) == "" {
		c.Paths.EndpointsFile = filepath.Join(c.Paths.StateDir, defaultEndpointsFileName)
	}
	if c.Paths.EndpointsFile, err = expandPath(c.Paths.EndpointsFile); err != nil {
		return fmt.Errorf("paths.endpoints_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TIDEWAY_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDownloads() {
	c.Downloads.DefaultQuality = strings.ToUpper(strings.TrimSpace(c.Downloads.DefaultQuality))
	if c.Downloads.DefaultQuality == "" {
		c.Downloads.DefaultQuality = defaultQuality
	}
	if c.Downloads.ChunkSizeKiB <= 0 {
		c.Downloads.ChunkSizeKiB = defaultChunkSizeKiB
	}
	if c.Downloads.StreamTimeout <= 0 {
		c.Downloads.StreamTimeout = defaultStreamTimeout
	}
	if c.Downloads.StreamHeaderTimeout <= 0 {
		c.Downloads.StreamHeaderTimeout = defaultStreamHeaderTimeout
	}
}

func (c *Config) normalizeUpstream() {
	if c.Upstream.MetadataTimeout <= 0 {
		c.Upstream.MetadataTimeout = defaultMetadataTimeout
	}
	if c.Upstream.RateLimitBackoff < 0 {
		c.Upstream.RateLimitBackoff = defaultRateLimitBackoff
	}
	c.Upstream.UserAgent = strings.TrimSpace(c.Upstream.UserAgent)
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TIDEWAY_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
