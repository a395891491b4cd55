package config

const (
	defaultDownloadDir          = "~/Music/tideway"
	defaultStateDir             = "~/.local/share/tideway"
	defaultLogDir               = "~/.local/share/tideway/logs"
	defaultEndpointsFileName    = "api_endpoints.json"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultMaxConcurrent        = 3
	defaultQuality              = "LOSSLESS"
	defaultChunkSizeKiB         = 64
	defaultStreamTimeout        = 600
	defaultStreamHeaderTimeout  = 30
	defaultMetadataTimeout      = 10
	defaultRateLimitBackoff     = 2
	defaultUserAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Downloads: Downloads{
			MaxConcurrent:       defaultMaxConcurrent,
			DefaultQuality:      defaultQuality,
			ChunkSizeKiB:        defaultChunkSizeKiB,
			StreamTimeout:       defaultStreamTimeout,
			StreamHeaderTimeout: defaultStreamHeaderTimeout,
		},
		Upstream: Upstream{
			MetadataTimeout:  defaultMetadataTimeout,
			RateLimitBackoff: defaultRateLimitBackoff,
			UserAgent:        defaultUserAgent,
		},
		Notifications: Notifications{
			RequestTimeout:    defaultNotifyRequestTimeout,
			DownloadCompleted: true,
			DownloadFailed:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
