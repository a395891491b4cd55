package endpoints

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"tideway/internal/fileutil"
	"tideway/internal/logging"
)

type fileEntry struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority *int   `json:"priority,omitempty"`
}

type fileFormat struct {
	Endpoints   []fileEntry `json:"endpoints"`
	LastUpdated float64     `json:"last_updated"`
}

// Load reads the endpoints file at path. A missing file yields the defaults,
// which are then written to path. An unreadable, corrupt, or empty file also
// yields the defaults but is left untouched so operator edits are not lost.
func Load(path string, logger *slog.Logger) []Endpoint {
	logger = logging.NewComponentLogger(logger, "endpoints")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			defaults := Defaults()
			if saveErr := Save(path, defaults); saveErr != nil {
				logging.WarnWithContext(logger, "could not materialize default endpoints", "endpoints_save_failed",
					logging.String("path", path),
					logging.Error(saveErr),
					logging.Hint("check state_dir permissions"),
					logging.Impact("built-in mirrors are used this run"),
				)
			} else {
				logger.Info("wrote default endpoints file", logging.String("path", path), logging.Int("count", len(defaults)))
			}
			return defaults
		}
		logging.WarnWithContext(logger, "endpoints file unreadable; using built-in mirrors", "endpoints_read_failed",
			logging.String("path", path),
			logging.Error(err),
		)
		return Defaults()
	}

	parsed, err := decode(data)
	if err != nil {
		logging.WarnWithContext(logger, "endpoints file invalid; using built-in mirrors", "endpoints_parse_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.Hint("fix or delete the endpoints file"),
		)
		return Defaults()
	}
	logger.Debug("loaded endpoints", logging.String("path", path), logging.Int("count", len(parsed)))
	return parsed
}

func decode(data []byte) ([]Endpoint, error) {
	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Endpoints))
	list := make([]Endpoint, 0, len(file.Endpoints))
	for _, entry := range file.Endpoints {
		name := strings.TrimSpace(entry.Name)
		address := normalizeURL(entry.URL)
		if name == "" || address == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		list = append(list, Endpoint{
			Name:     name,
			URL:      address,
			Priority: lo.FromPtrOr(entry.Priority, DefaultPriority),
		})
	}
	if len(list) == 0 {
		return nil, errors.New("decode endpoints: no usable entries")
	}
	return list, nil
}

// Save writes endpoints to path in the endpoints file format.
func Save(path string, list []Endpoint) error {
	file := fileFormat{
		Endpoints: lo.Map(list, func(e Endpoint, _ int) fileEntry {
			return fileEntry{Name: e.Name, URL: e.URL, Priority: lo.ToPtr(e.Priority)}
		}),
		LastUpdated: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode endpoints: %w", err)
	}
	return fileutil.AtomicWriteFile(path, data, 0o644)
}
