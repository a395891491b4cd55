package endpoints

import (
	"net/url"
	"strings"
	"time"
)

// DefaultPriority applies to entries in the endpoints file that omit a priority.
const DefaultPriority = 999

// Endpoint is one mirror of the upstream API. Lower Priority is preferred.
type Endpoint struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// Host returns the host portion of the endpoint URL, or the raw URL when it
// cannot be parsed.
func (e Endpoint) Host() string {
	parsed, err := url.Parse(e.URL)
	if err != nil || parsed.Host == "" {
		return e.URL
	}
	return parsed.Host
}

// SuccessRecord notes the last endpoint that answered an operation with HTTP 200.
type SuccessRecord struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Defaults returns the built-in mirror list used when no endpoints file is available.
func Defaults() []Endpoint {
	primary := []string{"kraken", "triton", "zeus", "aether", "phoenix", "shiva", "chaos"}
	secondary := []string{"hund", "katze", "maus", "vogel", "wolf"}

	list := make([]Endpoint, 0, len(primary)+len(secondary))
	for _, name := range primary {
		list = append(list, Endpoint{Name: name, URL: "https://" + name + ".squid.wtf", Priority: 1})
	}
	for _, name := range secondary {
		list = append(list, Endpoint{Name: name, URL: "https://" + name + ".qqdl.site", Priority: 2})
	}
	return list
}

func normalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
