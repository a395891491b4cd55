package tidal

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var manifestURLPattern = regexp.MustCompile(`https?://[^\s"]+`)

// ExtractStreamURL returns a playable URL from a track response. The response
// may be one object or a list of candidate objects. A direct OriginalTrackUrl
// wins; otherwise the first base64 manifest is decoded and read as JSON
// {"urls":[..]}, falling back to the first http(s) URL in the decoded text.
func ExtractStreamURL(raw []byte) (string, bool) {
	root := unwrapVersioned(gjson.ParseBytes(raw))

	var entries []gjson.Result
	switch {
	case root.IsArray():
		entries = root.Array()
	case root.IsObject():
		entries = []gjson.Result{root}
	default:
		return "", false
	}

	for _, entry := range entries {
		if direct := entry.Get("OriginalTrackUrl"); entry.IsObject() && direct.Type == gjson.String && direct.String() != "" {
			return direct.String(), true
		}
	}

	for _, entry := range entries {
		manifest := entry.Get("manifest")
		if !entry.IsObject() || manifest.Type != gjson.String {
			continue
		}
		if url, ok := urlFromManifest(manifest.String()); ok {
			return url, true
		}
	}
	return "", false
}

func urlFromManifest(encoded string) (string, bool) {
	decoded, ok := decodeManifest(encoded)
	if !ok {
		return "", false
	}
	if gjson.Valid(decoded) {
		if first := gjson.Get(decoded, "urls.0"); first.Type == gjson.String && first.String() != "" {
			return first.String(), true
		}
	}
	if match := manifestURLPattern.FindString(decoded); match != "" {
		return match, true
	}
	return "", false
}

func decodeManifest(encoded string) (string, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", false
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding} {
		if data, err := enc.DecodeString(encoded); err == nil {
			return string(data), true
		}
	}
	return "", false
}
