package fileutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxNameBytes keeps generated names under common 255-byte filesystem limits
// with room for an extension and a ".part" suffix.
const maxNameBytes = 200

var fileNameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeFilename makes name safe to use as a single path segment. Reserved
// characters become underscores, control characters are dropped, the result is
// NFC-normalized and truncated on a rune boundary. Empty results become "untitled".
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = fileNameReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	name = strings.TrimSpace(name)

	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimSpace(name[:cut])
	}
	if name == "" {
		return "untitled"
	}
	return name
}

// TrackFilename returns the sanitized "Artist - Title" stem used for downloads.
func TrackFilename(artist, title string) string {
	artist = strings.TrimSpace(artist)
	title = strings.TrimSpace(title)
	switch {
	case artist == "" && title == "":
		return SanitizeFilename("")
	case artist == "":
		return SanitizeFilename(title)
	case title == "":
		return SanitizeFilename(artist)
	}
	return SanitizeFilename(artist + " - " + title)
}
