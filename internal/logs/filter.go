package logs

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// Filter selects log lines. Zero values match everything.
type Filter struct {
	TrackID   int64
	Component string
	MinLevel  string
}

// Empty reports whether f matches every line.
func (f Filter) Empty() bool {
	return f.TrackID == 0 && f.Component == "" && f.MinLevel == ""
}

// Match reports whether line passes f.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	fields := parseLine(line)
	if f.TrackID != 0 && fields.trackID != strconv.FormatInt(f.TrackID, 10) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(fields.component, f.Component) {
		return false
	}
	if min, ok := levelRank[strings.ToLower(f.MinLevel)]; ok {
		rank, known := levelRank[fields.level]
		if !known || rank < min {
			return false
		}
	}
	return true
}

type lineFields struct {
	level     string
	component string
	trackID   string
}

func parseLine(line string) lineFields {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		return lineFields{
			level:     strings.ToLower(parsed.Get("level").String()),
			component: parsed.Get("component").String(),
			trackID:   parsed.Get("track_id").Raw,
		}
	}

	// Console lines: "<ts> <LEVEL> <component>: <message> key=value ..."
	parts := strings.SplitN(trimmed, " ", 4)
	var fields lineFields
	if len(parts) >= 2 {
		fields.level = strings.ToLower(parts[1])
	}
	if len(parts) >= 3 && strings.HasSuffix(parts[2], ":") {
		fields.component = strings.TrimSuffix(parts[2], ":")
	}
	for _, token := range strings.Fields(trimmed) {
		if value, ok := strings.CutPrefix(token, "track_id="); ok {
			fields.trackID = value
			break
		}
	}
	return fields
}
