package api

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"tideway/internal/endpoints"
	"tideway/internal/queue"
)

// ErrInvalidRequest marks a malformed request payload.
var ErrInvalidRequest = errors.New("invalid request")

// FromSnapshot converts a queue snapshot into its wire form.
func FromSnapshot(snap queue.Snapshot) QueueState {
	return QueueState{
		Queue:     nonNil(snap.Queue),
		Active:    snap.ActiveInOrder(),
		Completed: nonNil(snap.Completed),
		Failed:    nonNil(snap.Failed),
		Settings:  snap.Settings,
	}
}

// CountsFromSnapshot summarizes snap.
func CountsFromSnapshot(snap queue.Snapshot) QueueCounts {
	return QueueCounts{
		Queued:        len(snap.Queue),
		Active:        len(snap.Active),
		Completed:     len(snap.Completed),
		Failed:        len(snap.Failed),
		MaxConcurrent: snap.Settings.MaxConcurrent,
	}
}

// FromActive converts live transfer views.
func FromActive(active []queue.ActiveItem) ProgressResponse {
	return ProgressResponse{Active: lo.Map(active, func(a queue.ActiveItem, _ int) ProgressEntry {
		return ProgressEntry{
			TrackID:   a.Item.TrackID,
			Title:     a.Item.Title,
			Artist:    a.Item.Artist,
			Progress:  a.Progress,
			Status:    a.Status,
			StartedAt: a.StartedAt,
		}
	})}
}

// FromEndpoints pairs each mirror with the operations it currently leads.
func FromEndpoints(list []endpoints.Endpoint, history map[string]endpoints.SuccessRecord) EndpointsResponse {
	preferred := make(map[string][]string)
	for op, record := range history {
		preferred[record.Name] = append(preferred[record.Name], op)
	}
	views := lo.Map(list, func(e endpoints.Endpoint, _ int) EndpointView {
		ops := preferred[e.Name]
		slices.Sort(ops)
		return EndpointView{Name: e.Name, URL: e.URL, Priority: e.Priority, PreferredFor: ops}
	})
	return EndpointsResponse{Endpoints: views}
}

// ToItem validates r and converts it to a queue item. An empty quality takes
// fallback.
func (r TrackRequest) ToItem(fallback queue.Quality) (queue.Item, error) {
	quality := fallback
	if r.Quality != "" {
		parsed, ok := queue.ParseQuality(r.Quality)
		if !ok {
			return queue.Item{}, fmt.Errorf("%w: unknown quality %q for track %d", ErrInvalidRequest, r.Quality, r.TrackID)
		}
		quality = parsed
	}
	return queue.Item{
		TrackID: r.TrackID,
		Title:   r.Title,
		Artist:  r.Artist,
		Album:   r.Album,
		Quality: quality,
	}, nil
}

// DecodeTrackRequests parses an enqueue body: a single track object, an
// array of them, or an {"items": [...]} envelope.
func DecodeTrackRequests(body []byte) ([]TrackRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}

	parsed := gjson.ParseBytes(body)
	var requests []TrackRequest
	switch {
	case parsed.IsArray():
		if err := json.Unmarshal(body, &requests); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	case parsed.Get("items").IsArray():
		var envelope AddRequest
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		requests = envelope.Items
	case parsed.IsObject() && parsed.Get("track_id").Exists():
		var single TrackRequest
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		requests = []TrackRequest{single}
	default:
		return nil, fmt.Errorf("%w: expected a track, a list of tracks, or {\"items\": [...]}", ErrInvalidRequest)
	}
	return requests, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
