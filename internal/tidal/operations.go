package tidal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tideway/internal/endpoints"
)

// DefaultQuality is requested when the caller leaves quality empty.
const DefaultQuality = "LOSSLESS"

var (
	// ErrUnavailable reports that no mirror answered a track request.
	ErrUnavailable = errors.New("unavailable from every endpoint")
	// ErrNoStreamURL reports a track response without a playable URL.
	ErrNoStreamURL = errors.New("no stream URL")
)

// SearchTracks searches tracks by free text.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]Track, bool) {
	raw, ok := c.Get(ctx, OpSearchTracks, "/search/", url.Values{"s": {query}})
	if !ok {
		return nil, false
	}
	return parseTracks(parseSearchItems(raw, "tracks")), true
}

// SearchAlbums searches albums by free text.
func (c *Client) SearchAlbums(ctx context.Context, query string) ([]Album, bool) {
	raw, ok := c.Get(ctx, OpSearchAlbums, "/search/", url.Values{"al": {query}})
	if !ok {
		return nil, false
	}
	return parseAlbums(parseSearchItems(raw, "albums")), true
}

// SearchArtists searches artists by free text.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]Artist, bool) {
	raw, ok := c.Get(ctx, OpSearchArtists, "/search/", url.Values{"a": {query}})
	if !ok {
		return nil, false
	}
	return parseArtists(parseSearchItems(raw, "artists")), true
}

// GetTrack fetches the track descriptor for trackID at quality. The raw body is
// returned for ExtractStreamURL along with the mirror that served it.
func (c *Client) GetTrack(ctx context.Context, trackID int64, quality string) (Response, bool) {
	return c.Fetch(ctx, OpGetTrack, "/track/", url.Values{
		"id":      {strconv.FormatInt(trackID, 10)},
		"quality": {normalizeQuality(quality)},
	})
}

func normalizeQuality(quality string) string {
	quality = strings.ToUpper(strings.TrimSpace(quality))
	if quality == "" {
		return DefaultQuality
	}
	return quality
}

// Stream is a resolved playable URL and the mirror that supplied it.
type Stream struct {
	URL      string
	Quality  string
	Endpoint endpoints.Endpoint
}

// ResolveStream fetches trackID at quality and extracts its stream URL. Errors
// wrap ErrUnavailable when no mirror answered and ErrNoStreamURL when the
// answer held no usable URL.
func (c *Client) ResolveStream(ctx context.Context, trackID int64, quality string) (Stream, error) {
	served, ok := c.GetTrack(ctx, trackID, quality)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Stream{}, err
		}
		return Stream{}, fmt.Errorf("track %d %w", trackID, ErrUnavailable)
	}
	streamURL, found := ExtractStreamURL(served.Body)
	if !found {
		return Stream{}, fmt.Errorf("%w in track %d response", ErrNoStreamURL, trackID)
	}
	return Stream{URL: streamURL, Quality: normalizeQuality(quality), Endpoint: served.Endpoint}, nil
}

// GetAlbum fetches album metadata and its listing.
func (c *Client) GetAlbum(ctx context.Context, albumID int64) (AlbumDetails, bool) {
	raw, ok := c.Get(ctx, OpGetAlbum, "/album/", url.Values{"id": {strconv.FormatInt(albumID, 10)}})
	if !ok {
		return AlbumDetails{}, false
	}
	return parseAlbumDetails(raw)
}

// GetAlbumTracks fetches the track listing for albumID. Tracks missing album
// ids inherit albumID.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID int64) ([]Track, bool) {
	raw, ok := c.Get(ctx, OpGetAlbumTracks, "/album/tracks", url.Values{"id": {strconv.FormatInt(albumID, 10)}})
	if !ok {
		return nil, false
	}
	tracks := parseAlbumTracks(raw)
	for i := range tracks {
		if tracks[i].AlbumID == 0 {
			tracks[i].AlbumID = albumID
		}
	}
	return tracks, true
}

// AlbumTracks returns the listing from /album/tracks, falling back to the
// listing embedded in /album/ when the first yields nothing.
func (c *Client) AlbumTracks(ctx context.Context, albumID int64) ([]Track, bool) {
	if tracks, ok := c.GetAlbumTracks(ctx, albumID); ok && len(tracks) > 0 {
		return tracks, true
	}
	details, ok := c.GetAlbum(ctx, albumID)
	if !ok {
		return nil, false
	}
	return details.Tracks, true
}

// GetArtist fetches the artist page: header, top tracks, and albums.
func (c *Client) GetArtist(ctx context.Context, artistID int64) (ArtistPage, bool) {
	raw, ok := c.Get(ctx, OpGetArtist, "/artist/", url.Values{"f": {strconv.FormatInt(artistID, 10)}})
	if !ok {
		return ArtistPage{}, false
	}
	return parseArtistPage(raw, artistID), true
}
