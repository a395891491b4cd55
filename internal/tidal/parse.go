package tidal

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	unknownName  = "Unknown"
	topTrackSpan = 10
)

// unwrapVersioned strips the {"version":..,"data":..} envelope newer mirrors use.
func unwrapVersioned(root gjson.Result) gjson.Result {
	if root.IsObject() {
		data := root.Get("data")
		if data.Exists() && root.Get("version").Exists() {
			return data
		}
	}
	return root
}

// unwrapItem returns the "item" object of {"item":{..},"type":"track"} wrappers.
func unwrapItem(r gjson.Result) gjson.Result {
	if r.IsObject() {
		if inner := r.Get("item"); inner.IsObject() {
			return inner
		}
	}
	return r
}

// parseSearchItems finds the result list for key ("tracks", "albums", "artists").
// Mirrors answer with [{key:{items:[..]}}], [{key:[..]}], {key:{items:[..]}},
// {items:[..]}, or a bare list.
func parseSearchItems(raw []byte, key string) []gjson.Result {
	root := unwrapVersioned(gjson.ParseBytes(raw))

	if root.IsArray() {
		if first := root.Get("0"); first.IsObject() {
			nested := first.Get(key)
			if nested.IsObject() && nested.Get("items").Exists() {
				return nested.Get("items").Array()
			}
			if nested.IsArray() {
				return nested.Array()
			}
		}
		return root.Array()
	}

	if root.IsObject() {
		if nested := root.Get(key); nested.IsObject() {
			return nested.Get("items").Array()
		}
		if items := root.Get("items"); items.Exists() {
			return items.Array()
		}
	}
	return nil
}

func hasID(r gjson.Result) bool {
	id := r.Get("id")
	return r.IsObject() && id.Exists() && id.Type != gjson.Null
}

func parseTrack(r gjson.Result) (Track, bool) {
	r = unwrapItem(r)
	if !hasID(r) {
		return Track{}, false
	}

	track := Track{
		ID:          r.Get("id").Int(),
		Title:       lo.CoalesceOrEmpty(r.Get("title").String(), unknownName),
		Duration:    int(r.Get("duration").Int()),
		TrackNumber: int(r.Get("trackNumber").Int()),
		Quality:     r.Get("audioQuality").String(),
	}

	artist := r.Get("artist")
	switch {
	case artist.IsObject():
		track.Artist = artist.Get("name").String()
		track.ArtistID = artist.Get("id").Int()
	case artist.Type == gjson.String:
		track.Artist = artist.String()
	default:
		if first := r.Get("artists.0"); first.IsObject() {
			track.Artist = first.Get("name").String()
			track.ArtistID = first.Get("id").Int()
		}
	}
	track.Artist = lo.CoalesceOrEmpty(track.Artist, unknownName)

	if album := r.Get("album"); album.IsObject() {
		track.Album = album.Get("title").String()
		track.AlbumID = album.Get("id").Int()
		track.Cover = album.Get("cover").String()
		track.AlbumArtist = album.Get("artist.name").String()
	}
	track.Cover = lo.CoalesceOrEmpty(track.Cover, r.Get("cover").String())
	track.AlbumArtist = lo.CoalesceOrEmpty(track.AlbumArtist, track.Artist)
	return track, true
}

func parseAlbum(r gjson.Result) (Album, bool) {
	r = unwrapItem(r)
	if !hasID(r) || !r.Get("title").Exists() {
		return Album{}, false
	}
	album := Album{
		ID:             r.Get("id").Int(),
		Title:          r.Get("title").String(),
		Cover:          r.Get("cover").String(),
		NumberOfTracks: int(r.Get("numberOfTracks").Int()),
	}
	if release := r.Get("releaseDate").String(); release != "" {
		album.Year, _, _ = strings.Cut(release, "-")
	} else {
		album.Year = r.Get("year").String()
	}
	album.Artist = lo.CoalesceOrEmpty(r.Get("artist.name").String(), r.Get("artists.0.name").String())
	return album, true
}

func parseArtist(r gjson.Result) (Artist, bool) {
	r = unwrapItem(r)
	if !hasID(r) {
		return Artist{}, false
	}
	return Artist{
		ID:         r.Get("id").Int(),
		Name:       lo.CoalesceOrEmpty(r.Get("name").String(), unknownName),
		Picture:    r.Get("picture").String(),
		Popularity: int(r.Get("popularity").Int()),
	}, true
}

func parseTracks(items []gjson.Result) []Track {
	return lo.FilterMap(items, func(r gjson.Result, _ int) (Track, bool) { return parseTrack(r) })
}

func parseAlbums(items []gjson.Result) []Album {
	return lo.FilterMap(items, func(r gjson.Result, _ int) (Album, bool) { return parseAlbum(r) })
}

func parseArtists(items []gjson.Result) []Artist {
	return lo.FilterMap(items, func(r gjson.Result, _ int) (Artist, bool) { return parseArtist(r) })
}

// parseAlbumTracks reads /album/tracks and /album/ responses. The listing is
// either the object's "items", or, for [metadata, {items:[..]}] arrays, the
// first element carrying "items".
func parseAlbumTracks(raw []byte) []Track {
	root := unwrapVersioned(gjson.ParseBytes(raw))

	var items []gjson.Result
	switch {
	case root.IsObject():
		items = root.Get("items").Array()
	case root.IsArray():
		items = root.Array()
		for _, elem := range root.Array() {
			if elem.IsObject() && elem.Get("items").Exists() {
				items = elem.Get("items").Array()
				break
			}
		}
	}
	return parseTracks(items)
}

// parseAlbumDetails reads the /album/ response: album metadata plus listing.
func parseAlbumDetails(raw []byte) (AlbumDetails, bool) {
	root := unwrapVersioned(gjson.ParseBytes(raw))

	var meta gjson.Result
	switch {
	case root.IsArray():
		for _, elem := range root.Array() {
			if elem.IsObject() && elem.Get("title").Exists() && hasID(elem) {
				meta = elem
				break
			}
		}
	case root.IsObject():
		meta = root
		if nested := root.Get("album"); nested.IsObject() {
			meta = nested
		}
	}

	album, ok := parseAlbum(meta)
	tracks := parseAlbumTracks(raw)
	if !ok && len(tracks) == 0 {
		return AlbumDetails{}, false
	}
	return AlbumDetails{Album: album, Tracks: tracks}, true
}

// parseArtistPage reads the /artist/?f= page response.
func parseArtistPage(raw []byte, artistID int64) ArtistPage {
	root := unwrapVersioned(gjson.ParseBytes(raw))
	page := ArtistPage{TopTracks: []Track{}, Albums: []Album{}}

	if albums := root.Get("albums"); albums.IsObject() {
		albums.Get("rows").ForEach(func(_, row gjson.Result) bool {
			row.Get("modules").ForEach(func(_, module gjson.Result) bool {
				module.Get("pagedList.items").ForEach(func(_, item gjson.Result) bool {
					if album, ok := parseAlbum(item); ok {
						page.Albums = append(page.Albums, album)
					}
					return true
				})
				return true
			})
			return true
		})
		if len(page.Albums) == 0 {
			page.Albums = parseAlbums(albums.Get("items").Array())
		}
	}

	var trackList []gjson.Result
	switch tracks := root.Get("tracks"); {
	case tracks.IsArray():
		trackList = tracks.Array()
	case tracks.IsObject():
		if items := tracks.Get("items"); items.Exists() {
			trackList = items.Array()
		} else {
			trackList = tracks.Get("rows").Array()
		}
	}
	if len(trackList) > topTrackSpan {
		trackList = trackList[:topTrackSpan]
	}
	for _, item := range trackList {
		candidate := unwrapItem(item)
		if !candidate.Get("title").Exists() || !candidate.Get("duration").Exists() {
			continue
		}
		if track, ok := parseTrack(candidate); ok {
			page.TopTracks = append(page.TopTracks, track)
		}
	}

	slices.SortStableFunc(page.Albums, func(a, b Album) int {
		return cmp.Compare(albumYear(b), albumYear(a))
	})

	page.Artist = parseArtistHeader(root, artistID)
	return page
}

func parseArtistHeader(root gjson.Result, artistID int64) Artist {
	artist := Artist{
		ID:         artistID,
		Name:       root.Get("name").String(),
		Popularity: int(root.Get("popularity").Int()),
	}
	var picture string
	if artist.Name == "" || root.Get("picture").String() == "" {
		if found, ok := findByID(root, strconv.FormatInt(artistID, 10)); ok {
			artist.Name = lo.CoalesceOrEmpty(artist.Name, found.Get("name").String())
			picture = found.Get("picture").String()
		}
	}
	if picture == "" {
		picture = root.Get("picture").String()
	}
	if picture == "" {
		if first := root.Get("images.0"); first.IsObject() {
			picture = lo.CoalesceOrEmpty(first.Get("id").String(), first.Get("url").String())
		}
	}
	artist.Picture = picture
	artist.Name = lo.CoalesceOrEmpty(artist.Name, "Artist "+strconv.FormatInt(artistID, 10))
	return artist
}

// findByID walks r depth-first for an object with the given id and a name.
func findByID(r gjson.Result, id string) (gjson.Result, bool) {
	if !r.IsObject() && !r.IsArray() {
		return gjson.Result{}, false
	}
	if r.IsObject() {
		if candidate := r.Get("id"); candidate.Exists() && candidate.String() == id && r.Get("name").Exists() {
			return r, true
		}
	}
	var (
		found gjson.Result
		ok    bool
	)
	r.ForEach(func(_, value gjson.Result) bool {
		found, ok = findByID(value, id)
		return !ok
	})
	return found, ok
}

func albumYear(a Album) int {
	year, err := strconv.Atoi(strings.TrimSpace(a.Year))
	if err != nil {
		return 0
	}
	return year
}
