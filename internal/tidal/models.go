package tidal

// Track is a track entry from search, album, or artist responses.
type Track struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	ArtistID    int64  `json:"artist_id,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumID     int64  `json:"album_id,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	Cover       string `json:"cover,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

// Album is an album entry from search or artist responses.
type Album struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Artist         string `json:"artist,omitempty"`
	Year           string `json:"year,omitempty"`
	Cover          string `json:"cover,omitempty"`
	NumberOfTracks int    `json:"number_of_tracks,omitempty"`
}

// Artist is an artist entry from search or artist responses.
type Artist struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Picture    string `json:"picture,omitempty"`
	Popularity int    `json:"popularity,omitempty"`
}

// ArtistPage combines an artist with their top tracks and albums, newest first.
type ArtistPage struct {
	Artist    Artist  `json:"artist"`
	TopTracks []Track `json:"tracks"`
	Albums    []Album `json:"albums"`
}

// AlbumDetails is an album with its track listing.
type AlbumDetails struct {
	Album  Album   `json:"album"`
	Tracks []Track `json:"tracks"`
}
