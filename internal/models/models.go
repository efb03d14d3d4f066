package models

import (
	"strings"
	"time"
)

// UnknownArtist is the sentinel used when a source cannot name the artist.
const UnknownArtist = "Unknown Artist"

// Track is a single recognized listening event. Tracks are immutable once
// stored except for AlbumArt, which the backfill worker may fill in later.
type Track struct {
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Time           string `json:"time,omitempty"`
	Date           string `json:"date,omitempty"`
	Favorited      bool   `json:"favorited"`
	CapturedOnPage string `json:"captured_on_page,omitempty"`
	AlbumArt       string `json:"albumArt,omitempty"`
}

// Statistics is derived from the track list and recomputed on every mutation.
type Statistics struct {
	TotalTracks    int `json:"total_tracks"`
	UniqueArtists  int `json:"unique_artists"`
	UniqueSongs    int `json:"unique_songs"`
	FavoritedCount int `json:"favorited_count"`
}

// History is the persisted document: provenance metadata, derived statistics
// and the track list, newest first.
type History struct {
	Exported   string     `json:"exported"`
	Source     string     `json:"source"`
	Device     string     `json:"device"`
	Method     string     `json:"method"`
	Statistics Statistics `json:"statistics"`
	Tracks     []Track    `json:"tracks"`
}

// NewTrack builds a track stamped with the local time-of-day and calendar
// date in the same formats the Now Playing history uses.
func NewTrack(title, artist string, now time.Time) Track {
	if artist == "" {
		artist = UnknownArtist
	}
	return Track{
		Title:  title,
		Artist: artist,
		Time:   now.Format("3:04 PM"),
		Date:   now.Format("2006-01-02"),
	}
}

// Key returns the dedup identity for a (title, artist) pair. Identity is
// case-insensitive: "Song" and "song" are the same track.
func Key(title, artist string) string {
	return strings.ToLower(title) + "|" + strings.ToLower(artist)
}

// Key returns the track's dedup identity.
func (t Track) Key() string {
	return Key(t.Title, t.Artist)
}

// CalculateStats recomputes the derived statistics for a track list. Every
// mutation of the history must go through this before persisting.
func CalculateStats(tracks []Track) Statistics {
	artists := make(map[string]struct{}, len(tracks))
	songs := make(map[string]struct{}, len(tracks))
	favorited := 0

	for _, t := range tracks {
		artists[strings.ToLower(t.Artist)] = struct{}{}
		songs[t.Key()] = struct{}{}
		if t.Favorited {
			favorited++
		}
	}

	return Statistics{
		TotalTracks:    len(tracks),
		UniqueArtists:  len(artists),
		UniqueSongs:    len(songs),
		FavoritedCount: favorited,
	}
}
