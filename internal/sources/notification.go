package sources

import (
	"strings"

	"wayve-go-srv/internal/models"
)

// historyHint is the generic Now Playing notification body; it is never an
// artist name.
const historyHint = "tap to see your song history"

// invalidPatterns are system messages the vendor surface shows in the same
// notification slot as real detections.
var invalidPatterns = []string{
	"listening",
	"now playing",
	"searching",
	"no match",
	"not found",
	"error",
	"loading",
	"detecting",
}

// ParseNowPlayingTitle extracts (title, artist) from a vendor Now Playing
// notification. The usual shape is a title of "Song by Artist"; older builds
// put the song in the title and the artist in the body text.
func ParseNowPlayingTitle(title, text string) (string, string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", false
	}

	if idx := indexFold(title, " by "); idx >= 0 {
		song := strings.TrimSpace(title[:idx])
		artist := strings.TrimSpace(title[idx+len(" by "):])
		if artist == "" {
			artist = models.UnknownArtist
		}
		return song, artist, song != ""
	}

	artist := strings.TrimSpace(text)
	if artist == "" || strings.EqualFold(artist, historyHint) {
		artist = models.UnknownArtist
	}
	return title, artist, true
}

// ValidDetection filters out system messages masquerading as songs.
func ValidDetection(title, artist string) bool {
	if len(title) < 2 || len(artist) < 2 {
		return false
	}

	titleLower := strings.ToLower(title)
	artistLower := strings.ToLower(artist)
	for _, p := range invalidPatterns {
		if strings.Contains(titleLower, p) || strings.Contains(artistLower, p) {
			return false
		}
	}
	return true
}

// indexFold is a case-insensitive strings.Index.
func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
