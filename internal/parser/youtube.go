package parser

import (
	"fmt"

	"github.com/kkdai/youtube/v2"

	"wayve-go-srv/internal/models"
)

// ParseYouTube pulls (title, artist) pairs out of a YouTube playlist or
// single-video URL for merging into the history.
func ParseYouTube(url string) ([]models.Track, string, error) {
	client := youtube.Client{}

	// Playlist first; most import URLs are playlists.
	playlist, err := client.GetPlaylist(url)
	if err == nil {
		var tracks []models.Track

		for _, entry := range playlist.Videos {
			artist, title := SplitVideoTitle(entry.Title, entry.Author)
			if title == "" {
				continue
			}
			tracks = append(tracks, models.Track{
				Title:  title,
				Artist: artist,
			})
		}
		return tracks, playlist.Title, nil
	}

	// Fallback: a single video.
	video, err := client.GetVideo(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse YouTube URL: %w", err)
	}

	artist, title := SplitVideoTitle(video.Title, video.Author)
	if title == "" {
		return nil, "", fmt.Errorf("could not extract a track from %q", video.Title)
	}

	return []models.Track{{Title: title, Artist: artist}}, video.Title, nil
}
