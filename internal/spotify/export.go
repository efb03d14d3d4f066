package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/zmb3/spotify/v2"

	"wayve-go-srv/internal/models"
)

// Spotify caps playlist additions at 100 URIs per call.
const addBatchSize = 100

const matchThreshold = 0.85

// ExportResult summarizes a playlist export.
type ExportResult struct {
	PlaylistURL string `json:"playlist_url"`
	AddedCount  int    `json:"added_count"`
	TotalCount  int    `json:"total_count"`
}

// ProgressFunc reports per-track export progress for SSE streaming.
type ProgressFunc func(index, total int, title string, matched bool)

// Exporter pushes history tracks into a new playlist on the user's account.
type Exporter struct {
	client *spotify.Client
}

// NewExporter wraps an authenticated user client.
func NewExporter(client *spotify.Client) *Exporter {
	return &Exporter{client: client}
}

// MatchTracks runs the same search matching CreatePlaylist does without
// touching the user's account, so it works with search-only credentials.
// It returns how many tracks found an acceptable match.
func (e *Exporter) MatchTracks(ctx context.Context, tracks []models.Track, onProgress ProgressFunc) (int, error) {
	matched := 0
	for i, t := range tracks {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		id := e.findTrack(ctx, t.Title, t.Artist)
		if id != "" {
			matched++
		}
		if onProgress != nil {
			onProgress(i+1, len(tracks), t.Title, id != "")
		}
	}
	return matched, nil
}

// CreatePlaylist creates a playlist and fills it with the best search match
// for each track. Tracks that match nothing are skipped, not fatal.
func (e *Exporter) CreatePlaylist(ctx context.Context, name string, tracks []models.Track, onProgress ProgressFunc) (*ExportResult, error) {
	if name == "" {
		name = "Wayve Detections"
	}

	user, err := e.client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}

	playlist, err := e.client.CreatePlaylistForUser(ctx, user.ID, name,
		"Created from Wayve listening history", true, false)
	if err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}

	added := 0
	var pending []spotify.ID

	for i, t := range tracks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		id := e.findTrack(ctx, t.Title, t.Artist)
		if onProgress != nil {
			onProgress(i+1, len(tracks), t.Title, id != "")
		}
		if id == "" {
			continue
		}

		pending = append(pending, id)
		added++

		if len(pending) >= addBatchSize {
			if err := e.addBatch(ctx, playlist.ID, pending); err != nil {
				return nil, err
			}
			pending = pending[:0]
		}
	}

	if len(pending) > 0 {
		if err := e.addBatch(ctx, playlist.ID, pending); err != nil {
			return nil, err
		}
	}

	return &ExportResult{
		PlaylistURL: "https://open.spotify.com/playlist/" + string(playlist.ID),
		AddedCount:  added,
		TotalCount:  len(tracks),
	}, nil
}

func (e *Exporter) addBatch(ctx context.Context, playlistID spotify.ID, ids []spotify.ID) error {
	if err := wait(ctx); err != nil {
		return err
	}
	if _, err := e.client.AddTracksToPlaylist(ctx, playlistID, ids...); err != nil {
		return fmt.Errorf("add tracks: %w", err)
	}
	return nil
}

// findTrack searches and verifies the best candidate by Jaro-Winkler
// similarity against "artist title", so near-misses don't pollute the
// playlist. Returns empty on no acceptable match.
func (e *Exporter) findTrack(ctx context.Context, title, artist string) spotify.ID {
	if err := wait(ctx); err != nil {
		return ""
	}

	// Anything in brackets hurts search precision more than it helps.
	cleanTitle := title
	if idx := strings.IndexAny(cleanTitle, "(["); idx != -1 {
		cleanTitle = strings.TrimSpace(cleanTitle[:idx])
	}

	query := fmt.Sprintf("track:%s artist:%s", cleanTitle, artist)
	res, err := e.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(5))
	if err != nil || res.Tracks == nil {
		return ""
	}

	return bestMatch(cleanTitle, artist, res.Tracks.Tracks)
}

func bestMatch(title, artist string, candidates []spotify.FullTrack) spotify.ID {
	want := strings.ToLower(artist + " " + title)

	var bestID spotify.ID
	var highestScore float64

	for _, cand := range candidates {
		names := make([]string, len(cand.Artists))
		for i, a := range cand.Artists {
			names[i] = a.Name
		}
		candStr := strings.ToLower(strings.Join(names, ", ") + " " + cand.Name)

		score := strutil.Similarity(want, candStr, metrics.NewJaroWinkler())
		if score > highestScore && score >= matchThreshold {
			highestScore = score
			bestID = cand.ID
		}
	}

	return bestID
}
