package artwork

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/store"
)

const defaultSearchURL = "https://itunes.apple.com/search"

// One lookup per 500ms keeps us inside the public service's informal quota.
const lookupDelay = 500 * time.Millisecond

// Worker retroactively fills in cover art for history entries captured
// without it. Best effort: an individual miss is skipped, and every hit is
// persisted immediately so progress survives a kill mid-run.
type Worker struct {
	db         *sql.DB
	store      *store.Store
	httpClient *http.Client
	limiter    *rate.Limiter
	searchURL  string
}

// NewWorker builds a backfill worker over the shared store and artwork cache.
func NewWorker(db *sql.DB, st *store.Store) *Worker {
	return &Worker{
		db:         db,
		store:      st,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(lookupDelay), 1),
		searchURL:  defaultSearchURL,
	}
}

// Run scans the history once and resolves missing artwork. Meant to be
// launched in its own goroutine at session start; it never blocks detection.
func (w *Worker) Run(ctx context.Context) {
	missing := w.store.MissingArtwork()
	if len(missing) == 0 {
		return
	}
	log.Printf("artwork: backfilling %d tracks", len(missing))

	found := 0
	for _, t := range missing {
		if ctx.Err() != nil {
			return
		}

		// Cache hits skip the public lookup entirely.
		if cached, err := database.GetArtwork(w.db, t.Key()); err == nil && cached != "" {
			if err := w.store.SetAlbumArt(t.Title, t.Artist, cached); err == nil {
				found++
			}
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		art := w.lookup(ctx, t.Title, t.Artist)
		if art == "" {
			continue
		}

		if err := database.UpsertArtwork(w.db, t.Key(), art); err != nil {
			log.Printf("artwork: cache write failed for %q: %v", t.Title, err)
		}
		if err := w.store.SetAlbumArt(t.Title, t.Artist, art); err != nil {
			log.Printf("artwork: update failed for %q: %v", t.Title, err)
			continue
		}
		found++
	}

	log.Printf("artwork: backfill complete, %d/%d resolved", found, len(missing))
}

// lookup queries the iTunes Search API for one track and returns the best
// available artwork URL, upscaled to 600x600.
func (w *Worker) lookup(ctx context.Context, title, artist string) string {
	q := url.Values{}
	q.Set("term", fmt.Sprintf("%s %s", artist, title))
	q.Set("media", "music")
	q.Set("entity", "song")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		Results []struct {
			ArtworkURL100 string `json:"artworkUrl100"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	if len(payload.Results) == 0 || payload.Results[0].ArtworkURL100 == "" {
		return ""
	}

	return strings.Replace(payload.Results[0].ArtworkURL100, "100x100bb", "600x600bb", 1)
}
