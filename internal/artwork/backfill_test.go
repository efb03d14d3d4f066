package artwork

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/models"
	"wayve-go-srv/internal/store"
)

func newTestWorker(t *testing.T, handler http.Handler) (*Worker, *store.Store, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.InitDatabase(db))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := store.New(db, store.Labels{Source: "test"})
	w := NewWorker(db, st)
	w.searchURL = srv.URL
	return w, st, db
}

func searchStub(hits *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		term := r.URL.Query().Get("term")
		if term == "" {
			http.Error(w, "missing term", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"results":[{"artworkUrl100":"https://img.example/abc/100x100bb.jpg"}]}`)
	})
}

// TestBackfillResolvesAndCaches: a run fills missing art with the upscaled
// URL, and a second run over a new entry of the same track is served from the
// cache without touching the service again.
func TestBackfillResolvesAndCaches(t *testing.T) {
	var hits atomic.Int32
	w, st, db := newTestWorker(t, searchStub(&hits))

	require.NoError(t, st.Append(models.Track{Title: "Song", Artist: "Artist"}))

	w.Run(context.Background())

	h := st.Snapshot()
	require.Len(t, h.Tracks, 1)
	assert.Equal(t, "https://img.example/abc/600x600bb.jpg", h.Tracks[0].AlbumArt)
	assert.Equal(t, int32(1), hits.Load())

	cached, err := database.GetArtwork(db, models.Key("Song", "Artist"))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/abc/600x600bb.jpg", cached)

	// Same identity re-detected without art: cache hit, no lookup.
	require.NoError(t, st.Append(models.Track{Title: "song", Artist: "artist"}))
	w.Run(context.Background())

	h = st.Snapshot()
	assert.Equal(t, "https://img.example/abc/600x600bb.jpg", h.Tracks[0].AlbumArt)
	assert.Equal(t, int32(1), hits.Load())
}

func TestBackfillSkipsResolvedTracks(t *testing.T) {
	var hits atomic.Int32
	w, st, _ := newTestWorker(t, searchStub(&hits))

	require.NoError(t, st.Append(models.Track{Title: "Done", Artist: "A", AlbumArt: "have.jpg"}))

	w.Run(context.Background())
	assert.Equal(t, int32(0), hits.Load())
}

// TestBackfillMissTolerated: a track the service cannot resolve stays
// art-less and does not abort the run.
func TestBackfillMissTolerated(t *testing.T) {
	w, st, _ := newTestWorker(t, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, `{"results":[]}`)
	}))

	require.NoError(t, st.Append(models.Track{Title: "Obscure", Artist: "Nobody"}))

	w.Run(context.Background())
	assert.Empty(t, st.Snapshot().Tracks[0].AlbumArt)
}

func TestBackfillServiceError(t *testing.T) {
	w, st, _ := newTestWorker(t, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "down", http.StatusServiceUnavailable)
	}))

	require.NoError(t, st.Append(models.Track{Title: "Song", Artist: "Artist"}))

	w.Run(context.Background())
	assert.Empty(t, st.Snapshot().Tracks[0].AlbumArt)
}

func TestBackfillHonorsCancellation(t *testing.T) {
	var hits atomic.Int32
	w, st, _ := newTestWorker(t, searchStub(&hits))

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Append(models.Track{Title: fmt.Sprintf("Song %d", i), Artist: "A"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, int32(0), hits.Load())
}
