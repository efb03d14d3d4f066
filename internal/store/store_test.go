package store

import (
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/models"
)

var testLabels = Labels{Source: "test", Device: "unit", Method: "manual"}

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitDatabase(db))
	return New(db, testLabels), db
}

func TestLoadEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	h := s.Load()
	assert.Equal(t, "test", h.Source)
	assert.Equal(t, "unit", h.Device)
	assert.Equal(t, "manual", h.Method)
	assert.Empty(t, h.Tracks)
}

// TestAppendPersists checks that an append survives a fresh store over the
// same database, newest first.
func TestAppendPersists(t *testing.T) {
	s, db := newTestStore(t)

	require.NoError(t, s.Append(models.Track{Title: "First", Artist: "A"}))
	require.NoError(t, s.Append(models.Track{Title: "Second", Artist: "B"}))

	reloaded := New(db, testLabels).Load()
	require.Len(t, reloaded.Tracks, 2)
	assert.Equal(t, "Second", reloaded.Tracks[0].Title)
	assert.Equal(t, "First", reloaded.Tracks[1].Title)
	assert.Equal(t, 2, reloaded.Statistics.TotalTracks)
}

// TestStatisticsConsistency: statistics always reflect the track list after
// every kind of mutation.
func TestStatisticsConsistency(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Append(models.Track{Title: "One", Artist: "A"}))
	require.NoError(t, s.Append(models.Track{Title: "Two", Artist: "A"}))
	require.NoError(t, s.Append(models.Track{Title: "Three", Artist: "B"}))

	h := s.Snapshot()
	assert.Equal(t, 3, h.Statistics.TotalTracks)
	assert.Equal(t, 2, h.Statistics.UniqueArtists)
	assert.Equal(t, 3, h.Statistics.UniqueSongs)

	require.NoError(t, s.RemoveTrack("Two", "A"))
	h = s.Snapshot()
	assert.Equal(t, 2, h.Statistics.TotalTracks)
	assert.Equal(t, 2, h.Statistics.UniqueArtists)
}

func TestMergeSkipsDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(models.Track{Title: "Existing", Artist: "A"}))

	added, err := s.Merge([]models.Track{
		{Title: "existing", Artist: "a"}, // same identity, different case
		{Title: "Fresh", Artist: "B"},
		{Title: "Fresh", Artist: "B"}, // intra-batch duplicate
		{Title: "", Artist: "C"},      // no title, dropped
		{Title: "Nameless"},           // artist defaulted
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	h := s.Snapshot()
	require.Len(t, h.Tracks, 3)
	assert.Equal(t, models.UnknownArtist, h.Tracks[1].Artist)
}

// TestMergeIdempotent: merging the same batch twice adds nothing the second
// time.
func TestMergeIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	batch := []models.Track{
		{Title: "One", Artist: "A"},
		{Title: "Two", Artist: "B"},
	}

	added, err := s.Merge(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.Merge(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, s.Snapshot().Tracks, 2)
}

func TestClear(t *testing.T) {
	s, db := newTestStore(t)
	require.NoError(t, s.Append(models.Track{Title: "Gone", Artist: "A"}))

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Snapshot().Tracks)

	// The persisted document is gone too.
	assert.Empty(t, New(db, testLabels).Load().Tracks)
}

func TestSetFavorite(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(models.Track{Title: "Song", Artist: "A"}))

	found, err := s.SetFavorite("song", "a", true)
	require.NoError(t, err)
	assert.True(t, found)

	h := s.Snapshot()
	assert.True(t, h.Tracks[0].Favorited)
	assert.Equal(t, 1, h.Statistics.FavoritedCount)

	found, err = s.SetFavorite("Missing", "A", true)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestSetAlbumArtFillsOnlyEmpty: backfill never overwrites recognition-time
// artwork.
func TestSetAlbumArtFillsOnlyEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(models.Track{Title: "Song", Artist: "A"}))
	require.NoError(t, s.Append(models.Track{Title: "Song", Artist: "A", AlbumArt: "original.jpg"}))

	require.NoError(t, s.SetAlbumArt("Song", "A", "backfilled.jpg"))

	h := s.Snapshot()
	assert.Equal(t, "original.jpg", h.Tracks[0].AlbumArt)
	assert.Equal(t, "backfilled.jpg", h.Tracks[1].AlbumArt)
}

func TestMissingArtwork(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(models.Track{Title: "Has Art", Artist: "A", AlbumArt: "x.jpg"}))
	require.NoError(t, s.Append(models.Track{Title: "No Art", Artist: "A"}))
	require.NoError(t, s.Append(models.Track{Title: "no art", Artist: "a"})) // same identity

	missing := s.MissingArtwork()
	require.Len(t, missing, 1)
	assert.Equal(t, "no art", missing[0].Title)
}

// TestCorruptDocumentRecovery: unparseable persisted JSON yields an empty
// history instead of an error.
func TestCorruptDocumentRecovery(t *testing.T) {
	s, db := newTestStore(t)
	require.NoError(t, database.SetPref(db, database.HistoryKey, "{not json"))

	h := s.Load()
	assert.Empty(t, h.Tracks)

	// The store is still writable after recovery.
	require.NoError(t, s.Append(models.Track{Title: "After", Artist: "A"}))
	assert.Len(t, s.Snapshot().Tracks, 1)
}

func TestLoadFillsDefaults(t *testing.T) {
	s, db := newTestStore(t)
	doc := `{"tracks":[{"title":"Song","artist":""}]}`
	require.NoError(t, database.SetPref(db, database.HistoryKey, doc))

	h := s.Load()
	require.Len(t, h.Tracks, 1)
	assert.Equal(t, models.UnknownArtist, h.Tracks[0].Artist)
	assert.Equal(t, "test", h.Source)
	assert.Equal(t, 1, h.Statistics.TotalTracks)
}

// TestConcurrentAppend: racing producers never drop each other's writes.
func TestConcurrentAppend(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Append(models.Track{Title: "Song", Artist: string(rune('A' + n))})
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Snapshot().Tracks, 20)
}
