package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/models"
)

// Labels describe where a history document came from. They are provenance
// only and never drive logic.
type Labels struct {
	Source string
	Device string
	Method string
}

// Store is the append-preferring track ledger. The full document is
// re-serialized to the preference store after every accepted mutation, so a
// kill at any point loses at most the mutation in flight.
//
// All mutations take the store mutex for their whole read-modify-write, which
// is what keeps concurrent producers (audio monitor, notification feed,
// imports, backfill) from dropping each other's writes.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	labels  Labels
	history models.History
	loaded  bool
}

// New creates a store over the given database. Nothing is read until Load.
func New(db *sql.DB, labels Labels) *Store {
	return &Store{db: db, labels: labels}
}

// Load reads the persisted document. Missing or corrupt data yields an empty
// history; corruption is logged, never fatal.
func (s *Store) Load() models.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return s.snapshotLocked()
}

// Snapshot returns a copy of the current history.
func (s *Store) Snapshot() models.History {
	return s.Load()
}

// Append prepends a track, recomputes statistics and persists.
func (s *Store) Append(t models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	s.history.Tracks = append([]models.Track{t}, s.history.Tracks...)
	return s.persistLocked()
}

// Merge adds only the tracks whose (title, artist) identity is not already in
// the history, recomputing statistics once for the whole batch. Returns the
// number of tracks actually added.
func (s *Store) Merge(incoming []models.Track) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	existing := make(map[string]struct{}, len(s.history.Tracks))
	for _, t := range s.history.Tracks {
		existing[t.Key()] = struct{}{}
	}

	var fresh []models.Track
	for _, t := range incoming {
		if t.Title == "" {
			continue
		}
		if t.Artist == "" {
			t.Artist = models.UnknownArtist
		}
		key := t.Key()
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, t)
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	s.history.Tracks = append(fresh, s.history.Tracks...)
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Remove deletes every track matching the predicate.
func (s *Store) Remove(match func(models.Track) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	kept := s.history.Tracks[:0:0]
	for _, t := range s.history.Tracks {
		if !match(t) {
			kept = append(kept, t)
		}
	}
	s.history.Tracks = kept
	return s.persistLocked()
}

// RemoveTrack deletes all entries with the given identity.
func (s *Store) RemoveTrack(title, artist string) error {
	key := models.Key(title, artist)
	return s.Remove(func(t models.Track) bool { return t.Key() == key })
}

// Clear drops all tracks and the persisted document.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = s.emptyHistory()
	s.loaded = true
	return database.SetPref(s.db, database.HistoryKey, "")
}

// SetAlbumArt fills in missing cover art for every entry with the given
// identity. This is the only permitted in-place mutation of a stored track.
func (s *Store) SetAlbumArt(title, artist, albumArt string) error {
	if albumArt == "" {
		return nil
	}
	key := models.Key(title, artist)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	changed := false
	for i := range s.history.Tracks {
		if s.history.Tracks[i].Key() == key && s.history.Tracks[i].AlbumArt == "" {
			s.history.Tracks[i].AlbumArt = albumArt
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persistLocked()
}

// SetFavorite toggles the favorited flag for all entries with the given
// identity. Returns false when no entry matched.
func (s *Store) SetFavorite(title, artist string, favorited bool) (bool, error) {
	key := models.Key(title, artist)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	found := false
	for i := range s.history.Tracks {
		if s.history.Tracks[i].Key() == key {
			s.history.Tracks[i].Favorited = favorited
			found = true
		}
	}
	if !found {
		return false, nil
	}
	return true, s.persistLocked()
}

// MissingArtwork lists tracks without cover art, one per identity.
func (s *Store) MissingArtwork() []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	seen := make(map[string]struct{})
	var missing []models.Track
	for _, t := range s.history.Tracks {
		if t.AlbumArt != "" {
			continue
		}
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		missing = append(missing, t)
	}
	return missing
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.history = s.emptyHistory()

	raw := database.GetPref(s.db, database.HistoryKey, "")
	if raw == "" {
		return
	}

	var h models.History
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		log.Printf("store: corrupt history document, starting empty: %v", err)
		return
	}

	// Unknown fields were already dropped by the decoder; fill the
	// documented defaults for anything missing.
	if h.Source == "" {
		h.Source = s.labels.Source
	}
	if h.Device == "" {
		h.Device = s.labels.Device
	}
	if h.Method == "" {
		h.Method = s.labels.Method
	}
	for i := range h.Tracks {
		if h.Tracks[i].Artist == "" {
			h.Tracks[i].Artist = models.UnknownArtist
		}
	}
	h.Statistics = models.CalculateStats(h.Tracks)
	s.history = h
}

func (s *Store) emptyHistory() models.History {
	return models.History{
		Exported: time.Now().UTC().Format(time.RFC3339),
		Source:   s.labels.Source,
		Device:   s.labels.Device,
		Method:   s.labels.Method,
	}
}

func (s *Store) snapshotLocked() models.History {
	h := s.history
	h.Tracks = append([]models.Track(nil), s.history.Tracks...)
	return h
}

func (s *Store) persistLocked() error {
	s.history.Statistics = models.CalculateStats(s.history.Tracks)

	raw, err := json.Marshal(s.history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := database.SetPref(s.db, database.HistoryKey, string(raw)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
