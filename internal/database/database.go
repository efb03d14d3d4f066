package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Preference keys used by the daemon. The history document lives under
// HistoryKey; everything else is runtime-editable configuration.
const (
	HistoryKey      = "nowplaying_data"
	ShazamURLKey    = "shazam_api_url"
	ShazamAPIKey    = "shazam_api_key"
	ShazamHostKey   = "shazam_api_host"
	UsageCounterKey = "shazam_api_usage_count"
)

// InitDatabase runs the embedded schema and sets performance PRAGMAs
func InitDatabase(db *sql.DB) error {
	// WAL mode so history writes don't block concurrent preference reads
	_, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA cache_size=-2000;")
	if err != nil {
		return err
	}
	_, err = db.Exec(schema)
	return err
}

// GetPref returns the stored value for a preference key, or the fallback
// when the key has never been written.
func GetPref(db *sql.DB, key, fallback string) string {
	if db == nil || key == "" {
		return fallback
	}

	var value string
	err := db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err != nil {
		return fallback
	}
	return value
}

// SetPref inserts or updates a preference value.
func SetPref(db *sql.DB, key, value string) error {
	if db == nil {
		return nil
	}
	if key == "" {
		return fmt.Errorf("empty preference key")
	}

	query := `
	INSERT INTO preferences (key, value, last_updated)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		last_updated = CURRENT_TIMESTAMP;`

	_, err := db.Exec(query, key, value)
	return err
}

// IncrementCounter bumps an integer preference by one and returns the new
// value. Unparseable or missing values restart the count from zero.
func IncrementCounter(db *sql.DB, key string) (int, error) {
	current, _ := strconv.Atoi(GetPref(db, key, "0"))
	next := current + 1
	if err := SetPref(db, key, strconv.Itoa(next)); err != nil {
		return current, err
	}
	return next, nil
}

// GetCounter reads an integer preference, defaulting to zero.
func GetCounter(db *sql.DB, key string) int {
	n, _ := strconv.Atoi(GetPref(db, key, "0"))
	return n
}

// UpsertArtwork records a resolved artwork URL for a track identity so the
// backfill worker never repeats a public lookup.
// COALESCE keeps an existing URL when a later pass resolves nothing.
func UpsertArtwork(db *sql.DB, trackKey, albumArt string) error {
	if db == nil || trackKey == "" {
		return nil
	}

	query := `
	INSERT INTO artwork_cache (track_key, album_art, last_updated)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(track_key) DO UPDATE SET
		album_art = COALESCE(NULLIF(excluded.album_art, ''), artwork_cache.album_art),
		last_updated = CURRENT_TIMESTAMP;`

	_, err := db.Exec(query, trackKey, albumArt)
	return err
}

// GetArtwork looks up a cached artwork URL by track identity.
func GetArtwork(db *sql.DB, trackKey string) (string, error) {
	if db == nil || trackKey == "" {
		return "", fmt.Errorf("invalid lookup")
	}

	var art string
	err := db.QueryRow("SELECT album_art FROM artwork_cache WHERE track_key = ?", trackKey).Scan(&art)
	return art, err
}
