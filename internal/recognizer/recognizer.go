package recognizer

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/models"
)

// Defaults for the RapidAPI Shazam endpoint; all three are runtime-editable
// through the preference store.
const (
	DefaultAPIURL  = "https://shazam.p.rapidapi.com/songs/v2/detect"
	DefaultAPIHost = "shazam.p.rapidapi.com"
)

// artworkKeys is the preference order for size-keyed image URLs.
var artworkKeys = []string{"coverarthq", "coverart", "background"}

// Error classifies a failed recognition attempt. A no-match is not an error.
type Error struct {
	Kind       string // "config", "network", "timeout", "http", "decode"
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("recognition %s error (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("recognition %s error: %s", e.Kind, e.Message)
}

// Client submits raw PCM samples to the remote fingerprinting service.
// Credentials and endpoint are read from the preference store on every call
// so settings edits take effect without a restart.
type Client struct {
	db         *sql.DB
	httpClient *http.Client
}

// New creates a client with a bounded call timeout.
func New(db *sql.DB) *Client {
	return &Client{
		db:         db,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Usage reports the lifetime number of recognition attempts.
func (c *Client) Usage() int {
	return database.GetCounter(c.db, database.UsageCounterKey)
}

// Recognize sends one audio sample and returns the best-guess track, or
// (nil, nil) when the service reports no match. The usage counter is
// incremented exactly once per attempt, on every path that reaches the
// network, including timeouts and malformed responses.
func (c *Client) Recognize(ctx context.Context, sample []byte) (*models.Track, error) {
	apiURL := database.GetPref(c.db, database.ShazamURLKey, DefaultAPIURL)
	apiKey := database.GetPref(c.db, database.ShazamAPIKey, "")
	apiHost := database.GetPref(c.db, database.ShazamHostKey, DefaultAPIHost)

	if apiKey == "" {
		return nil, &Error{Kind: "config", Message: "recognition API key not configured"}
	}

	// The service expects base64-encoded raw PCM as a text body.
	body := base64.StdEncoding.EncodeToString(sample)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: "config", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-RapidAPI-Key", apiKey)
	req.Header.Set("X-RapidAPI-Host", apiHost)

	defer func() {
		if n, err := database.IncrementCounter(c.db, database.UsageCounterKey); err == nil {
			log.Printf("recognizer: API usage %d", n)
		}
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := "network"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		return nil, &Error{Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: "network", Message: err.Error()}
	}

	// HTTP 204 or an empty body means the sample matched nothing.
	if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       "http",
			HTTPStatus: resp.StatusCode,
			Message:    truncate(string(raw), 200),
		}
	}

	return parseResponse(raw)
}

func parseResponse(raw []byte) (*models.Track, error) {
	var payload struct {
		Track struct {
			Title    string            `json:"title"`
			Subtitle string            `json:"subtitle"`
			Images   map[string]string `json:"images"`
		} `json:"track"`
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{Kind: "decode", Message: err.Error()}
	}

	// A well-formed response without a title is a no-match, not an error.
	if payload.Track.Title == "" {
		return nil, nil
	}

	artist := payload.Track.Subtitle
	if artist == "" {
		artist = models.UnknownArtist
	}

	track := models.NewTrack(payload.Track.Title, artist, time.Now())
	for _, key := range artworkKeys {
		if url := payload.Track.Images[key]; url != "" {
			track.AlbumArt = url
			break
		}
	}

	return &track, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
