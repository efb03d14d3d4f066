package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"

	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/models"
	"wayve-go-srv/internal/parser"
	"wayve-go-srv/internal/sources"
	"wayve-go-srv/internal/spotify"
)

/* =========================
   SSE Helpers
   ========================= */

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return flusher, nil
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Println("SSE marshal error:", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

/* =========================
   Monitor Control
   ========================= */

func (s *server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.monitor.Start(); err != nil {
		// The one user-visible failure: no microphone capability.
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.monitor.State().String()})
}

func (s *server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.monitor.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.monitor.State().String()})
}

func (s *server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       s.monitor.State().String(),
		"api_usage":   s.recognizer.Usage(),
		"statistics":  h.Statistics,
		"known_count": s.gate.KnownCount(),
		"subscribers": s.hub.SubscriberCount(),
	})
}

/* =========================
   History
   ========================= */

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.Snapshot())
	case http.MethodDelete:
		if err := s.store.Clear(); err != nil {
			http.Error(w, "Clear failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		// A cleared history means nothing is "already known" anymore.
		s.gate.Reset()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc := s.store.Snapshot()
	doc.Exported = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Disposition", `attachment; filename="nowplaying_export.json"`)
	writeJSON(w, http.StatusOK, doc)
}

type trackRequest struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Favorited bool   `json:"favorited"`
}

func (s *server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	found, err := s.store.SetFavorite(req.Title, req.Artist, req.Favorited)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorited": req.Favorited})
}

func (s *server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.store.RemoveTrack(req.Title, req.Artist); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

/* =========================
   Alternate Source Intake
   ========================= */

type detectionRequest struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Text   string `json:"text"`

	// Batch shape, used by the screen-capture producer.
	Page   string         `json:"page"`
	Tracks []models.Track `json:"tracks"`
}

// handleDetections is the intake for producers that already know title and
// artist (notification listener, screen capture). They share the audio
// monitor's dedup gate, so cross-source duplicates are suppressed here too.
func (s *server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	now := time.Now()

	// Batch submission from the capture producer.
	if len(req.Tracks) > 0 {
		accepted, err := s.feeder.SubmitBatch(req.Tracks, req.Page, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"accepted": accepted,
			"total":    len(req.Tracks),
		})
		return
	}

	title, artist := req.Title, req.Artist
	if artist == "" {
		// Raw notification: title is usually "Song by Artist".
		var ok bool
		title, artist, ok = sources.ParseNowPlayingTitle(req.Title, req.Text)
		if !ok {
			http.Error(w, "No track in payload", http.StatusBadRequest)
			return
		}
	}
	if !sources.ValidDetection(title, artist) {
		http.Error(w, "Not a song detection", http.StatusUnprocessableEntity)
		return
	}

	track := models.NewTrack(title, artist, now)
	source := req.Source
	if source == "" {
		source = sources.SourceNotification
	}

	result, err := s.feeder.Submit(track, source, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result.String(),
		"track":  track,
	})
}

/* =========================
   Import
   ========================= */

type importRequest struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		tracks     []models.Track
		sourceName string
		err        error
	)

	contentType := r.Header.Get("Content-Type")

	// ---------- File upload (CSV or exported JSON) ----------
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}

		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}

		if strings.HasSuffix(strings.ToLower(header.Filename), ".json") {
			tracks, sourceName, err = parser.ParseHistoryJSON(file)
			file.Close()
		} else {
			file.Close()
			tracks, sourceName, err = parser.ParseCSV(r)
		}
	} else {
		// ---------- JSON (YouTube URL) ----------
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Type != "youtube" || req.URL == "" {
			http.Error(w, "Unsupported import type", http.StatusBadRequest)
			return
		}
		tracks, sourceName, err = parser.ParseYouTube(req.URL)
	}

	if err != nil {
		http.Error(w, "Extraction failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(tracks) == 0 {
		http.Error(w, "No tracks found", http.StatusBadRequest)
		return
	}

	added, err := s.store.Merge(tracks)
	if err != nil {
		http.Error(w, "Merge failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// The gate must learn merged identities or the monitor would re-add them.
	keys := make([]string, 0, len(tracks))
	for _, t := range tracks {
		keys = append(keys, t.Key())
	}
	s.gate.MarkKnown(keys...)

	writeJSON(w, http.StatusOK, map[string]any{
		"source_name": sourceName,
		"added":       added,
		"total":       len(tracks),
	})
}

/* =========================
   Spotify Export
   ========================= */

type exportRequest struct {
	Name   string `json:"name"`
	DryRun bool   `json:"dry_run"`
}

func (s *server) handleSpotifyExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	tracks := s.store.Snapshot().Tracks
	if len(tracks) == 0 {
		http.Error(w, "History is empty", http.StatusBadRequest)
		return
	}

	/* =========================
	   Auth (NO SSE YET)
	   ========================= */

	token := r.Header.Get("X-Spotify-Token")

	var client *spotifyapi.Client
	switch {
	case !req.DryRun:
		if token == "" {
			http.Error(w, "Missing X-Spotify-Token", http.StatusUnauthorized)
			return
		}
		client = spotify.NewUserClient(ctx, token)
	case os.Getenv("SPOTIFY_ID") != "" && os.Getenv("SPOTIFY_SECRET") != "":
		client = spotify.NewSearchClient(ctx, os.Getenv("SPOTIFY_ID"), os.Getenv("SPOTIFY_SECRET"))
	default:
		// Last resort for dry runs: anonymous web-player token.
		anonToken, err := spotify.GetAnonymousToken(ctx)
		if err != nil {
			http.Error(w, "No Spotify credentials available: "+err.Error(), http.StatusUnauthorized)
			return
		}
		client = spotify.NewAnonymousClient(ctx, anonToken)
	}

	/* =========================
	   SSE Setup (SAFE POINT)
	   ========================= */

	flusher, err := setupSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	send := func(v any) { sendEvent(w, flusher, v) }

	send(map[string]string{
		"status":  "info",
		"message": fmt.Sprintf("Exporting %d tracks", len(tracks)),
	})

	onProgress := func(index, total int, title string, matched bool) {
		select {
		case <-ctx.Done():
		default:
			send(map[string]any{
				"status":  "processing",
				"index":   index,
				"total":   total,
				"track":   title,
				"matched": matched,
			})
		}
	}

	exporter := spotify.NewExporter(client)

	if req.DryRun {
		matched, err := exporter.MatchTracks(ctx, tracks, onProgress)
		if err != nil {
			send(map[string]string{"status": "error", "message": err.Error()})
			return
		}
		send(map[string]any{
			"status":  "complete",
			"matched": matched,
			"total":   len(tracks),
		})
		return
	}

	result, err := exporter.CreatePlaylist(ctx, req.Name, tracks, onProgress)
	if err != nil {
		send(map[string]string{"status": "error", "message": err.Error()})
		return
	}

	send(map[string]any{
		"status": "complete",
		"result": result,
		"meta": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

/* =========================
   Live Event Stream
   ========================= */

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, err := setupSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	sendEvent(w, flusher, map[string]string{"status": "connected"})

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			sendEvent(w, flusher, map[string]any{
				"status": "detected",
				"event":  e,
			})
		}
	}
}

/* =========================
   Settings
   ========================= */

type settingsRequest struct {
	ShazamAPIURL  string `json:"shazam_api_url"`
	ShazamAPIKey  string `json:"shazam_api_key"`
	ShazamAPIHost string `json:"shazam_api_host"`
}

func (s *server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"shazam_api_url":  database.GetPref(s.db, database.ShazamURLKey, ""),
			"shazam_api_host": database.GetPref(s.db, database.ShazamHostKey, ""),
			"shazam_api_key":  maskKey(database.GetPref(s.db, database.ShazamAPIKey, "")),
			"api_usage":       database.GetCounter(s.db, database.UsageCounterKey),
		})

	case http.MethodPut:
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		updates := map[string]string{
			database.ShazamURLKey:  req.ShazamAPIURL,
			database.ShazamAPIKey:  req.ShazamAPIKey,
			database.ShazamHostKey: req.ShazamAPIHost,
		}
		for key, value := range updates {
			if value == "" {
				continue
			}
			if err := database.SetPref(s.db, key, value); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// maskKey shows just enough of a credential to confirm which one is set.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
