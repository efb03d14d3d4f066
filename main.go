package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"wayve-go-srv/internal/artwork"
	"wayve-go-srv/internal/audio"
	"wayve-go-srv/internal/database"
	"wayve-go-srv/internal/dedup"
	"wayve-go-srv/internal/hub"
	"wayve-go-srv/internal/monitor"
	"wayve-go-srv/internal/recognizer"
	"wayve-go-srv/internal/sources"
	"wayve-go-srv/internal/store"
)

/* =========================
   Recovery Middleware
   ========================= */

func RecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n%s", err, debug.Stack())
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

/* =========================
   Server
   ========================= */

type server struct {
	db         *sql.DB
	store      *store.Store
	gate       *dedup.Gate
	feeder     *sources.Feeder
	hub        *hub.Hub
	monitor    *monitor.Monitor
	recognizer *recognizer.Client
}

/* =========================
   Main
   ========================= */

func main() {
	_ = godotenv.Load()

	// 1. Database Setup
	dbPath := os.Getenv("WAYVE_DB")
	if dbPath == "" {
		dbPath = "./data/wayve.db"
	}
	_ = os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if err := database.InitDatabase(db); err != nil {
		log.Fatalf("Failed to init DB schema: %v", err)
	}
	seedPrefsFromEnv(db)

	// 2. Detection pipeline
	hostname, _ := os.Hostname()
	st := store.New(db, store.Labels{
		Source: "wayve-go-srv",
		Device: hostname,
		Method: "Always-On Detection",
	})
	history := st.Load()

	gate := dedup.NewGate()
	gate.Seed(history.Tracks)

	eventHub := hub.New()
	feeder := sources.NewFeeder(gate, st, eventHub)
	rec := recognizer.New(db)
	sampler := audio.NewCommandSampler(os.Getenv("WAYVE_AUDIO_DEVICE"))
	mon := monitor.New(sampler, rec, feeder, monitor.NewInhibitLease())

	// 3. Artwork backfill (async, never blocks detection)
	go artwork.NewWorker(db, st).Run(context.Background())

	// 4. Autostart unless disabled
	if os.Getenv("WAYVE_AUTOSTART") != "false" {
		if err := mon.Start(); err != nil {
			log.Printf("Detection not started: %v", err)
		}
	}

	s := &server{
		db:         db,
		store:      st,
		gate:       gate,
		feeder:     feeder,
		hub:        eventHub,
		monitor:    mon,
		recognizer: rec,
	}

	// 5. Routing
	http.HandleFunc("/api/v1/monitor/start", RecoveryMiddleware(s.handleMonitorStart))
	http.HandleFunc("/api/v1/monitor/stop", RecoveryMiddleware(s.handleMonitorStop))
	http.HandleFunc("/api/v1/monitor/status", RecoveryMiddleware(s.handleMonitorStatus))
	http.HandleFunc("/api/v1/history", RecoveryMiddleware(s.handleHistory))
	http.HandleFunc("/api/v1/history/export", RecoveryMiddleware(s.handleHistoryExport))
	http.HandleFunc("/api/v1/history/favorite", RecoveryMiddleware(s.handleFavorite))
	http.HandleFunc("/api/v1/history/remove", RecoveryMiddleware(s.handleRemove))
	http.HandleFunc("/api/v1/detections", RecoveryMiddleware(s.handleDetections))
	http.HandleFunc("/api/v1/import", RecoveryMiddleware(s.handleImport))
	http.HandleFunc("/api/v1/export/spotify", RecoveryMiddleware(s.handleSpotifyExport))
	http.HandleFunc("/api/v1/stream", RecoveryMiddleware(s.handleStream))
	http.HandleFunc("/api/v1/settings", RecoveryMiddleware(s.handleSettings))

	// 6. Clean shutdown: stop the loop so the wake lease is released
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down...")
		mon.Stop()
		db.Close()
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Wayve detection engine listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

// seedPrefsFromEnv writes environment-provided credentials into the
// preference store on first run only; runtime edits win afterwards.
func seedPrefsFromEnv(db *sql.DB) {
	seed := map[string]string{
		database.ShazamURLKey:  os.Getenv("SHAZAM_API_URL"),
		database.ShazamAPIKey:  os.Getenv("SHAZAM_API_KEY"),
		database.ShazamHostKey: os.Getenv("SHAZAM_API_HOST"),
	}
	for key, value := range seed {
		if value == "" {
			continue
		}
		if database.GetPref(db, key, "") == "" {
			if err := database.SetPref(db, key, value); err != nil {
				log.Printf("Failed to seed %s: %v", key, err)
			}
		}
	}
}
