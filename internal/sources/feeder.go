package sources

import (
	"time"

	"wayve-go-srv/internal/dedup"
	"wayve-go-srv/internal/hub"
	"wayve-go-srv/internal/models"
	"wayve-go-srv/internal/store"
)

// Producer names carried on published events.
const (
	SourceNotification = "notification_listener"
	SourceCapture      = "screen_capture"
)

// Feeder is the single entry point for every detection producer. A track
// goes through the shared dedup gate; only accepted tracks reach the store
// and the event stream. Producers must not keep their own dedup state.
type Feeder struct {
	gate  *dedup.Gate
	store *store.Store
	hub   *hub.Hub
}

// NewFeeder wires the shared pipeline.
func NewFeeder(gate *dedup.Gate, st *store.Store, h *hub.Hub) *Feeder {
	return &Feeder{gate: gate, store: st, hub: h}
}

// Submit routes one detection. Suppression is a normal outcome, reported via
// the result only.
func (f *Feeder) Submit(t models.Track, source string, now time.Time) (dedup.Result, error) {
	if t.Artist == "" {
		t.Artist = models.UnknownArtist
	}

	res := f.gate.Accept(t, now)
	if res != dedup.Accepted {
		return res, nil
	}

	if err := f.store.Append(t); err != nil {
		return res, err
	}

	f.hub.Publish(hub.Event{Track: t, Source: source, DetectedAt: now})
	return dedup.Accepted, nil
}

// SubmitBatch routes a scraped batch, tagging each track with its capture
// page provenance. Returns the number of accepted tracks.
func (f *Feeder) SubmitBatch(tracks []models.Track, page string, now time.Time) (int, error) {
	accepted := 0
	for _, t := range tracks {
		if page != "" && t.CapturedOnPage == "" {
			t.CapturedOnPage = page
		}
		res, err := f.Submit(t, SourceCapture, now)
		if err != nil {
			return accepted, err
		}
		if res == dedup.Accepted {
			accepted++
		}
	}
	return accepted, nil
}
