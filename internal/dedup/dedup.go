package dedup

import (
	"sync"
	"time"

	"wayve-go-srv/internal/models"
)

// CooldownPeriod is the minimum gap between detections of the same track.
const CooldownPeriod = 2 * time.Minute

// Result is the outcome of submitting a detection to the gate.
type Result int

const (
	Accepted Result = iota
	SuppressedCooldown
	SuppressedAlreadyKnown
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case SuppressedCooldown:
		return "suppressed_cooldown"
	case SuppressedAlreadyKnown:
		return "suppressed_already_known"
	default:
		return "unknown"
	}
}

// Gate is the shared dedup/cooldown policy for every detection producer:
// the audio monitor, the notification feed and scraped imports all submit
// through the same instance so cross-source duplicates cannot leak through.
//
// The seen-set lives for the process lifetime and is seeded from persisted
// history at session start. The cooldown map is never persisted; losing it
// on restart costs at worst one duplicate detection.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	seen     map[string]struct{}
	lastSeen map[string]time.Time
}

// NewGate creates a gate with the standard cooldown period.
func NewGate() *Gate {
	return &Gate{
		cooldown: CooldownPeriod,
		seen:     make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// Seed marks every track in the persisted history as already known, so a
// restart does not re-add tracks that survived in storage.
func (g *Gate) Seed(tracks []models.Track) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range tracks {
		g.seen[t.Key()] = struct{}{}
	}
}

// MarkKnown records identities added outside the accept path (bulk merges),
// keeping the gate consistent with the store.
func (g *Gate) MarkKnown(keys ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, k := range keys {
		g.seen[k] = struct{}{}
	}
}

// Accept decides whether a detection is new. The cooldown window is checked
// first; a re-detection at exactly lastSeen+cooldown is past the window and
// falls through to the seen-set check.
func (g *Gate) Accept(t models.Track, now time.Time) Result {
	key := t.Key()

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSeen[key]; ok && now.Sub(last) < g.cooldown {
		return SuppressedCooldown
	}
	if _, ok := g.seen[key]; ok {
		return SuppressedAlreadyKnown
	}

	g.seen[key] = struct{}{}
	g.lastSeen[key] = now
	return Accepted
}

// KnownCount reports the size of the session seen-set.
func (g *Gate) KnownCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Reset drops all session state. Used when the history is cleared so the
// next detection of any track counts as new again.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
	g.lastSeen = make(map[string]time.Time)
}
