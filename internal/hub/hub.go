package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"wayve-go-srv/internal/models"
)

// Event is a detection published to subscribers.
type Event struct {
	Track      models.Track `json:"track"`
	Source     string       `json:"source"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Hub fans detection events out to subscribers. Producers never block on a
// slow consumer: a subscriber that cannot keep up loses events, not the
// producers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers a new listener and returns its id and event channel.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber with room in its buffer.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount reports the number of active listeners.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
