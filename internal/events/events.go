// Package events fans scrape lifecycle events out to SSE subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is the wire envelope each subscriber receives, one JSON object
// per SSE data line.
type Event struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds the envelope for one event. Marshal failures degrade to an
// envelope without data; events are advisory, never load-bearing.
func Encode(typ string, payload any) string {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	b, _ := json.Marshal(Event{Type: typ, At: time.Now().UTC(), Data: raw})
	return string(b)
}

// Hub is a broadcast fan-out. Publish satisfies the orchestrator's
// EventSink, so the scrape pipeline streams straight to the dashboard.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

func (h *Hub) Subscribe() chan string {
	ch := make(chan string, 10)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Publish encodes and broadcasts one event. Slow subscribers lose events
// rather than stall a scrape worker.
func (h *Hub) Publish(event string, payload any) {
	line := Encode(event, payload)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- line:
		default:
			// drop if slow
		}
	}
}
