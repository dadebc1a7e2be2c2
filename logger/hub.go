// Package logger is the user-facing progress log: numbered lines that can
// be extended later, mirrored to slog and fanned out to subscribers.
package logger

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistory is how many lines a Hub keeps for late subscribers.
const DefaultHistory = 500

// Line is one log event. An Extend event carries only the appended text.
type Line struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Extend  bool      `json:"extend,omitempty"`
}

// Hub implements pipeline.Logger. It is safe for concurrent use.
type Hub struct {
	next atomic.Int64

	mu      sync.Mutex
	history []Line
	max     int
	subs    map[chan Line]struct{}
}

// NewHub returns a hub keeping the last history lines (DefaultHistory when
// history <= 0).
func NewHub(history int) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{max: history, subs: make(map[chan Line]struct{})}
}

// Log records msg and returns its id.
func (h *Hub) Log(msg string) int64 {
	id := h.next.Add(1)
	slog.Info(msg, "log_id", id)
	h.publish(Line{ID: id, Time: time.Now(), Message: msg})
	return id
}

// Extend appends msg to line id.
func (h *Hub) Extend(id int64, msg string) {
	slog.Info(msg, "log_id", id, "extend", true)
	h.publish(Line{ID: id, Time: time.Now(), Message: msg, Extend: true})
}

func (h *Hub) publish(l Line) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, l)
	if len(h.history) > h.max {
		h.history = append(h.history[:0:0], h.history[len(h.history)-h.max:]...)
	}
	for ch := range h.subs {
		select {
		case ch <- l:
		default:
			// slow subscriber, drop
		}
	}
}

// History returns the retained lines, oldest first.
func (h *Hub) History() []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Line(nil), h.history...)
}

// Subscribe returns a channel receiving every line published from now on
// and a function that unsubscribes and closes it. Lines are dropped when
// the channel buffer is full.
func (h *Hub) Subscribe(buffer int) (<-chan Line, func()) {
	ch := make(chan Line, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}
