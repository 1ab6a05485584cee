// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package activity broadcasts live pipeline events to any number of
// observers. Delivery is best-effort: each subscriber owns a bounded queue,
// and when it is full the oldest queued event is discarded so a slow
// observer never blocks the pipeline.
package activity

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
)

// Type classifies an event.
type Type string

const (
	Idle         Type = "idle"
	Thinking     Type = "thinking"
	Searching    Type = "searching"
	Fetching     Type = "fetching"
	Processing   Type = "processing"
	Embedding    Type = "embedding"
	Synthesizing Type = "synthesizing"
	Complete     Type = "complete"
	Error        Type = "error"
)

const (
	// DefaultBuffer is the queue size used when Subscribe is given none.
	DefaultBuffer = 100
	historySize   = 50
	replaySize    = 10
)

// Event is one activity update.
type Event struct {
	Type          Type     `json:"type"`
	Message       string   `json:"message"`
	Detail        string   `json:"detail,omitempty"`
	APICall       string   `json:"apiCall,omitempty"`
	ArticlesFound *int     `json:"articlesFound,omitempty"`
	Progress      *float64 `json:"progress,omitempty"`
	Timestamp     string   `json:"timestamp"`
	JobID         string   `json:"jobId,omitempty"`
}

// Subscription is one observer's queue. Read events from C until it is
// closed by Unsubscribe.
type Subscription struct {
	ID string
	C  <-chan Event

	ch      chan Event
	dropped atomic.Int64
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Hub fans events out to subscribers and keeps a short history for late
// joiners. The zero value is not usable; call NewHub.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	current Event
	history []Event
	now     func() time.Time
	log     *zap.Logger
}

// NewHub returns a hub whose current activity is idle.
func NewHub(log *zap.Logger) *Hub {
	h := &Hub{
		subs: make(map[string]*Subscription),
		now:  time.Now,
		log:  logger.OrNop(log),
	}
	h.current = Event{Type: Idle, Message: "Ready", Timestamp: h.stamp()}
	return h
}

func (h *Hub) stamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}

// Subscribe registers a new observer with a queue of the given size. The
// queue is primed with the current activity followed by up to 20 of the
// most recent non-idle events, trimmed to fit the queue.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch <- h.current
	replay := h.history
	if len(replay) > replaySize {
		replay = replay[len(replay)-replaySize:]
	}
	if room := buffer - 1; len(replay) > room {
		replay = replay[len(replay)-room:]
	}
	for _, e := range replay {
		ch <- e
	}
	h.subs[sub.ID] = sub
	h.log.Debug("activity subscriber added", zap.String("id", sub.ID), zap.Int("subscribers", len(h.subs)))
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Publish records e as the current activity and queues it for every
// subscriber without blocking. A missing timestamp is filled in.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Timestamp == "" {
		e.Timestamp = h.stamp()
	}
	h.current = e
	if e.Type != Idle {
		h.history = append(h.history, e)
		if len(h.history) > historySize {
			h.history = append(h.history[:0:0], h.history[len(h.history)-historySize:]...)
		}
	}

	for _, sub := range h.subs {
		h.deliver(sub, e)
	}
}

// deliver queues e, evicting the oldest queued event when the queue is
// full. Must be called with h.mu held.
func (h *Hub) deliver(sub *Subscription, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}

	// Evict one event. The reader may have drained the queue in between, in
	// which case nothing is lost.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		metrics.ActivityDroppedTotal.Inc()
		h.log.Debug("activity queue full, dropped oldest event", zap.String("id", sub.ID))
	default:
	}

	select {
	case sub.ch <- e:
	default:
		// Only Publish sends, and it holds the lock, so the slot freed above
		// is still free. Count it anyway rather than block.
		sub.dropped.Add(1)
		metrics.ActivityDroppedTotal.Inc()
	}
}

// Current returns the latest published event.
func (h *Hub) Current() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// History returns up to limit of the most recent non-idle events, oldest
// first.
func (h *Hub) History(limit int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]Event, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Int returns a pointer to n, for Event.ArticlesFound.
func Int(n int) *int { return &n }

// Float returns a pointer to f, for Event.Progress.
func Float(f float64) *float64 { return &f }
