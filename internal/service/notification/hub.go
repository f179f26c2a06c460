package notification

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Event is one message for stream subscribers.
type Event struct {
	Name string
	Data interface{}
}

const subscriberBuffer = 32

// Hub fans events out to every open stream. A subscriber that falls behind
// loses events rather than stalling the others.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]chan Event),
		logger: logger.With().Str("component", "stream_hub").Logger(),
	}
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Warn().Uint64("subscriber", id).Str("event", ev.Name).Msg("subscriber too slow, event dropped")
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
