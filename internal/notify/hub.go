package notify

import (
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer bounds how far a consumer may fall behind before events
// are dropped for it.
const subscriberBuffer = 16

// Hub is an in-process Dispatcher with one fan-out group per owner, the
// equivalent of the chat service's per-user channel groups. Publishing to an
// owner with no subscribers is a no-op.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a consumer for one owner's events. The returned cancel
// function closes the channel and must be called exactly once.
func (h *Hub) Subscribe(ownerID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	group, ok := h.subscribers[ownerID]
	if !ok {
		group = make(map[chan Event]struct{})
		h.subscribers[ownerID] = group
	}
	group[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if group, ok := h.subscribers[ownerID]; ok {
			if _, live := group[ch]; live {
				delete(group, ch)
				close(ch)
			}
			if len(group) == 0 {
				delete(h.subscribers, ownerID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber of the owner without
// blocking. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ownerID string, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[ownerID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("owner_id", ownerID),
				zap.String("type", string(event.Type)),
				zap.String("action", string(event.Action)),
			)
		}
	}
	return nil
}
