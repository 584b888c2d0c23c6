// ABOUTME: Pub/sub transport seam carrying room events between instances
// ABOUTME: ProcessTransport is the single-process implementation

package room

import (
	"sync"

	"github.com/google/uuid"
)

// Transport carries room events between service instances. The broadcaster
// forwards every local publish through the transport and fans incoming
// events out to its local subscribers, so a networked implementation gives
// cross-instance delivery without touching any caller.
type Transport interface {
	// Publish sends an event to every instance subscribed to the room,
	// including the publisher's own.
	Publish(roomID string, event *Event) error

	// Subscribe registers a delivery callback for a room. The returned
	// cancel func stops delivery. Callbacks must not block.
	Subscribe(roomID string, deliver func(*Event)) (cancel func(), err error)
}

// ProcessTransport is an in-process Transport. Events published on it are
// delivered synchronously to every registered callback for the room.
type ProcessTransport struct {
	mu       sync.RWMutex
	handlers map[string]map[string]func(*Event) // roomID -> handlerID -> fn
}

// NewProcessTransport creates an in-process transport.
func NewProcessTransport() *ProcessTransport {
	return &ProcessTransport{
		handlers: make(map[string]map[string]func(*Event)),
	}
}

// Publish delivers the event to all callbacks registered for the room.
func (t *ProcessTransport) Publish(roomID string, event *Event) error {
	t.mu.RLock()
	targets := make([]func(*Event), 0, len(t.handlers[roomID]))
	for _, fn := range t.handlers[roomID] {
		targets = append(targets, fn)
	}
	t.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

// Subscribe registers a callback for the room's events.
func (t *ProcessTransport) Subscribe(roomID string, deliver func(*Event)) (func(), error) {
	id := uuid.New().String()

	t.mu.Lock()
	if _, ok := t.handlers[roomID]; !ok {
		t.handlers[roomID] = make(map[string]func(*Event))
	}
	t.handlers[roomID][id] = deliver
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if subs, ok := t.handlers[roomID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(t.handlers, roomID)
			}
		}
	}
	return cancel, nil
}
