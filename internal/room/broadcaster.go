// ABOUTME: In-memory fan-out broadcaster delivering room events to subscribers
// ABOUTME: Bounded per-subscriber channels, slow consumers drop events

package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides pub/sub for room events. Subscribers register for a
// room ID and receive events as they are published. Every publish also goes
// out over the transport, and events arriving from other instances are
// fanned out to local subscribers, so rooms stay in sync across instances.
// Publishing never blocks: a subscriber whose buffer is full loses the
// event, and SSE reconnection with history replay recovers the gap.
type Broadcaster struct {
	id        string
	transport Transport

	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // roomID -> subID -> ch
	cancels     map[string]func()                 // roomID -> transport unsubscribe
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster on an in-process transport. Pass nil
// logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return NewBroadcasterWithTransport(NewProcessTransport(), logger)
}

// NewBroadcasterWithTransport creates a broadcaster on the given transport.
// Broadcasters on separate instances sharing a transport deliver each
// other's events.
func NewBroadcasterWithTransport(transport Transport, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		id:          uuid.New().String(),
		transport:   transport,
		subscribers: make(map[string]map[string]chan *Event),
		cancels:     make(map[string]func()),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events in the given room. Returns a
// channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, roomID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[roomID]; !ok {
		b.subscribers[roomID] = make(map[string]chan *Event)
		if cancel, err := b.transport.Subscribe(roomID, func(ev *Event) {
			// Events this instance published come back off the
			// transport too. Local fan-out already happened.
			if ev.Origin == b.id {
				return
			}
			b.fanOut(roomID, ev, "")
		}); err != nil {
			b.logger.Warn("transport subscribe failed", "room_id", roomID, "error", err)
		} else {
			b.cancels[roomID] = cancel
		}
	}
	b.subscribers[roomID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "room_id", roomID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(roomID, subID)
	}()

	return ch, subID
}

// SubscriberCount returns the number of live subscriptions for a room.
func (b *Broadcaster) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[roomID])
}

// Publish sends an event to all subscribers of the given room and forwards
// it over the transport for other instances. If excludeSubID is non-empty,
// that local subscriber is skipped (used to avoid echoing an event back to
// its originating connection).
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(roomID string, event *Event, excludeSubID string) {
	b.fanOut(roomID, event, excludeSubID)

	tagged := *event
	tagged.Origin = b.id
	if err := b.transport.Publish(roomID, &tagged); err != nil {
		b.logger.Warn("transport publish failed", "room_id", roomID, "error", err)
	}
}

// fanOut delivers an event to this instance's subscribers.
func (b *Broadcaster) fanOut(roomID string, event *Event, excludeSubID string) {
	b.mu.RLock()
	subs, ok := b.subscribers[roomID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *Event, 0, len(subs))
	for id, ch := range subs {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			// Subscriber channel full, drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"room_id", roomID,
				"event_type", event.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(roomID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[roomID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, roomID)
		if cancel, ok := b.cancels[roomID]; ok {
			cancel()
			delete(b.cancels, roomID)
		}
	}

	b.logger.Debug("subscriber removed", "room_id", roomID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, roomID)
		if cancel, ok := b.cancels[roomID]; ok {
			cancel()
			delete(b.cancels, roomID)
		}
	}
}
