// ABOUTME: Per-turn stream relay delivering partial agent output in order
// ABOUTME: Slow subscribers are dropped from the stream, never block the turn

package agent

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// streamBufferSize is each subscriber's increment buffer. A subscriber that
// falls this far behind is cut from the stream.
const streamBufferSize = 32

// Increment statuses carried alongside or instead of text.
const (
	StatusThinking     = "thinking"
	StatusSearching    = "searching"
	StatusCheckingSlot = "checking availability"
	StatusDone         = "done"
	StatusCanceled     = "canceled"
	StatusFailed       = "failed"
)

// Increment is one unit of streamed turn output. Terminal increments are
// always the last thing a surviving subscriber receives for a turn.
type Increment struct {
	TurnID   string `json:"turn_id"`
	Text     string `json:"text,omitempty"`
	Status   string `json:"status,omitempty"`
	Terminal bool   `json:"terminal"`
}

// Stream is the live output of one agent turn. Increments reach each
// subscriber in production order; a subscriber whose buffer fills is
// removed mid-turn and its channel closed without a terminal marker, after
// which it sees only the final persisted message from the room broadcaster.
type Stream struct {
	TurnID string
	RoomID string

	mu      sync.Mutex
	subs    map[string]chan Increment
	history []Increment
	closed  bool
	logger  *slog.Logger
}

func newStream(turnID, roomID string, logger *slog.Logger) *Stream {
	return &Stream{
		TurnID: turnID,
		RoomID: roomID,
		subs:   make(map[string]chan Increment),
		logger: logger,
	}
}

// Subscribe attaches to the stream, replaying increments already produced
// this turn. Returns a nil channel if the stream has ended or the turn is
// too far along to replay.
func (s *Stream) Subscribe() (<-chan Increment, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.history) >= streamBufferSize {
		return nil, ""
	}
	id := uuid.NewString()
	ch := make(chan Increment, streamBufferSize)
	for _, inc := range s.history {
		ch <- inc
	}
	s.subs[id] = ch
	return ch, id
}

// Unsubscribe detaches a subscriber and closes its channel.
func (s *Stream) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// publish delivers an increment to every subscriber, dropping any whose
// buffer is full.
func (s *Stream) publish(inc Increment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.history = append(s.history, inc)
	for id, ch := range s.subs {
		select {
		case ch <- inc:
		default:
			delete(s.subs, id)
			close(ch)
			s.logger.Debug("slow subscriber cut from turn stream",
				"turn_id", s.TurnID, "sub_id", id)
		}
	}
}

// close emits the terminal marker to surviving subscribers and ends the
// stream.
func (s *Stream) close(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	terminal := Increment{TurnID: s.TurnID, Status: status, Terminal: true}
	for id, ch := range s.subs {
		select {
		case ch <- terminal:
		default:
			// Full buffer at the end means the terminal is lost for this
			// subscriber; the closed channel still signals the stream end.
		}
		delete(s.subs, id)
		close(ch)
	}
}

// Relay tracks the active stream per room so connections arriving mid-turn
// can attach.
type Relay struct {
	mu     sync.Mutex
	active map[string]*Stream // roomID -> stream
	logger *slog.Logger
}

// NewRelay creates a stream relay. Pass nil logger for default.
func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		active: make(map[string]*Stream),
		logger: logger.With("component", "relay"),
	}
}

// Begin opens a stream for a turn, replacing any prior stream registration
// for the room.
func (r *Relay) Begin(roomID, turnID string) *Stream {
	s := newStream(turnID, roomID, r.logger)
	r.mu.Lock()
	r.active[roomID] = s
	r.mu.Unlock()
	return s
}

// End closes the stream with the given terminal status and clears the
// room's registration if it still points at this stream.
func (r *Relay) End(s *Stream, status string) {
	s.close(status)
	r.mu.Lock()
	if r.active[s.RoomID] == s {
		delete(r.active, s.RoomID)
	}
	r.mu.Unlock()
}

// Active returns the room's in-flight stream, or nil.
func (r *Relay) Active(roomID string) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[roomID]
}
