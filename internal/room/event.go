// ABOUTME: Event types fanned out to room subscribers
// ABOUTME: Covers chat messages, typing indicators, turn status, and membership

package room

import (
	"time"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

// EventType identifies what a room event carries.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventTurnStatus   EventType = "turn_status"
	EventMemberJoined EventType = "member_joined"
	EventMemberLeft   EventType = "member_left"
)

// Turn status values carried by EventTurnStatus events.
const (
	TurnStarted   = "started"
	TurnCompleted = "completed"
	TurnCanceled  = "canceled"
	TurnFailed    = "failed"
)

// Event is a single unit of room fan-out. Message is set only for
// EventMessage; the remaining fields are ephemeral and never persisted.
type Event struct {
	Type    EventType      `json:"type"`
	RoomID  string         `json:"room_id"`
	Message *store.Message `json:"message,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
	TurnID  string         `json:"turn_id,omitempty"`
	Status  string         `json:"status,omitempty"`
	Typing  bool           `json:"typing,omitempty"`
	At      time.Time      `json:"at"`

	// Origin is the broadcaster instance that published the event. It is
	// set on the transport path so an instance can drop its own echo.
	Origin string `json:"-"`
}
