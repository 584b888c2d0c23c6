// ABOUTME: Store interface and data types for TasteThreads persistence
// ABOUTME: Defines Room, Message, ItineraryItem and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateRoom is returned when trying to create a room that already exists
var ErrDuplicateRoom = errors.New("room already exists")

// ErrNotMember is returned when the caller is not a member of the room
var ErrNotMember = errors.New("not a member of this room")

// Well-known sender ids. AgentUserID identifies the AI participant that is
// a member of every room; SystemUserID authors join/leave notices.
const (
	AgentUserID  = "00000000-0000-0000-0000-000000000001"
	SystemUserID = "00000000-0000-0000-0000-000000000000"
)

// Message kinds
const (
	MessageKindText   = "text"   // Regular chat message
	MessageKindSystem = "system" // Join/leave/failure notices
	MessageKindCard   = "card"   // Structured card (businesses, reservation prompt)
)

// Room is a persistent group-chat and shared-planning context.
type Room struct {
	ID        string
	Name      string
	JoinCode  string
	OwnerID   string
	IsPublic  bool
	CreatedAt time.Time
}

// Member links a user to a room.
type Member struct {
	RoomID      string
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Message is a single room event in the append-only log. Seq is the
// room-local sequence number assigned at persistence time; messages are
// immutable once appended.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Kind      string // "text", "system", "card"
	Content   string
	CardJSON  string // populated for kind "card"
	Seq       int64
	CreatedAt time.Time
}

// ItineraryItem is one entry of a room's mutable itinerary.
type ItineraryItem struct {
	ID               string
	RoomID           string
	Position         int
	Title            string
	BusinessID       string
	ScheduledFor     *time.Time
	ConfirmationCode string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Place signal sources.
const (
	SignalSourceSaved     = "saved"
	SignalSourceDiscovery = "discovery"
)

// PlaceSignal is one preference signal for a user: a saved place or an
// AI-discovered place. TasteProfiles are derived from these.
type PlaceSignal struct {
	UserID     string
	BusinessID string
	Name       string
	Categories []string
	PriceTier  string // "$".."$$$$", empty if unknown
	Source     string // "saved" or "discovery"
	CreatedAt  time.Time
}

// TasteProfileRow is the cached, serialized form of a computed taste profile.
type TasteProfileRow struct {
	UserID      string
	ProfileJSON string
	ComputedAt  time.Time
}

// Reservation phases persisted for audit and hold reconciliation.
const (
	ReservationStatusHoldActive = "hold_active"
	ReservationStatusBooked     = "booked"
	ReservationStatusFailed     = "failed"
	ReservationStatusOrphaned   = "orphaned"
)

// Reservation records a hold or booking against the external provider.
// Holds left behind by canceled turns stay here with status "orphaned"
// until the sweeper reconciles them.
type Reservation struct {
	ID               string
	RoomID           string
	BusinessID       string
	HoldID           string
	Status           string
	Date             string // YYYY-MM-DD
	Time             string // HH:MM
	Covers           int
	HoldExpiresAt    time.Time
	ConfirmationCode string
	FailReason       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store defines the interface for room, message and reservation persistence.
// AppendMessage must be atomic per room: no two messages in the same room
// may ever be assigned the same sequence number.
type Store interface {
	// Rooms
	CreateRoom(ctx context.Context, room *Room, owner *Member) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	GetRoomByJoinCode(ctx context.Context, code string) (*Room, error)
	DeleteRoom(ctx context.Context, id string) error
	ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error)

	// Membership
	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	ListMembers(ctx context.Context, roomID string) ([]*Member, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// Messages (append-only, room-local sequence assigned on append)
	AppendMessage(ctx context.Context, msg *Message) (int64, error)
	ListMessages(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*Message, error)

	// Itinerary
	ListItinerary(ctx context.Context, roomID string) ([]*ItineraryItem, error)
	UpsertItineraryItem(ctx context.Context, item *ItineraryItem) error
	AttachConfirmation(ctx context.Context, roomID, itemID, code string) error

	// Taste signals and cached profiles
	AddPlaceSignal(ctx context.Context, sig *PlaceSignal) error
	ListPlaceSignals(ctx context.Context, userID string, limit int) ([]*PlaceSignal, error)
	GetTasteProfile(ctx context.Context, userID string) (*TasteProfileRow, error)
	SaveTasteProfile(ctx context.Context, row *TasteProfileRow) error

	// Reservations
	SaveReservation(ctx context.Context, r *Reservation) error
	GetReservationByHold(ctx context.Context, holdID string) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	ListExpiredHolds(ctx context.Context, now time.Time) ([]*Reservation, error)

	// Provider chat session continuity per room
	GetChatID(ctx context.Context, roomID string) (string, error)
	SetChatID(ctx context.Context, roomID, chatID string) error

	// Close releases any resources held by the store
	Close() error
}
