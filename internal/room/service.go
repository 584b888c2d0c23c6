// ABOUTME: Room lifecycle and message posting with persist-before-broadcast
// ABOUTME: Every message is durably written before any subscriber sees it

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

// ErrForbidden is returned when a user attempts an operation reserved for
// the room owner.
var ErrForbidden = errors.New("operation not allowed for this user")

// Service manages room lifecycle and the message log, fanning out events
// after each durable write.
type Service struct {
	store       store.Store
	broadcaster *Broadcaster
	logger      *slog.Logger

	mu        sync.Mutex
	postLocks map[string]*sync.Mutex // per-room append+publish ordering
}

// NewService creates a room service.
func NewService(st store.Store, b *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: b,
		logger:      logger.With("component", "rooms"),
	}
}

// Broadcaster exposes the underlying fan-out for SSE subscriptions.
func (s *Service) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Create makes a new room owned by the given user and adds them as the
// first member. Public rooms accept new members on their first post,
// without a join code.
func (s *Service) Create(ctx context.Context, name, ownerID, displayName string, public bool) (*store.Room, error) {
	now := time.Now().UTC()
	r := &store.Room{
		ID:        uuid.NewString(),
		Name:      name,
		JoinCode:  newJoinCode(),
		OwnerID:   ownerID,
		IsPublic:  public,
		CreatedAt: now,
	}
	owner := &store.Member{
		RoomID:      r.ID,
		UserID:      ownerID,
		DisplayName: displayName,
		JoinedAt:    now,
	}

	// Join codes are 6 chars of a UUID; retry once on the rare collision.
	err := s.store.CreateRoom(ctx, r, owner)
	if errors.Is(err, store.ErrDuplicateRoom) {
		r.JoinCode = newJoinCode()
		err = s.store.CreateRoom(ctx, r, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	s.logger.Info("room created", "room_id", r.ID, "owner_id", ownerID)
	return r, nil
}

// Join adds a user to the room matching the join code and announces the
// arrival to existing members.
func (s *Service) Join(ctx context.Context, joinCode, userID, displayName string) (*store.Room, error) {
	r, err := s.store.GetRoomByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		return nil, fmt.Errorf("looking up join code: %w", err)
	}

	if err := s.store.AddMember(ctx, &store.Member{
		RoomID:      r.ID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("adding member: %w", err)
	}

	s.broadcaster.Publish(r.ID, &Event{
		Type:   EventMemberJoined,
		RoomID: r.ID,
		UserID: userID,
		At:     time.Now().UTC(),
	}, "")

	return r, nil
}

// Leave removes a user from a room and announces the departure.
func (s *Service) Leave(ctx context.Context, roomID, userID string) error {
	if err := s.store.RemoveMember(ctx, roomID, userID); err != nil {
		return err
	}
	s.broadcaster.Publish(roomID, &Event{
		Type:   EventMemberLeft,
		RoomID: roomID,
		UserID: userID,
		At:     time.Now().UTC(),
	}, "")
	return nil
}

// Delete removes a room. Only the owner may delete it.
func (s *Service) Delete(ctx context.Context, roomID, userID string) error {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.OwnerID != userID {
		return ErrForbidden
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.postLocks, roomID)
	s.mu.Unlock()
	return nil
}

// Get returns a room if the user is a member of it.
func (s *Service) Get(ctx context.Context, roomID, userID string) (*store.Room, error) {
	ok, err := s.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotMember
	}
	return s.store.GetRoom(ctx, roomID)
}

// EnsureMember checks that the user belongs to the room. For public rooms
// a non-member is joined on the spot and the arrival is announced; private
// rooms return store.ErrNotMember.
func (s *Service) EnsureMember(ctx context.Context, roomID, userID, displayName string) error {
	ok, err := s.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.IsPublic {
		return store.ErrNotMember
	}

	if err := s.store.AddMember(ctx, &store.Member{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("joining public room: %w", err)
	}
	s.broadcaster.Publish(roomID, &Event{
		Type:   EventMemberJoined,
		RoomID: roomID,
		UserID: userID,
		At:     time.Now().UTC(),
	}, "")
	return nil
}

// List returns the rooms the user belongs to.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Room, error) {
	return s.store.ListRoomsForUser(ctx, userID)
}

// Members returns the member list of a room.
func (s *Service) Members(ctx context.Context, roomID string) ([]*store.Member, error) {
	return s.store.ListMembers(ctx, roomID)
}

// Post appends a message to the room log and broadcasts it to subscribers.
// The message is assigned an ID and sequence number; the broadcast happens
// strictly after the write commits, so any event a subscriber receives is
// already recoverable from history. The append and the broadcast are one
// step under the room's post lock, so subscribers see messages in the same
// order the store sequenced them.
func (s *Service) Post(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	lk := s.postLock(msg.RoomID)
	lk.Lock()
	defer lk.Unlock()

	if _, err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.broadcaster.Publish(msg.RoomID, &Event{
		Type:    EventMessage,
		RoomID:  msg.RoomID,
		Message: msg,
		At:      msg.CreatedAt,
	}, "")

	return msg, nil
}

func (s *Service) postLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postLocks == nil {
		s.postLocks = make(map[string]*sync.Mutex)
	}
	lk, ok := s.postLocks[roomID]
	if !ok {
		lk = &sync.Mutex{}
		s.postLocks[roomID] = lk
	}
	return lk
}

// PostSystem posts a system notice (joins, failures, reservations) into the
// room log as the system sender.
func (s *Service) PostSystem(ctx context.Context, roomID, content string) (*store.Message, error) {
	return s.Post(ctx, &store.Message{
		RoomID:   roomID,
		SenderID: store.SystemUserID,
		Kind:     store.MessageKindSystem,
		Content:  content,
	})
}

// History returns messages with seq > afterSeq in ascending order.
func (s *Service) History(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, roomID, afterSeq, limit)
}

// PublishTyping broadcasts an ephemeral typing indicator. Nothing is
// persisted.
func (s *Service) PublishTyping(roomID, userID string, typing bool) {
	s.broadcaster.Publish(roomID, &Event{
		Type:   EventTyping,
		RoomID: roomID,
		UserID: userID,
		Typing: typing,
		At:     time.Now().UTC(),
	}, "")
}

// PublishTurnStatus broadcasts an ephemeral agent turn status change.
func (s *Service) PublishTurnStatus(roomID, turnID, status string) {
	s.broadcaster.Publish(roomID, &Event{
		Type:   EventTurnStatus,
		RoomID: roomID,
		TurnID: turnID,
		Status: status,
		At:     time.Now().UTC(),
	}, "")
}

func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
