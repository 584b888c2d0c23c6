// ABOUTME: HTTP API handlers for rooms, messages, and reservations
// ABOUTME: JSON request parsing, error mapping, and trigger-driven agent turns

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/auth"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/booking"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

// CreateRoomRequest is the JSON request body for POST /api/rooms. Public
// rooms let any authenticated user join by posting their first message.
type CreateRoomRequest struct {
	Name   string `json:"name"`
	Public bool   `json:"public,omitempty"`
}

// JoinRoomRequest is the JSON request body for POST /api/rooms/join.
type JoinRoomRequest struct {
	JoinCode string `json:"join_code"`
}

// RoomResponse is the JSON representation of a room.
type RoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	JoinCode  string `json:"join_code,omitempty"`
	OwnerID   string `json:"owner_id"`
	Public    bool   `json:"public,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ListRoomsResponse is the JSON response for GET /api/rooms.
type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

// MemberResponse is the JSON representation of a room member.
type MemberResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	JoinedAt    string `json:"joined_at"`
}

// RoomDetailResponse is the JSON response for GET /api/rooms/{id}.
type RoomDetailResponse struct {
	RoomResponse
	Members []MemberResponse `json:"members"`
}

// MessageResponse is the JSON representation of a room message.
type MessageResponse struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	SenderID  string          `json:"sender_id"`
	Kind      string          `json:"kind"`
	Content   string          `json:"content"`
	Card      json.RawMessage `json:"card,omitempty"`
	Seq       int64           `json:"seq"`
	CreatedAt string          `json:"created_at"`
}

// ListMessagesResponse is the JSON response for GET /api/rooms/{id}/messages.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// PostMessageRequest is the JSON request body for POST /api/rooms/{id}/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
	// InvokeAgent requests an agent turn regardless of mentions or cadence.
	InvokeAgent bool `json:"invoke_agent,omitempty"`
}

// PostMessageResponse is the JSON response for a posted message. TurnID is
// set when the message triggered an agent turn.
type PostMessageResponse struct {
	Message MessageResponse `json:"message"`
	TurnID  string          `json:"turn_id,omitempty"`
}

// SelectSlotRequest is the JSON request body for reservation slot selection.
type SelectSlotRequest struct {
	SlotIndex int `json:"slot_index"`
}

// ConfirmReservationRequest is the JSON request body for booking the held slot.
type ConfirmReservationRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ReservationResponse is the JSON representation of a reservation attempt.
type ReservationResponse struct {
	Phase            string `json:"phase"`
	BusinessID       string `json:"business_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Covers           int    `json:"covers"`
	HoldID           string `json:"hold_id,omitempty"`
	HoldExpiresAt    string `json:"hold_expires_at,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	FailReason       string `json:"fail_reason,omitempty"`
}

// SavePlaceRequest is the JSON request body for POST /api/places.
type SavePlaceRequest struct {
	BusinessID string   `json:"business_id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	Price      string   `json:"price,omitempty"`
}

// PlaceResponse is one saved place in the caller's collection.
type PlaceResponse struct {
	BusinessID string   `json:"business_id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	Price      string   `json:"price,omitempty"`
	SavedAt    string   `json:"saved_at"`
}

// ListPlacesResponse is the JSON response for GET /api/places.
type ListPlacesResponse struct {
	Places []PlaceResponse `json:"places"`
}

func (g *Gateway) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	rm, err := g.rooms.Create(r.Context(), req.Name, id.UserID, id.DisplayName, req.Public)
	if err != nil {
		g.logger.Error("creating room", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusCreated, roomResponse(rm, true))
}

func (g *Gateway) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.JoinCode == "" {
		g.sendJSONError(w, http.StatusBadRequest, "join_code is required")
		return
	}

	rm, err := g.rooms.Join(r.Context(), req.JoinCode, id.UserID, id.DisplayName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "no room with that join code")
			return
		}
		g.logger.Error("joining room", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, roomResponse(rm, true))
}

func (g *Gateway) handleListRooms(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomList, err := g.rooms.List(r.Context(), id.UserID)
	if err != nil {
		g.logger.Error("listing rooms", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListRoomsResponse{Rooms: make([]RoomResponse, 0, len(roomList))}
	for _, rm := range roomList {
		resp.Rooms = append(resp.Rooms, roomResponse(rm, false))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	rm, err := g.rooms.Get(r.Context(), roomID, id.UserID)
	if err != nil {
		g.sendRoomError(w, err)
		return
	}
	members, err := g.rooms.Members(r.Context(), roomID)
	if err != nil {
		g.logger.Error("listing members", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := RoomDetailResponse{RoomResponse: roomResponse(rm, true)}
	for _, m := range members {
		resp.Members = append(resp.Members, MemberResponse{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			JoinedAt:    m.JoinedAt.Format(time.RFC3339),
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	if err := g.rooms.Delete(r.Context(), roomID, id.UserID); err != nil {
		if errors.Is(err, room.ErrForbidden) {
			g.sendJSONError(w, http.StatusForbidden, "only the room owner can delete it")
			return
		}
		g.sendRoomError(w, err)
		return
	}
	g.trigger.Forget(roomID)
	// Orphan any held reservation before dropping the turn, so the
	// sweeper releases it once the hold deadline passes.
	g.runner.AbandonPending(r.Context(), roomID)
	g.runner.CancelRoom(roomID)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	if err := g.rooms.Leave(r.Context(), roomID, id.UserID); err != nil {
		g.sendRoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	if _, err := g.rooms.Get(r.Context(), roomID, id.UserID); err != nil {
		g.sendRoomError(w, err)
		return
	}

	afterSeq := parseInt64(r.URL.Query().Get("after_seq"), 0)
	limit := int(parseInt64(r.URL.Query().Get("limit"), 0))
	msgs, err := g.rooms.History(r.Context(), roomID, afterSeq, limit)
	if err != nil {
		g.logger.Error("reading history", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListMessagesResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageResponse(m))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	req, err := parsePostMessage(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.rooms.EnsureMember(r.Context(), roomID, id.UserID, id.DisplayName); err != nil {
		g.sendRoomError(w, err)
		return
	}

	msg, err := g.rooms.Post(r.Context(), &store.Message{
		RoomID:   roomID,
		SenderID: id.UserID,
		Kind:     store.MessageKindText,
		Content:  req.Content,
	})
	if err != nil {
		g.logger.Error("posting message", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := PostMessageResponse{Message: messageResponse(msg)}
	decision := g.trigger.Observe(roomID, id.UserID, req.Content, req.InvokeAgent)
	if decision.Fire {
		prompt := req.Content
		if decision.Reason == trigger.ReasonMention {
			prompt = g.trigger.Evaluator().StripMention(prompt)
		}
		resp.TurnID = g.runner.StartTurn(roomID, decision.Reason, prompt)
		// The streak is consumed only by a turn that actually started; a
		// skipped start leaves the counter armed for the next message.
		if resp.TurnID != "" {
			g.trigger.Commit(roomID)
		}
	}
	g.writeJSON(w, http.StatusCreated, resp)
}

func (g *Gateway) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	var req SelectSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := g.rooms.Get(r.Context(), roomID, id.UserID); err != nil {
		g.sendRoomError(w, err)
		return
	}

	st, err := g.runner.SelectSlot(r.Context(), roomID, req.SlotIndex)
	if err != nil {
		g.sendJSONError(w, http.StatusConflict, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, reservationResponse(st))
}

func (g *Gateway) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	var req ConfirmReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := g.rooms.Get(r.Context(), roomID, id.UserID); err != nil {
		g.sendRoomError(w, err)
		return
	}

	st, err := g.runner.ConfirmReservation(r.Context(), roomID, booking.Contact{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		status := http.StatusConflict
		var callErr *tools.CallError
		if errors.As(err, &callErr) && callErr.Outcome == tools.OutcomeValidationError {
			status = http.StatusBadRequest
		}
		g.sendJSONError(w, status, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, reservationResponse(st))
}

func (g *Gateway) handleSavePlace(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	var req SavePlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BusinessID == "" || req.Name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "business_id and name are required")
		return
	}

	if err := g.profiles.SavePlace(r.Context(), id.UserID, req.BusinessID, req.Name, req.Categories, req.Price); err != nil {
		g.logger.Error("saving place", "user_id", id.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListSavedPlaces(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	saved, err := g.profiles.ListSaved(r.Context(), id.UserID)
	if err != nil {
		g.logger.Error("listing saved places", "user_id", id.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListPlacesResponse{Places: make([]PlaceResponse, 0, len(saved))}
	for _, sig := range saved {
		resp.Places = append(resp.Places, PlaceResponse{
			BusinessID: sig.BusinessID,
			Name:       sig.Name,
			Categories: sig.Categories,
			Price:      sig.PriceTier,
			SavedAt:    sig.CreatedAt.Format(time.RFC3339),
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// sendRoomError maps store lookup errors onto HTTP statuses.
func (g *Gateway) sendRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, store.ErrNotMember):
		g.sendJSONError(w, http.StatusForbidden, "not a member of this room")
	default:
		g.logger.Error("room lookup failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// parsePostMessage parses and validates a PostMessageRequest from the given
// reader.
func parsePostMessage(r io.Reader) (*PostMessageRequest, error) {
	var req PostMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	return &req, nil
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func roomResponse(rm *store.Room, includeJoinCode bool) RoomResponse {
	resp := RoomResponse{
		ID:        rm.ID,
		Name:      rm.Name,
		OwnerID:   rm.OwnerID,
		Public:    rm.IsPublic,
		CreatedAt: rm.CreatedAt.Format(time.RFC3339),
	}
	if includeJoinCode {
		resp.JoinCode = rm.JoinCode
	}
	return resp
}

func messageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Kind:      m.Kind,
		Content:   m.Content,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
	if m.CardJSON != "" {
		resp.Card = json.RawMessage(m.CardJSON)
	}
	return resp
}

func reservationResponse(st *booking.State) ReservationResponse {
	resp := ReservationResponse{
		Phase:            string(st.Phase),
		BusinessID:       st.BusinessID,
		Date:             st.Date,
		Time:             st.Time,
		Covers:           st.Covers,
		HoldID:           st.HoldID,
		ConfirmationCode: st.ConfirmationCode,
		FailReason:       string(st.Reason),
	}
	if !st.HoldExpiresAt.IsZero() {
		resp.HoldExpiresAt = st.HoldExpiresAt.Format(time.RFC3339)
	}
	return resp
}
