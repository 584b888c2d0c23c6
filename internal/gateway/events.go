// ABOUTME: SSE event stream for room subscribers with history replay
// ABOUTME: Bridges the broadcaster and turn stream relay onto one connection

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/agent"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/auth"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
)

// seenTTL covers the window where a message can arrive via both the history
// replay and the live broadcaster.
const seenTTL = 2 * time.Minute

const seenMaxSize = 4096

// handleEvents serves GET /api/rooms/{id}/events as a server-sent event
// stream. The client receives history after its cursor, then live events.
// While an agent turn is running its partial output rides the same
// connection as "increment" events.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roomID := r.PathValue("id")

	if _, err := g.rooms.Get(r.Context(), roomID, id.UserID); err != nil {
		g.sendRoomError(w, err)
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()

	// Subscribe before replaying history so nothing published in between is
	// missed. The seen cache drops the overlap.
	events, _ := g.rooms.Broadcaster().Subscribe(ctx, roomID)
	seen := room.NewSeenCache(seenTTL, seenMaxSize)

	afterSeq := parseInt64(r.URL.Query().Get("after_seq"), 0)
	history, err := g.rooms.History(ctx, roomID, afterSeq, 0)
	if err != nil {
		g.logger.Error("replaying history", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	for _, m := range history {
		seen.CheckAndMark(m.ID)
		g.writeSSEEvent(w, "message", messageResponse(m))
	}

	// Attach to a turn already streaming when the client connects.
	var increments <-chan agent.Increment
	var incSubID string
	var activeStream *agent.Stream
	if s := g.runner.Relay().Active(roomID); s != nil {
		activeStream = s
		increments, incSubID = s.Subscribe()
	}
	defer func() {
		if activeStream != nil {
			activeStream.Unsubscribe(incSubID)
		}
	}()

	g.writeSSEEvent(w, "ready", map[string]string{"room_id": roomID})
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case room.EventMessage:
				if ev.Message == nil || seen.CheckAndMark(ev.Message.ID) {
					continue
				}
				g.writeSSEEvent(w, "message", messageResponse(ev.Message))
			case room.EventTurnStatus:
				// A starting turn means a fresh stream to attach to.
				if ev.Status == room.TurnStarted {
					if activeStream != nil {
						activeStream.Unsubscribe(incSubID)
						activeStream = nil
						increments = nil
					}
					if s := g.runner.Relay().Active(roomID); s != nil && s.TurnID == ev.TurnID {
						activeStream = s
						increments, incSubID = s.Subscribe()
					}
				}
				g.writeSSEEvent(w, "turn_status", map[string]string{
					"turn_id": ev.TurnID,
					"status":  ev.Status,
				})
			case room.EventTyping:
				g.writeSSEEvent(w, "typing", map[string]any{
					"user_id": ev.UserID,
					"typing":  ev.Typing,
				})
			default:
				g.writeSSEEvent(w, string(ev.Type), eventBody(ev))
			}
			flusher.Flush()

		case inc, ok := <-increments:
			if !ok {
				// Cut mid-turn or stream ended. Either way the final message
				// arrives through the broadcaster.
				activeStream = nil
				increments = nil
				continue
			}
			g.writeSSEEvent(w, "increment", inc)
			flusher.Flush()
		}
	}
}

// eventBody builds a generic payload for membership events.
func eventBody(ev *room.Event) map[string]any {
	return map[string]any{
		"room_id": ev.RoomID,
		"user_id": ev.UserID,
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
