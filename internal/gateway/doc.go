// Package gateway exposes the tastethreads HTTP API.
//
// # Overview
//
// The gateway wires the room service, trigger coordinator, and agent
// runner behind a JSON API with a server-sent event stream per room.
// All endpoints except the health check require a JWT.
//
// # Endpoints
//
//	GET    /api/healthz                             liveness probe (open)
//	POST   /api/rooms                               create a room
//	POST   /api/rooms/join                          join by code
//	GET    /api/rooms                               list the caller's rooms
//	GET    /api/rooms/{id}                          room detail with members
//	DELETE /api/rooms/{id}                          delete (owner only)
//	POST   /api/rooms/{id}/leave                    leave a room
//	GET    /api/rooms/{id}/messages                 history after a cursor
//	POST   /api/rooms/{id}/messages                 post, may trigger a turn
//	                                                (joins public rooms)
//	GET    /api/rooms/{id}/events                   SSE stream
//	POST   /api/rooms/{id}/reservations/select      hold an offered slot
//	POST   /api/rooms/{id}/reservations/confirm     book the active hold
//	POST   /api/places                              save a place for the caller
//	GET    /api/places                              list the caller's saved places
//
// # Event Stream
//
// The events endpoint replays history after the client's after_seq cursor,
// then forwards live events. Event types:
//
//	message      a persisted room message
//	typing       ephemeral typing indicator
//	turn_status  agent turn lifecycle (started, completed, canceled, failed)
//	increment    partial agent output while a turn streams
//	ready        replay finished, live events follow
//
// A subscriber that falls behind an in-flight turn stream loses only the
// increments; the final message still arrives as a regular message event.
package gateway
