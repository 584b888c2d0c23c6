// ABOUTME: Package documentation for the room package
// ABOUTME: Describes lifecycle, fan-out ordering, and delivery semantics

// Package room manages shared planning rooms: lifecycle, membership, the
// append-only message log, and real-time fan-out to subscribers.
//
// Delivery follows a persist-before-broadcast rule: a message is written to
// the store (which assigns its room-local sequence number) before any
// subscriber is notified. Fan-out itself is at-least-once with bounded
// per-subscriber buffers; slow consumers drop events and recover via
// history replay, deduplicated per connection with a SeenCache.
//
// The Broadcaster publishes through a Transport so events reach
// subscribers on other instances. ProcessTransport is the single-process
// implementation; a networked transport slots in without changing callers.
package room
