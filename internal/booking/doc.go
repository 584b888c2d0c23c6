// ABOUTME: Package documentation for the booking package
// ABOUTME: Describes the reservation phase machine and hold reconciliation

// Package booking drives restaurant reservations through a fixed phase
// machine: openings, hold, book, with a terminal Failed phase reachable
// from any step. Empty openings terminate with no-availability (a
// successful-but-empty result, not an error), stale holds terminate with
// hold-expired before any book call, and booking is idempotent per hold.
//
// Every hold is written to the store when acquired. A background Sweeper
// closes out holds whose external window lapsed, including holds orphaned
// by canceled turns, and posts a visible notice to the room.
package booking
