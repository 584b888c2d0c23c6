// ABOUTME: Package documentation for the store package
// ABOUTME: Describes persistence responsibilities and the Store interface

// Package store provides persistent storage for rooms, members, the
// per-room message log, itineraries, taste signals, and reservation
// records.
//
// The Store interface abstracts the storage backend. The default
// implementation uses SQLite via modernc.org/sqlite (pure Go, no cgo)
// with WAL mode enabled for concurrent reads.
//
// Message sequence numbers are assigned inside the append transaction,
// so each room's log is strictly ordered and gap-free regardless of
// how many writers race on the same room.
package store
