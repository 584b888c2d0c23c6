// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides room/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent appends queueing instead of failing with SQLITE_BUSY, and
	// makes the session pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait out short lock contention from other processes on the file.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS rooms (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			join_code  TEXT NOT NULL UNIQUE,
			owner_id   TEXT NOT NULL,
			is_public  INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS room_members (
			room_id      TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			display_name TEXT NOT NULL,
			joined_at    DATETIME NOT NULL,
			PRIMARY KEY (room_id, user_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			room_id    TEXT NOT NULL,
			sender_id  TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT 'text',
			content    TEXT NOT NULL,
			card_json  TEXT,
			seq        INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			UNIQUE (room_id, seq),

			CHECK (kind IN ('text', 'system', 'card'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_room_seq
			ON messages(room_id, seq);

		CREATE TABLE IF NOT EXISTS itinerary_items (
			id                TEXT PRIMARY KEY,
			room_id           TEXT NOT NULL,
			position          INTEGER NOT NULL,
			title             TEXT NOT NULL,
			business_id       TEXT,
			scheduled_for     DATETIME,
			confirmation_code TEXT,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_itinerary_room
			ON itinerary_items(room_id, position);

		CREATE TABLE IF NOT EXISTS place_signals (
			user_id         TEXT NOT NULL,
			business_id     TEXT NOT NULL,
			name            TEXT NOT NULL,
			categories_json TEXT NOT NULL,
			price_tier      TEXT,
			source          TEXT NOT NULL,
			created_at      DATETIME NOT NULL,
			PRIMARY KEY (user_id, business_id, source),

			CHECK (source IN ('saved', 'discovery'))
		);

		CREATE INDEX IF NOT EXISTS idx_place_signals_user
			ON place_signals(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS taste_profiles (
			user_id      TEXT PRIMARY KEY,
			profile_json TEXT NOT NULL,
			computed_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS reservations (
			id                TEXT PRIMARY KEY,
			room_id           TEXT NOT NULL,
			business_id       TEXT NOT NULL,
			hold_id           TEXT NOT NULL UNIQUE,
			status            TEXT NOT NULL,
			date              TEXT NOT NULL,
			time              TEXT NOT NULL,
			covers            INTEGER NOT NULL,
			hold_expires_at   DATETIME NOT NULL,
			confirmation_code TEXT,
			fail_reason       TEXT,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL,

			CHECK (status IN ('hold_active', 'booked', 'failed', 'orphaned'))
		);

		CREATE INDEX IF NOT EXISTS idx_reservations_room ON reservations(room_id);
		CREATE INDEX IF NOT EXISTS idx_reservations_expiry
			ON reservations(status, hold_expires_at);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			room_id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRoom inserts a room together with its owner membership in one
// transaction. Returns ErrDuplicateRoom on id or join-code collision.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *Room, owner *Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, join_code, owner_id, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.JoinCode, room.OwnerID, boolToInt(room.IsPublic), room.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRoom
		}
		return fmt.Errorf("inserting room: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, display_name, joined_at)
		 VALUES (?, ?, ?, ?)`,
		owner.RoomID, owner.UserID, owner.DisplayName, owner.JoinedAt)
	if err != nil {
		return fmt.Errorf("inserting owner membership: %w", err)
	}

	return tx.Commit()
}

// GetRoom retrieves a room by id
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, join_code, owner_id, is_public, created_at
		 FROM rooms WHERE id = ?`, id)
	return scanRoom(row)
}

// GetRoomByJoinCode retrieves a room by its join code
func (s *SQLiteStore) GetRoomByJoinCode(ctx context.Context, code string) (*Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, join_code, owner_id, is_public, created_at
		 FROM rooms WHERE join_code = ?`, code)
	return scanRoom(row)
}

// DeleteRoom removes a room; members, messages, itinerary and chat session
// rows cascade.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRoomsForUser returns all rooms the user is a member of, newest first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.join_code, r.owner_id, r.is_public, r.created_at
		 FROM rooms r
		 JOIN room_members m ON m.room_id = r.id
		 WHERE m.user_id = ?
		 ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var out []*Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddMember adds a user to a room. Adding an existing member is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, m *Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id, display_name, joined_at)
		 VALUES (?, ?, ?, ?)`,
		m.RoomID, m.UserID, m.DisplayName, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a room
func (s *SQLiteStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotMember
	}
	return nil
}

// ListMembers returns all members of a room in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, user_id, display_name, joined_at
		 FROM room_members WHERE room_id = ? ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsMember reports whether the user belongs to the room
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying membership: %w", err)
	}
	return true, nil
}

// AppendMessage appends a message to the room's log, assigning the next
// room-local sequence number inside the transaction. The UNIQUE(room_id, seq)
// constraint backs the gap-free guarantee even under concurrent writers.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM rooms WHERE id = ?`, msg.RoomID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("checking room: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE room_id = ?`,
		msg.RoomID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("assigning sequence: %w", err)
	}

	var cardJSON sql.NullString
	if msg.CardJSON != "" {
		cardJSON = sql.NullString{String: msg.CardJSON, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, kind, content, card_json, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Kind, msg.Content, cardJSON, seq, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing append: %w", err)
	}

	msg.Seq = seq
	return seq, nil
}

// ListMessages returns up to limit messages with seq > afterSeq in ascending
// sequence order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, kind, content, card_json, seq, created_at
		 FROM messages
		 WHERE room_id = ? AND seq > ?
		 ORDER BY seq ASC
		 LIMIT ?`, roomID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		var cardJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Kind, &m.Content,
			&cardJSON, &m.Seq, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CardJSON = cardJSON.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListItinerary returns the room's itinerary in position order.
func (s *SQLiteStore) ListItinerary(ctx context.Context, roomID string) ([]*ItineraryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, position, title, business_id, scheduled_for,
		        confirmation_code, created_at, updated_at
		 FROM itinerary_items WHERE room_id = ? ORDER BY position`, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying itinerary: %w", err)
	}
	defer rows.Close()

	var out []*ItineraryItem
	for rows.Next() {
		item := &ItineraryItem{}
		var businessID, confirmation sql.NullString
		var scheduled sql.NullTime
		if err := rows.Scan(&item.ID, &item.RoomID, &item.Position, &item.Title,
			&businessID, &scheduled, &confirmation, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning itinerary item: %w", err)
		}
		item.BusinessID = businessID.String
		item.ConfirmationCode = confirmation.String
		if scheduled.Valid {
			t := scheduled.Time
			item.ScheduledFor = &t
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpsertItineraryItem inserts or replaces an itinerary item by id.
func (s *SQLiteStore) UpsertItineraryItem(ctx context.Context, item *ItineraryItem) error {
	var scheduled interface{}
	if item.ScheduledFor != nil {
		scheduled = *item.ScheduledFor
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO itinerary_items
		   (id, room_id, position, title, business_id, scheduled_for,
		    confirmation_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   position = excluded.position,
		   title = excluded.title,
		   business_id = excluded.business_id,
		   scheduled_for = excluded.scheduled_for,
		   confirmation_code = excluded.confirmation_code,
		   updated_at = excluded.updated_at`,
		item.ID, item.RoomID, item.Position, item.Title,
		nullIfEmpty(item.BusinessID), scheduled,
		nullIfEmpty(item.ConfirmationCode), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting itinerary item: %w", err)
	}
	return nil
}

// AttachConfirmation sets the confirmation code on an itinerary item.
func (s *SQLiteStore) AttachConfirmation(ctx context.Context, roomID, itemID, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE itinerary_items SET confirmation_code = ?, updated_at = ?
		 WHERE id = ? AND room_id = ?`,
		code, time.Now().UTC(), itemID, roomID)
	if err != nil {
		return fmt.Errorf("attaching confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPlaceSignal records a saved-place or discovery signal for a user.
func (s *SQLiteStore) AddPlaceSignal(ctx context.Context, sig *PlaceSignal) error {
	catJSON, err := json.Marshal(sig.Categories)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO place_signals
		   (user_id, business_id, name, categories_json, price_tier, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.UserID, sig.BusinessID, sig.Name, string(catJSON),
		nullIfEmpty(sig.PriceTier), sig.Source, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting place signal: %w", err)
	}
	return nil
}

// ListPlaceSignals returns the user's signals, newest first.
func (s *SQLiteStore) ListPlaceSignals(ctx context.Context, userID string, limit int) ([]*PlaceSignal, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, business_id, name, categories_json, price_tier, source, created_at
		 FROM place_signals WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying place signals: %w", err)
	}
	defer rows.Close()

	var out []*PlaceSignal
	for rows.Next() {
		sig := &PlaceSignal{}
		var catJSON string
		var priceTier sql.NullString
		if err := rows.Scan(&sig.UserID, &sig.BusinessID, &sig.Name,
			&catJSON, &priceTier, &sig.Source, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning place signal: %w", err)
		}
		sig.PriceTier = priceTier.String
		if err := json.Unmarshal([]byte(catJSON), &sig.Categories); err != nil {
			return nil, fmt.Errorf("decoding categories: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// GetTasteProfile returns the cached profile row for a user.
func (s *SQLiteStore) GetTasteProfile(ctx context.Context, userID string) (*TasteProfileRow, error) {
	row := &TasteProfileRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, profile_json, computed_at FROM taste_profiles WHERE user_id = ?`,
		userID).Scan(&row.UserID, &row.ProfileJSON, &row.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying taste profile: %w", err)
	}
	return row, nil
}

// SaveTasteProfile upserts the cached profile row for a user.
func (s *SQLiteStore) SaveTasteProfile(ctx context.Context, row *TasteProfileRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO taste_profiles (user_id, profile_json, computed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   profile_json = excluded.profile_json,
		   computed_at = excluded.computed_at`,
		row.UserID, row.ProfileJSON, row.ComputedAt)
	if err != nil {
		return fmt.Errorf("saving taste profile: %w", err)
	}
	return nil
}

// SaveReservation inserts a reservation record.
func (s *SQLiteStore) SaveReservation(ctx context.Context, r *Reservation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations
		   (id, room_id, business_id, hold_id, status, date, time, covers,
		    hold_expires_at, confirmation_code, fail_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RoomID, r.BusinessID, r.HoldID, r.Status, r.Date, r.Time, r.Covers,
		r.HoldExpiresAt, nullIfEmpty(r.ConfirmationCode), nullIfEmpty(r.FailReason),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

// GetReservationByHold retrieves a reservation by its hold id.
func (s *SQLiteStore) GetReservationByHold(ctx context.Context, holdID string) (*Reservation, error) {
	r := &Reservation{}
	var confirmation, failReason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, business_id, hold_id, status, date, time, covers,
		        hold_expires_at, confirmation_code, fail_reason, created_at, updated_at
		 FROM reservations WHERE hold_id = ?`, holdID).
		Scan(&r.ID, &r.RoomID, &r.BusinessID, &r.HoldID, &r.Status, &r.Date, &r.Time,
			&r.Covers, &r.HoldExpiresAt, &confirmation, &failReason, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}
	r.ConfirmationCode = confirmation.String
	r.FailReason = failReason.String
	return r, nil
}

// UpdateReservation rewrites the mutable fields of a reservation.
func (s *SQLiteStore) UpdateReservation(ctx context.Context, r *Reservation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?, confirmation_code = ?, fail_reason = ?, updated_at = ?
		 WHERE id = ?`,
		r.Status, nullIfEmpty(r.ConfirmationCode), nullIfEmpty(r.FailReason),
		r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredHolds returns active or orphaned holds whose external expiry
// has passed.
func (s *SQLiteStore) ListExpiredHolds(ctx context.Context, now time.Time) ([]*Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, business_id, hold_id, status, date, time, covers,
		        hold_expires_at, confirmation_code, fail_reason, created_at, updated_at
		 FROM reservations
		 WHERE status IN ('hold_active', 'orphaned') AND hold_expires_at < ?`, now)
	if err != nil {
		return nil, fmt.Errorf("querying expired holds: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		r := &Reservation{}
		var confirmation, failReason sql.NullString
		if err := rows.Scan(&r.ID, &r.RoomID, &r.BusinessID, &r.HoldID, &r.Status,
			&r.Date, &r.Time, &r.Covers, &r.HoldExpiresAt, &confirmation, &failReason,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		r.ConfirmationCode = confirmation.String
		r.FailReason = failReason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetChatID returns the provider chat id stored for the room, or "" if none.
func (s *SQLiteStore) GetChatID(ctx context.Context, roomID string) (string, error) {
	var chatID string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id FROM chat_sessions WHERE room_id = ?`, roomID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying chat session: %w", err)
	}
	return chatID, nil
}

// SetChatID stores the provider chat id for the room.
func (s *SQLiteStore) SetChatID(ctx context.Context, roomID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (room_id, chat_id) VALUES (?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET chat_id = excluded.chat_id`,
		roomID, chatID)
	if err != nil {
		return fmt.Errorf("saving chat session: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(sc scanner) (*Room, error) {
	r := &Room{}
	var isPublic int
	err := sc.Scan(&r.ID, &r.Name, &r.JoinCode, &r.OwnerID, &isPublic, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	r.IsPublic = isPublic != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
