// ABOUTME: Reservation workflow state machine from openings to booked
// ABOUTME: Holds expire externally; a stale confirm never issues a book call

package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
)

// Phase is the current step of a reservation attempt.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseOpeningsRequested Phase = "openings_requested"
	PhaseOpeningsReturned  Phase = "openings_returned"
	PhaseHoldRequested     Phase = "hold_requested"
	PhaseHoldActive        Phase = "hold_active"
	PhaseBookRequested     Phase = "book_requested"
	PhaseBooked            Phase = "booked"
	PhaseFailed            Phase = "failed"
)

// FailReason explains a terminal Failed phase.
type FailReason string

const (
	ReasonNoAvailability FailReason = "no-availability"
	ReasonHoldExpired    FailReason = "hold-expired"
	ReasonToolFailure    FailReason = "tool-failure"
)

// ErrInvalidTransition is returned when a workflow method is called in a
// phase it cannot proceed from.
var ErrInvalidTransition = errors.New("invalid reservation phase transition")

// State is the in-flight reservation for one room. It exists from the first
// openings call until a terminal phase; after Booked the confirmation is
// folded into the itinerary and the state is discarded.
type State struct {
	ID         string
	RoomID     string
	BusinessID string
	Date       string
	Time       string
	Covers     int

	Phase         Phase
	Slots         []tools.Slot
	HoldID        string
	HoldExpiresAt time.Time

	ConfirmationCode string
	Reason           FailReason
	LastErr          error
}

// Terminal reports whether the state can make no further progress.
func (s *State) Terminal() bool {
	return s.Phase == PhaseBooked || s.Phase == PhaseFailed
}

// Contact carries the diner details the provider requires to book.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Workflow drives reservation attempts through the capability router and
// records every hold durably so canceled turns leave a reconcilable trail.
type Workflow struct {
	router *tools.Router
	store  store.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWorkflow creates a reservation workflow. Pass nil clock for real time.
func NewWorkflow(router *tools.Router, st store.Store, clock clockwork.Clock, logger *slog.Logger) *Workflow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		router: router,
		store:  st,
		clock:  clock,
		logger: logger.With("component", "booking"),
	}
}

// Begin creates a fresh Idle state for a detected booking intent.
func (w *Workflow) Begin(roomID, businessID, date, timeOfDay string, covers int) *State {
	return &State{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		BusinessID: businessID,
		Date:       date,
		Time:       timeOfDay,
		Covers:     covers,
		Phase:      PhaseIdle,
	}
}

// RequestOpenings queries available slots. An empty slot list is a
// successful call that terminates the workflow with no-availability; the
// caller is expected to surface alternative suggestions, not a bare error.
func (w *Workflow) RequestOpenings(ctx context.Context, meta tools.CallMeta, st *State) error {
	if st.Phase != PhaseIdle {
		return fmt.Errorf("%w: openings from %s", ErrInvalidTransition, st.Phase)
	}
	st.Phase = PhaseOpeningsRequested

	resp, err := w.router.Openings(ctx, meta, &tools.OpeningsRequest{
		BusinessID: st.BusinessID,
		Date:       st.Date,
		Time:       st.Time,
		Covers:     st.Covers,
	})
	if err != nil {
		w.fail(st, ReasonToolFailure, err)
		return nil
	}

	if len(resp.Slots) == 0 {
		w.fail(st, ReasonNoAvailability, nil)
		return nil
	}

	st.Slots = resp.Slots
	st.Phase = PhaseOpeningsReturned
	return nil
}

// PlaceHold holds the selected slot and durably records it, so a hold left
// behind by a canceled or crashed turn can still be reconciled later.
func (w *Workflow) PlaceHold(ctx context.Context, meta tools.CallMeta, st *State, slot tools.Slot) error {
	if st.Phase != PhaseOpeningsReturned {
		return fmt.Errorf("%w: hold from %s", ErrInvalidTransition, st.Phase)
	}
	st.Phase = PhaseHoldRequested

	resp, err := w.router.Hold(ctx, meta, &tools.HoldRequest{
		BusinessID: st.BusinessID,
		Date:       slot.Date,
		Time:       slot.Time,
		Covers:     st.Covers,
	})
	if err != nil {
		w.fail(st, ReasonToolFailure, err)
		return nil
	}

	st.HoldID = resp.HoldID
	st.HoldExpiresAt = resp.ExpiresAt
	st.Date = slot.Date
	st.Time = slot.Time
	st.Phase = PhaseHoldActive

	now := w.clock.Now().UTC()
	if err := w.store.SaveReservation(ctx, &store.Reservation{
		ID:            st.ID,
		RoomID:        st.RoomID,
		BusinessID:    st.BusinessID,
		HoldID:        st.HoldID,
		Status:        store.ReservationStatusHoldActive,
		Date:          st.Date,
		Time:          st.Time,
		Covers:        st.Covers,
		HoldExpiresAt: st.HoldExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		// The external hold exists either way; losing the record is worse
		// than failing the step.
		w.fail(st, ReasonToolFailure, err)
		return nil
	}
	return nil
}

// Book converts the active hold into a confirmed reservation. Booking is
// idempotent per hold: if this hold already produced a confirmation, the
// existing code is returned without a second provider call. A hold past its
// external expiry fails with hold-expired and never issues the book call.
func (w *Workflow) Book(ctx context.Context, meta tools.CallMeta, st *State, contact Contact) error {
	if st.Phase != PhaseHoldActive {
		return fmt.Errorf("%w: book from %s", ErrInvalidTransition, st.Phase)
	}

	if prior, err := w.store.GetReservationByHold(ctx, st.HoldID); err == nil &&
		prior.Status == store.ReservationStatusBooked {
		st.ConfirmationCode = prior.ConfirmationCode
		st.Phase = PhaseBooked
		return nil
	}

	if w.clock.Now().After(st.HoldExpiresAt) {
		w.fail(st, ReasonHoldExpired, nil)
		w.markStored(ctx, st, store.ReservationStatusFailed, string(ReasonHoldExpired), "")
		return nil
	}
	st.Phase = PhaseBookRequested

	resp, err := w.router.Book(ctx, meta, &tools.BookRequest{
		HoldID:    st.HoldID,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
		Email:     contact.Email,
		Phone:     contact.Phone,
	})
	if err != nil {
		if holdGone(err) {
			w.fail(st, ReasonHoldExpired, err)
			w.markStored(ctx, st, store.ReservationStatusFailed, string(ReasonHoldExpired), "")
			return nil
		}
		w.fail(st, ReasonToolFailure, err)
		w.markStored(ctx, st, store.ReservationStatusFailed, string(ReasonToolFailure), "")
		return nil
	}

	st.ConfirmationCode = resp.ConfirmationCode
	st.Phase = PhaseBooked
	w.markStored(ctx, st, store.ReservationStatusBooked, "", resp.ConfirmationCode)
	return nil
}

// FoldIntoItinerary attaches the booked confirmation to the room itinerary.
// After this the State has no independent life.
func (w *Workflow) FoldIntoItinerary(ctx context.Context, st *State, title string, position int) (*store.ItineraryItem, error) {
	if st.Phase != PhaseBooked {
		return nil, fmt.Errorf("%w: fold from %s", ErrInvalidTransition, st.Phase)
	}

	now := w.clock.Now().UTC()
	var scheduled *time.Time
	if t, err := time.Parse("2006-01-02 15:04", st.Date+" "+st.Time); err == nil {
		scheduled = &t
	}
	item := &store.ItineraryItem{
		ID:               uuid.NewString(),
		RoomID:           st.RoomID,
		Position:         position,
		Title:            title,
		BusinessID:       st.BusinessID,
		ScheduledFor:     scheduled,
		ConfirmationCode: st.ConfirmationCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := w.store.UpsertItineraryItem(ctx, item); err != nil {
		return nil, fmt.Errorf("folding reservation into itinerary: %w", err)
	}
	return item, nil
}

// Abandon records that a turn walked away from an active hold without
// booking or releasing it. The sweeper reconciles these later.
func (w *Workflow) Abandon(ctx context.Context, st *State) {
	if st.Phase != PhaseHoldActive && st.Phase != PhaseBookRequested {
		return
	}
	w.markStored(ctx, st, store.ReservationStatusOrphaned, "turn canceled", "")
	w.logger.Warn("hold orphaned by canceled turn",
		"room_id", st.RoomID, "hold_id", st.HoldID)
}

// FailureMessage renders a terminal state as a chat-ready explanation.
func FailureMessage(st *State) string {
	switch st.Reason {
	case ReasonNoAvailability:
		return fmt.Sprintf("No tables for %d at %s on %s around %s. Want me to check nearby times or another spot?",
			st.Covers, st.BusinessID, st.Date, st.Time)
	case ReasonHoldExpired:
		return "That hold expired before the booking was confirmed. I can grab a fresh slot if you're still in."
	default:
		var ce *tools.CallError
		if errors.As(st.LastErr, &ce) {
			return ce.Describe()
		}
		return "The reservation attempt failed and I couldn't complete the booking."
	}
}

func (w *Workflow) fail(st *State, reason FailReason, err error) {
	st.Phase = PhaseFailed
	st.Reason = reason
	st.LastErr = err
	w.logger.Info("reservation failed",
		"room_id", st.RoomID,
		"business_id", st.BusinessID,
		"reason", reason,
		"error", err)
}

func (w *Workflow) markStored(ctx context.Context, st *State, status, failReason, confirmation string) {
	if st.HoldID == "" {
		return
	}
	rec, err := w.store.GetReservationByHold(ctx, st.HoldID)
	if err != nil {
		w.logger.Warn("reservation record missing on update", "hold_id", st.HoldID, "error", err)
		return
	}
	rec.Status = status
	rec.FailReason = failReason
	rec.ConfirmationCode = confirmation
	rec.UpdatedAt = w.clock.Now().UTC()
	if err := w.store.UpdateReservation(ctx, rec); err != nil {
		w.logger.Warn("updating reservation record", "hold_id", st.HoldID, "error", err)
	}
}

// holdGone reports whether the provider said the hold no longer exists.
func holdGone(err error) bool {
	var pe *tools.ProviderError
	return errors.As(err, &pe) && pe.Code == "HOLD_NOT_FOUND"
}
