// ABOUTME: Periodic reconciliation of expired and orphaned holds
// ABOUTME: Marks them failed and tells the room so nothing dies silently

package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

// Sweeper walks reservation records whose external hold window has passed
// and closes them out: active holds become hold-expired failures, orphaned
// holds from canceled turns get the same treatment, and the room receives
// a system message either way.
type Sweeper struct {
	store     store.Store
	rooms     *room.Service
	clock     clockwork.Clock
	scheduler gocron.Scheduler
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a sweeper running at the given interval (default one
// minute).
func NewSweeper(st store.Store, rooms *room.Service, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return &Sweeper{
		store:     st,
		rooms:     rooms,
		clock:     clock,
		scheduler: scheduler,
		interval:  interval,
		logger:    logger.With("component", "sweeper"),
	}, nil
}

// Start schedules the sweep job and begins running it.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("scheduling sweep job: %w", err)
	}
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	expired, err := s.store.ListExpiredHolds(ctx, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("listing expired holds: %w", err)
	}

	for _, rec := range expired {
		wasOrphaned := rec.Status == store.ReservationStatusOrphaned
		rec.Status = store.ReservationStatusFailed
		rec.FailReason = string(ReasonHoldExpired)
		rec.UpdatedAt = s.clock.Now().UTC()
		if err := s.store.UpdateReservation(ctx, rec); err != nil {
			s.logger.Warn("closing expired hold", "hold_id", rec.HoldID, "error", err)
			continue
		}

		notice := fmt.Sprintf("A table hold at %s for %s %s expired before it was confirmed.",
			rec.BusinessID, rec.Date, rec.Time)
		if wasOrphaned {
			notice += " It was left over from an interrupted request."
		}
		if _, err := s.rooms.PostSystem(ctx, rec.RoomID, notice); err != nil {
			s.logger.Warn("posting expiry notice", "room_id", rec.RoomID, "error", err)
		}
		s.logger.Info("expired hold closed",
			"hold_id", rec.HoldID, "room_id", rec.RoomID, "was_orphaned", wasOrphaned)
	}
	return nil
}
