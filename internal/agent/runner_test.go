// ABOUTME: Tests for the agent turn runner
// ABOUTME: Covers reply/search/booking turns, overlap rules, and failure paths

package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/booking"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/llm"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

// searchProvider is a live provider stub for discovery search.
type searchProvider struct {
	businesses []tools.Business
}

func (p *searchProvider) Search(context.Context, *tools.SearchRequest) (*tools.SearchResponse, error) {
	return &tools.SearchResponse{
		Text:       "Try these.",
		Businesses: p.businesses,
		ChatID:     "chat-77",
	}, nil
}

func (p *searchProvider) Detail(_ context.Context, req *tools.DetailRequest) (*tools.DetailResponse, error) {
	return &tools.DetailResponse{
		Photos: []string{"https://img.example/" + req.BusinessID + ".jpg"},
	}, nil
}

func (p *searchProvider) Openings(_ context.Context, req *tools.OpeningsRequest) (*tools.OpeningsResponse, error) {
	return &tools.OpeningsResponse{}, nil
}

func (p *searchProvider) Hold(context.Context, *tools.HoldRequest) (*tools.HoldResponse, error) {
	return &tools.HoldResponse{}, nil
}

func (p *searchProvider) Book(context.Context, *tools.BookRequest) (*tools.BookResponse, error) {
	return &tools.BookResponse{}, nil
}

// blockingPlanner parks until released, to keep a turn in flight.
type blockingPlanner struct {
	release chan struct{}
}

func (p *blockingPlanner) Plan(ctx context.Context, _ *llm.Request) (*llm.Plan, error) {
	select {
	case <-p.release:
		return &llm.Plan{Action: llm.ActionReply, Reply: "done waiting"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type runnerFixture struct {
	runner *Runner
	rooms  *room.Service
	store  *store.SQLiteStore
	room   *store.Room
}

func newRunnerFixture(t *testing.T, planner llm.Planner) *runnerFixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := room.NewBroadcaster(nil)
	t.Cleanup(b.Close)
	rooms := room.NewService(st, b, nil)

	router := tools.NewRouter(tools.RouterConfig{
		Live:        &searchProvider{businesses: []tools.Business{{ID: "biz-1", Name: "Nopa", Categories: []string{"californian"}, Price: "$$$"}}},
		Canned:      tools.NewCannedProvider(nil),
		TestMode:    true,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})
	workflow := booking.NewWorkflow(router, st, nil, nil)
	assembler := NewAssembler(st, nil, &llm.StubSummarizer{}, 0, nil)

	runner := NewRunner(RunnerConfig{
		Store:     st,
		Rooms:     rooms,
		Assembler: assembler,
		Relay:     NewRelay(nil),
		Planner:   planner,
		Router:    router,
		Workflow:  workflow,
	})

	r, err := rooms.Create(t.Context(), "dinner", "user-1", "alice", false)
	require.NoError(t, err)
	return &runnerFixture{runner: runner, rooms: rooms, store: st, room: r}
}

func (f *runnerFixture) history(t *testing.T) []*store.Message {
	t.Helper()
	msgs, err := f.rooms.History(t.Context(), f.room.ID, 0, 50)
	require.NoError(t, err)
	return msgs
}

func TestReplyTurnPersistsAgentMessage(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{})

	events, _ := f.rooms.Broadcaster().Subscribe(t.Context(), f.room.ID)

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonCadence, "where should we eat?")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	msgs := f.history(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.AgentUserID, msgs[0].SenderID)
	assert.Equal(t, "noted: where should we eat?", msgs[0].Content)

	// The broadcaster carried turn status, the persisted message, and a
	// completion status.
	var statuses []string
	var sawMessage bool
	deadline := time.After(2 * time.Second)
	for len(statuses) < 2 || !sawMessage {
		select {
		case ev := <-events:
			switch ev.Type {
			case room.EventTurnStatus:
				statuses = append(statuses, ev.Status)
			case room.EventMessage:
				sawMessage = true
			}
		case <-deadline:
			t.Fatal("missing broadcast events")
		}
	}
	assert.Equal(t, room.TurnStarted, statuses[0])
	assert.Equal(t, room.TurnCompleted, statuses[len(statuses)-1])
}

func TestSearchTurnPostsCardAndRecordsDiscoveries(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{Plans: []*llm.Plan{
		{Action: llm.ActionSearch, SearchQuery: "date night sf"},
	}})
	ctx := t.Context()

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonMention, "@tess date night ideas")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	msgs := f.history(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.MessageKindCard, msgs[0].Kind)
	assert.Contains(t, msgs[0].CardJSON, "Nopa")
	// Missing photo backfilled from the detail lookup.
	assert.Contains(t, msgs[0].CardJSON, "https://img.example/biz-1.jpg")

	// Provider chat continuity saved for the room.
	chatID, err := f.store.GetChatID(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, "chat-77", chatID)

	// Surfaced businesses became discovery signals for the member.
	signals, err := f.store.ListPlaceSignals(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "biz-1", signals[0].BusinessID)
	assert.Equal(t, "discovery", signals[0].Source)
}

func TestBookingTurnThroughConfirmation(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{Plans: []*llm.Plan{
		{Action: llm.ActionBook, Booking: &llm.BookingIntent{
			BusinessID: "biz-1", Date: "2026-09-04", Time: "19:00", Covers: 4,
		}},
	}})
	ctx := t.Context()

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonMention, "@tess book nopa friday 7pm for 4")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	// Slot card posted, reservation parked for selection.
	msgs := f.history(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.MessageKindCard, msgs[0].Kind)
	assert.Contains(t, msgs[0].CardJSON, "slot_select")

	st, err := f.runner.SelectSlot(ctx, f.room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, booking.PhaseHoldActive, st.Phase)

	rec, err := f.store.GetReservationByHold(ctx, st.HoldID)
	require.NoError(t, err)
	assert.Equal(t, store.ReservationStatusHoldActive, rec.Status)

	st, err = f.runner.ConfirmReservation(ctx, f.room.ID, booking.Contact{
		FirstName: "Alice", LastName: "Ng", Email: "alice@example.test", Phone: "555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.PhaseBooked, st.Phase)

	items, err := f.store.ListItinerary(ctx, f.room.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, st.ConfirmationCode, items[0].ConfirmationCode)

	// Hold notice and confirmation arrived as visible messages.
	msgs = f.history(t)
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Contains(t, msgs[len(msgs)-1].Content, "Booked!")

	// The pending state is discarded once terminal.
	_, err = f.runner.ConfirmReservation(ctx, f.room.ID, booking.Contact{})
	assert.Error(t, err)
}

func TestConcurrentSlotSelectionPlacesOneHold(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{Plans: []*llm.Plan{
		{Action: llm.ActionBook, Booking: &llm.BookingIntent{
			BusinessID: "biz-1", Date: "2026-09-04", Time: "19:00", Covers: 4,
		}},
	}})
	ctx := t.Context()

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonMention, "@tess book nopa friday 7pm for 4")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	// Two members race to pick a slot; the phase check and the hold
	// transition are one atomic step, so exactly one wins.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := range 2 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := f.runner.SelectSlot(ctx, f.room.ID, idx)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	r, err := f.runner.ConfirmReservation(ctx, f.room.ID, booking.Contact{
		FirstName: "Ada", LastName: "L", Email: "ada@example.com", Phone: "555-0101",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.PhaseBooked, r.Phase)
}

func TestBookingTurnNoAvailability(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{Plans: []*llm.Plan{
		{Action: llm.ActionBook, Booking: &llm.BookingIntent{
			BusinessID: "fullybooked-bistro", Date: "2026-09-04", Time: "19:00", Covers: 4,
		}},
	}})

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonMention, "@tess book it")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	msgs := f.history(t)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "No tables")

	_, err := f.runner.SelectSlot(t.Context(), f.room.ID, 0)
	assert.Error(t, err, "no pending reservation should exist")
}

func TestOverlappingTurnSkipped(t *testing.T) {
	planner := &blockingPlanner{release: make(chan struct{})}
	f := newRunnerFixture(t, planner)

	first := f.runner.StartTurn(f.room.ID, trigger.ReasonCadence, "one")
	require.NotEmpty(t, first)

	second := f.runner.StartTurn(f.room.ID, trigger.ReasonCadence, "two")
	assert.Empty(t, second, "a second cadence turn must not start while one runs")

	close(planner.release)
	f.runner.Wait(f.room.ID)
}

func TestMentionSupersedesCadenceTurn(t *testing.T) {
	planner := &blockingPlanner{release: make(chan struct{})}
	f := newRunnerFixture(t, planner)

	events, _ := f.rooms.Broadcaster().Subscribe(t.Context(), f.room.ID)

	first := f.runner.StartTurn(f.room.ID, trigger.ReasonCadence, "quiet turn")
	require.NotEmpty(t, first)

	second := f.runner.StartTurn(f.room.ID, trigger.ReasonMention, "@tess now please")
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	// The canceled cadence turn emits a terminal canceled status.
	sawCanceled := false
	deadline := time.After(2 * time.Second)
	for !sawCanceled {
		select {
		case ev := <-events:
			if ev.Type == room.EventTurnStatus && ev.TurnID == first && ev.Status == room.TurnCanceled {
				sawCanceled = true
			}
		case <-deadline:
			t.Fatal("canceled status for superseded turn not seen")
		}
	}

	close(planner.release)
	f.runner.Wait(f.room.ID)
}

func TestPlannerFailurePostsVisibleNotice(t *testing.T) {
	f := newRunnerFixture(t, &llm.StubPlanner{Err: assert.AnError})

	turnID := f.runner.StartTurn(f.room.ID, trigger.ReasonCadence, "hello")
	require.NotEmpty(t, turnID)
	f.runner.Wait(f.room.ID)

	msgs := f.history(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.MessageKindSystem, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, "snag")
}
