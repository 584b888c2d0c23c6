// ABOUTME: Agent turn lifecycle: assemble, plan, act, stream, persist
// ABOUTME: One turn per room at a time; a newer mention supersedes a cadence turn

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/booking"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/llm"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trace"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

const (
	// turnTimeout bounds a whole turn, tool retries included.
	turnTimeout = 3 * time.Minute
	// typingInterval refreshes the ephemeral typing indicator.
	typingInterval = 4 * time.Second
	// replyChunkRunes is the streamed increment size for reply text.
	replyChunkRunes = 48
	// enrichConcurrency bounds parallel detail lookups per search.
	enrichConcurrency = 3
)

const systemPromptTemplate = `You are Tess, a food-obsessed planning assistant living inside a group chat.
Help the group pick places to eat and drink, and book tables when asked.
Answer with a JSON object: {"action": "reply"|"search"|"book", "reply": "...",
"search_query": "...", "booking": {"business_id": "...", "date": "YYYY-MM-DD", "time": "HH:MM", "covers": N}}.
Use "search" when the group wants suggestions, "book" only when a specific
place, date, time, and party size are all clear. Keep replies short and warm.`

// activeTurn tracks one in-flight turn for a room.
type activeTurn struct {
	turnID string
	reason trigger.Reason
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner executes agent turns. At most one turn runs per room; turns for
// different rooms run fully in parallel.
type Runner struct {
	store     store.Store
	rooms     *room.Service
	assembler *Assembler
	relay     *Relay
	planner   llm.Planner
	router    *tools.Router
	workflow  *booking.Workflow
	tracer    trace.Recorder
	clock     clockwork.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	turns    map[string]*activeTurn
	pending  map[string]*booking.State // reservations awaiting select/confirm
	resLocks map[string]*sync.Mutex    // per-room reservation transitions
}

// RunnerConfig wires a Runner's collaborators.
type RunnerConfig struct {
	Store     store.Store
	Rooms     *room.Service
	Assembler *Assembler
	Relay     *Relay
	Planner   llm.Planner
	Router    *tools.Router
	Workflow  *booking.Workflow
	Tracer    trace.Recorder
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// NewRunner creates a turn runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Tracer == nil {
		cfg.Tracer = trace.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		store:     cfg.Store,
		rooms:     cfg.Rooms,
		assembler: cfg.Assembler,
		relay:     cfg.Relay,
		planner:   cfg.Planner,
		router:    cfg.Router,
		workflow:  cfg.Workflow,
		tracer:    cfg.Tracer,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "agent"),
	}
}

// Relay exposes the stream relay for connection handlers.
func (r *Runner) Relay() *Relay {
	return r.relay
}

// StartTurn begins an agent turn for the room in the background. If a turn
// is already running, a mention supersedes a cadence turn (the old turn is
// canceled); any other overlap is skipped. Returns the turn ID, or "" when
// no turn was started.
func (r *Runner) StartTurn(roomID string, reason trigger.Reason, prompt string) string {
	r.mu.Lock()
	if r.turns == nil {
		r.turns = make(map[string]*activeTurn)
		r.pending = make(map[string]*booking.State)
	}
	if current, ok := r.turns[roomID]; ok {
		if reason == trigger.ReasonMention && current.reason == trigger.ReasonCadence {
			current.cancel()
		} else {
			r.mu.Unlock()
			r.logger.Debug("turn already running, skipping",
				"room_id", roomID, "reason", reason)
			return ""
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	turn := &activeTurn{
		turnID: uuid.NewString(),
		reason: reason,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.turns[roomID] = turn
	r.mu.Unlock()

	go r.run(ctx, roomID, turn, prompt)
	return turn.turnID
}

// CancelRoom cancels any in-flight turn and drops pending reservation state
// for the room.
func (r *Runner) CancelRoom(roomID string) {
	r.mu.Lock()
	turn := r.turns[roomID]
	delete(r.pending, roomID)
	r.mu.Unlock()
	if turn != nil {
		turn.cancel()
	}
}

// Wait blocks until the room has no running turn. Test helper.
func (r *Runner) Wait(roomID string) {
	r.mu.Lock()
	turn := r.turns[roomID]
	r.mu.Unlock()
	if turn != nil {
		<-turn.done
	}
}

func (r *Runner) run(ctx context.Context, roomID string, turn *activeTurn, prompt string) {
	start := r.clock.Now()
	stream := r.relay.Begin(roomID, turn.turnID)
	rec := trace.Turn{
		TurnID:        turn.turnID,
		RoomID:        roomID,
		TriggerReason: string(turn.reason),
	}

	defer func() {
		turn.cancel()
		r.mu.Lock()
		if r.turns[roomID] == turn {
			delete(r.turns, roomID)
		}
		r.mu.Unlock()
		close(turn.done)
		rec.Latency = r.clock.Since(start)
		r.tracer.RecordTurn(rec)
	}()

	r.rooms.PublishTurnStatus(roomID, turn.turnID, room.TurnStarted)
	stopTyping := r.startTyping(ctx, roomID)
	defer stopTyping()

	outTokens, err := r.execute(ctx, roomID, turn, stream, prompt, &rec)
	rec.OutputTokens = outTokens
	switch {
	case ctx.Err() != nil:
		rec.FailureReason = "canceled"
		r.relay.End(stream, StatusCanceled)
		r.rooms.PublishTurnStatus(roomID, turn.turnID, room.TurnCanceled)
	case err != nil:
		rec.FailureReason = err.Error()
		r.relay.End(stream, StatusFailed)
		r.rooms.PublishTurnStatus(roomID, turn.turnID, room.TurnFailed)
		// A failed turn must still be visible in the chat.
		postCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, perr := r.rooms.PostSystem(postCtx, roomID,
			"I hit a snag and couldn't finish that request."); perr != nil {
			r.logger.Error("posting failure notice", "room_id", roomID, "error", perr)
		}
		r.logger.Error("turn failed", "room_id", roomID, "turn_id", turn.turnID, "error", err)
	default:
		rec.Success = true
		r.relay.End(stream, StatusDone)
		r.rooms.PublishTurnStatus(roomID, turn.turnID, room.TurnCompleted)
	}
}

func (r *Runner) execute(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, prompt string, rec *trace.Turn) (int, error) {
	stream.publish(Increment{TurnID: turn.turnID, Status: StatusThinking})

	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("listing members: %w", err)
	}
	bundle, err := r.assembler.Assemble(ctx, roomID, members)
	if err != nil {
		return 0, fmt.Errorf("assembling context: %w", err)
	}
	rec.PromptTokens = bundle.Tokens

	plan, err := r.planner.Plan(ctx, buildRequest(bundle, prompt))
	if err != nil {
		return 0, fmt.Errorf("planning turn: %w", err)
	}

	meta := tools.CallMeta{TurnID: turn.turnID, RoomID: roomID}
	switch plan.Action {
	case llm.ActionSearch:
		return r.doSearch(ctx, roomID, turn, stream, meta, plan)
	case llm.ActionBook:
		return r.doBooking(ctx, roomID, turn, stream, meta, plan)
	default:
		return r.streamReply(ctx, roomID, turn, stream, plan.Reply)
	}
}

// doSearch runs discovery search, threading the room's provider chat so
// follow-ups stay in one conversation, and posts a card with the results.
func (r *Runner) doSearch(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, meta tools.CallMeta, plan *llm.Plan) (int, error) {
	stream.publish(Increment{TurnID: turn.turnID, Status: StatusSearching})

	chatID, err := r.store.GetChatID(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("reading chat session: %w", err)
	}
	resp, err := r.router.Search(ctx, meta, &tools.SearchRequest{
		Query:  plan.SearchQuery,
		ChatID: chatID,
	})
	if err != nil {
		return r.relayToolFailure(ctx, roomID, turn, stream, err)
	}
	if resp.ChatID != "" && resp.ChatID != chatID {
		if err := r.store.SetChatID(ctx, roomID, resp.ChatID); err != nil {
			r.logger.Warn("saving chat session", "room_id", roomID, "error", err)
		}
	}
	r.enrichBusinesses(ctx, meta, resp.Businesses)
	r.recordDiscoveries(ctx, roomID, resp.Businesses)

	text := resp.Text
	if plan.Reply != "" {
		text = plan.Reply + "\n\n" + resp.Text
	}
	if len(resp.Businesses) > 0 {
		card, err := json.Marshal(map[string]any{
			"kind":       "businesses",
			"businesses": resp.Businesses,
		})
		if err != nil {
			return 0, fmt.Errorf("encoding business card: %w", err)
		}
		return r.streamFinal(ctx, roomID, turn, stream, text, &store.Message{
			RoomID:   roomID,
			SenderID: store.AgentUserID,
			Kind:     store.MessageKindCard,
			Content:  text,
			CardJSON: string(card),
		})
	}
	return r.streamReply(ctx, roomID, turn, stream, text)
}

// doBooking starts the reservation workflow and, when slots come back,
// parks the state to await the group's slot selection.
func (r *Runner) doBooking(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, meta tools.CallMeta, plan *llm.Plan) (int, error) {
	intent := plan.Booking
	if intent == nil {
		return r.streamReply(ctx, roomID, turn, stream,
			"I need a place, date, time, and party size before I can look for tables.")
	}
	stream.publish(Increment{TurnID: turn.turnID, Status: StatusCheckingSlot})

	st := r.workflow.Begin(roomID, intent.BusinessID, intent.Date, intent.Time, intent.Covers)
	if err := r.workflow.RequestOpenings(ctx, meta, st); err != nil {
		return 0, err
	}
	if st.Phase == booking.PhaseFailed {
		return r.streamReply(ctx, roomID, turn, stream, booking.FailureMessage(st))
	}

	// Render the card before parking the state: once parked, a racing
	// slot selection may transition it.
	card, err := json.Marshal(map[string]any{
		"kind":        "slot_select",
		"business_id": st.BusinessID,
		"covers":      st.Covers,
		"slots":       st.Slots,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding slot card: %w", err)
	}
	text := fmt.Sprintf("Found %d times at %s for %d. Pick one and I'll hold it.",
		len(st.Slots), st.BusinessID, st.Covers)

	r.mu.Lock()
	r.pending[roomID] = st
	r.mu.Unlock()
	return r.streamFinal(ctx, roomID, turn, stream, text, &store.Message{
		RoomID:   roomID,
		SenderID: store.AgentUserID,
		Kind:     store.MessageKindCard,
		Content:  text,
		CardJSON: string(card),
	})
}

// SelectSlot places a hold on one of the offered slots. Called from the
// client surface, outside any turn. The room's reservation lock makes the
// phase check and the hold transition one atomic step against concurrent
// selections and confirmations.
func (r *Runner) SelectSlot(ctx context.Context, roomID string, slotIndex int) (*booking.State, error) {
	lk := r.reservationLock(roomID)
	lk.Lock()
	defer lk.Unlock()

	r.mu.Lock()
	st := r.pending[roomID]
	r.mu.Unlock()
	if st == nil || st.Phase != booking.PhaseOpeningsReturned {
		return nil, fmt.Errorf("no reservation awaiting slot selection in this room")
	}
	if slotIndex < 0 || slotIndex >= len(st.Slots) {
		return nil, fmt.Errorf("slot index %d out of range", slotIndex)
	}

	meta := tools.CallMeta{RoomID: roomID}
	if err := r.workflow.PlaceHold(ctx, meta, st, st.Slots[slotIndex]); err != nil {
		return nil, err
	}
	if st.Phase == booking.PhaseFailed {
		r.clearPending(roomID, st)
		if _, err := r.rooms.PostSystem(ctx, roomID, booking.FailureMessage(st)); err != nil {
			r.logger.Error("posting hold failure", "room_id", roomID, "error", err)
		}
		return st, nil
	}

	notice := fmt.Sprintf("Holding %s at %s. Confirm within 5 minutes or the hold lapses.",
		st.Time, st.BusinessID)
	if _, err := r.rooms.PostSystem(ctx, roomID, notice); err != nil {
		r.logger.Error("posting hold notice", "room_id", roomID, "error", err)
	}
	return st, nil
}

// ConfirmReservation books the active hold and folds the confirmation into
// the itinerary.
func (r *Runner) ConfirmReservation(ctx context.Context, roomID string, contact booking.Contact) (*booking.State, error) {
	lk := r.reservationLock(roomID)
	lk.Lock()
	defer lk.Unlock()

	r.mu.Lock()
	st := r.pending[roomID]
	r.mu.Unlock()
	if st == nil || st.Phase != booking.PhaseHoldActive {
		return nil, fmt.Errorf("no held reservation awaiting confirmation in this room")
	}

	meta := tools.CallMeta{RoomID: roomID}
	if err := r.workflow.Book(ctx, meta, st, contact); err != nil {
		return nil, err
	}
	r.clearPending(roomID, st)

	if st.Phase == booking.PhaseFailed {
		if _, err := r.rooms.PostSystem(ctx, roomID, booking.FailureMessage(st)); err != nil {
			r.logger.Error("posting booking failure", "room_id", roomID, "error", err)
		}
		return st, nil
	}

	title := fmt.Sprintf("Table for %d at %s", st.Covers, st.BusinessID)
	items, err := r.store.ListItinerary(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("reading itinerary: %w", err)
	}
	if _, err := r.workflow.FoldIntoItinerary(ctx, st, title, len(items)+1); err != nil {
		return nil, err
	}

	notice := fmt.Sprintf("Booked! %s on %s at %s, party of %d. Confirmation %s.",
		st.BusinessID, st.Date, st.Time, st.Covers, st.ConfirmationCode)
	if _, err := r.rooms.PostSystem(ctx, roomID, notice); err != nil {
		r.logger.Error("posting confirmation", "room_id", roomID, "error", err)
	}
	return st, nil
}

// streamReply streams reply text in chunks and persists it as the final
// agent message.
func (r *Runner) streamReply(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, reply string) (int, error) {
	return r.streamFinal(ctx, roomID, turn, stream, reply, &store.Message{
		RoomID:   roomID,
		SenderID: store.AgentUserID,
		Kind:     store.MessageKindText,
		Content:  reply,
	})
}

func (r *Runner) streamFinal(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, text string, final *store.Message) (int, error) {
	for _, chunk := range chunkRunes(text, replyChunkRunes) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		stream.publish(Increment{TurnID: turn.turnID, Text: chunk})
	}
	if _, err := r.rooms.Post(ctx, final); err != nil {
		return 0, fmt.Errorf("persisting agent message: %w", err)
	}
	return EstimateTokens(text), nil
}

// relayToolFailure converts an exhausted tool call into a conversational
// explanation instead of a raw error.
func (r *Runner) relayToolFailure(ctx context.Context, roomID string, turn *activeTurn, stream *Stream, err error) (int, error) {
	var ce *tools.CallError
	if errors.As(err, &ce) {
		return r.streamReply(ctx, roomID, turn, stream, ce.Describe())
	}
	return 0, err
}

// enrichBusinesses backfills missing photos via detail lookups so result
// cards render with images. Lookups run with bounded concurrency and any
// failure leaves the business as-is.
func (r *Runner) enrichBusinesses(ctx context.Context, meta tools.CallMeta, businesses []tools.Business) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range businesses {
		if businesses[i].PhotoURL != "" {
			continue
		}
		g.Go(func() error {
			detail, err := r.router.Detail(gctx, meta, &tools.DetailRequest{
				BusinessID: businesses[i].ID,
			})
			if err != nil {
				r.logger.Debug("detail enrichment failed",
					"business_id", businesses[i].ID, "error", err)
				return nil
			}
			if detail.Business.PhotoURL != "" {
				businesses[i].PhotoURL = detail.Business.PhotoURL
			} else if len(detail.Photos) > 0 {
				businesses[i].PhotoURL = detail.Photos[0]
			}
			return nil
		})
	}
	_ = g.Wait()
}

// recordDiscoveries stores AI-surfaced businesses as discovery signals for
// every human member, feeding future taste profiles.
func (r *Runner) recordDiscoveries(ctx context.Context, roomID string, businesses []tools.Business) {
	if len(businesses) == 0 {
		return
	}
	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		r.logger.Warn("listing members for discovery signals", "error", err)
		return
	}
	now := r.clock.Now().UTC()
	for _, m := range members {
		if m.UserID == store.AgentUserID || m.UserID == store.SystemUserID {
			continue
		}
		for _, b := range businesses {
			if err := r.store.AddPlaceSignal(ctx, &store.PlaceSignal{
				UserID:     m.UserID,
				BusinessID: b.ID,
				Name:       b.Name,
				Categories: b.Categories,
				PriceTier:  b.Price,
				Source:     store.SignalSourceDiscovery,
				CreatedAt:  now,
			}); err != nil {
				r.logger.Warn("recording discovery signal", "user_id", m.UserID, "error", err)
			}
		}
	}
}

func (r *Runner) startTyping(ctx context.Context, roomID string) func() {
	r.rooms.PublishTyping(roomID, store.AgentUserID, true)
	ticker := r.clock.NewTicker(typingInterval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				r.rooms.PublishTyping(roomID, store.AgentUserID, true)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			r.rooms.PublishTyping(roomID, store.AgentUserID, false)
		})
	}
}

func (r *Runner) clearPending(roomID string, st *booking.State) {
	r.mu.Lock()
	if r.pending[roomID] == st {
		delete(r.pending, roomID)
	}
	r.mu.Unlock()
}

// AbandonPending orphans any active hold the room is still waiting on.
// Used when a room is deleted mid-reservation.
func (r *Runner) AbandonPending(ctx context.Context, roomID string) {
	lk := r.reservationLock(roomID)
	lk.Lock()
	defer lk.Unlock()

	r.mu.Lock()
	st := r.pending[roomID]
	delete(r.pending, roomID)
	r.mu.Unlock()
	if st != nil {
		r.workflow.Abandon(ctx, st)
	}
}

// reservationLock returns the lock serializing reservation check-then-act
// sequences for a room.
func (r *Runner) reservationLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resLocks == nil {
		r.resLocks = make(map[string]*sync.Mutex)
	}
	lk, ok := r.resLocks[roomID]
	if !ok {
		lk = &sync.Mutex{}
		r.resLocks[roomID] = lk
	}
	return lk
}

func buildRequest(bundle *ContextBundle, prompt string) *llm.Request {
	system := systemPromptTemplate
	if bundle.Itinerary != "" {
		system += "\n\nCurrent itinerary: " + bundle.Itinerary
	}
	if len(bundle.Profiles) > 0 {
		names := make(map[string]string)
		for _, msg := range bundle.Messages {
			names[msg.SenderID] = msg.Sender
		}
		ids := make([]string, 0, len(bundle.Profiles))
		for id := range bundle.Profiles {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		system += "\n\nWhat the group likes:"
		for _, id := range ids {
			name := names[id]
			if name == "" {
				name = id
			}
			system += fmt.Sprintf("\n- %s: %s", name, bundle.Profiles[id])
		}
	}

	var history []llm.Turn
	if bundle.Summary != "" {
		history = append(history, llm.Turn{Role: llm.RoleUser, Text: "Earlier: " + bundle.Summary})
	}
	for _, msg := range bundle.Messages {
		role := llm.RoleUser
		if msg.SenderID == store.AgentUserID {
			role = llm.RoleModel
		}
		history = append(history, llm.Turn{Role: role, Text: msg.Sender + ": " + msg.Content})
	}

	return &llm.Request{System: system, History: history, Prompt: prompt}
}

// chunkRunes splits s into chunks of at most n runes.
func chunkRunes(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		take := min(n, len(runes))
		out = append(out, string(runes[:take]))
		runes = runes[take:]
	}
	return out
}
