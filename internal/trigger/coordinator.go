// ABOUTME: Per-room trigger state tracking consecutive human messages
// ABOUTME: Decisions are serialized per room; the streak resets on commit

package trigger

import (
	"log/slog"
	"sync"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

// roomState is the mutable trigger state for one room.
type roomState struct {
	mu          sync.Mutex
	humanStreak int
}

// Coordinator applies the evaluator against per-room counters. Each room's
// state is guarded by its own mutex, so two messages racing into the same
// room observe a serialized streak and at most one of them fires any given
// cadence boundary.
type Coordinator struct {
	mu        sync.Mutex
	rooms     map[string]*roomState
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator around the given evaluator.
func NewCoordinator(e *Evaluator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		rooms:     make(map[string]*roomState),
		evaluator: e,
		logger:    logger.With("component", "trigger"),
	}
}

// Evaluator returns the underlying pure evaluator.
func (c *Coordinator) Evaluator() *Evaluator {
	return c.evaluator
}

// Observe records a message and decides whether it fires an agent turn.
// Human messages advance the streak; agent and system messages reset it.
// A firing decision does NOT consume the streak: the caller must Commit
// once a turn actually starts. A fired-but-skipped turn (room busy) leaves
// the counter intact, so the very next message fires again.
func (c *Coordinator) Observe(roomID, senderID, text string, explicitInvoke bool) Decision {
	st := c.state(roomID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if senderID == store.AgentUserID || senderID == store.SystemUserID {
		st.humanStreak = 0
		return Decision{Fire: false, Reason: ReasonNone}
	}

	st.humanStreak++
	d := c.evaluator.Evaluate(text, explicitInvoke, st.humanStreak)
	if d.Fire {
		c.logger.Debug("turn triggered", "room_id", roomID, "reason", d.Reason)
	}
	return d
}

// Commit resets the room's streak after a turn has started. Mention turns
// consume the cadence window too, so a cadence turn never stacks right on
// top of a mention turn.
func (c *Coordinator) Commit(roomID string) {
	st := c.state(roomID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.humanStreak = 0
}

// Forget drops trigger state for a room, typically on room deletion.
func (c *Coordinator) Forget(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Coordinator) state(roomID string) *roomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.rooms[roomID]
	if !ok {
		st = &roomState{}
		c.rooms[roomID] = st
	}
	return st
}
