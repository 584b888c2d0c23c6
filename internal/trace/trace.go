// ABOUTME: Fire-and-forget structured trace records for tool calls and turns
// ABOUTME: The sink never blocks or fails the caller

package trace

import (
	"log/slog"
	"time"
)

// ToolCall is one structured record per capability invocation.
type ToolCall struct {
	TurnID     string
	RoomID     string
	Capability string
	Outcome    string
	Attempts   int
	Latency    time.Duration
	TestMode   bool
}

// Turn is one structured record per agent turn.
type Turn struct {
	TurnID        string
	RoomID        string
	TriggerReason string
	Latency       time.Duration
	PromptTokens  int
	OutputTokens  int
	Success       bool
	FailureReason string
}

// Recorder accepts trace records. Implementations must be non-blocking;
// the caller fires and forgets.
type Recorder interface {
	RecordToolCall(rec ToolCall)
	RecordTurn(rec Turn)
}

// LogRecorder writes trace records as structured log lines.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a recorder backed by slog. Pass nil for default.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "trace")}
}

func (r *LogRecorder) RecordToolCall(rec ToolCall) {
	r.logger.Info("tool call",
		"turn_id", rec.TurnID,
		"room_id", rec.RoomID,
		"capability", rec.Capability,
		"outcome", rec.Outcome,
		"attempts", rec.Attempts,
		"latency_ms", rec.Latency.Milliseconds(),
		"test_mode", rec.TestMode)
}

func (r *LogRecorder) RecordTurn(rec Turn) {
	r.logger.Info("turn",
		"turn_id", rec.TurnID,
		"room_id", rec.RoomID,
		"trigger_reason", rec.TriggerReason,
		"latency_ms", rec.Latency.Milliseconds(),
		"prompt_tokens", rec.PromptTokens,
		"output_tokens", rec.OutputTokens,
		"success", rec.Success,
		"failure_reason", rec.FailureReason)
}

// Nop discards all records. Useful in tests.
type Nop struct{}

func (Nop) RecordToolCall(ToolCall) {}
func (Nop) RecordTurn(Turn)         {}
