// ABOUTME: Routes typed capability calls with validation, retry, and tracing
// ABOUTME: Test mode swaps booking calls to a deterministic canned provider

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trace"
)

const (
	// DefaultMaxAttempts bounds retries for a single capability call.
	DefaultMaxAttempts = 10
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

// CallMeta identifies the turn a capability call belongs to, for tracing.
type CallMeta struct {
	TurnID string
	RoomID string
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Live        Provider
	Canned      Provider // used for booking calls when TestMode is set
	TestMode    bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Clock       clockwork.Clock
	Tracer      trace.Recorder
	Logger      *slog.Logger
}

// Router exposes the capability set with per-call validation, outcome
// classification, and bounded exponential-backoff retries. Only
// rate-limited and transient-timeout outcomes are retried; validation and
// permanent failures surface immediately.
type Router struct {
	live        Provider
	canned      Provider
	testMode    bool
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	validate    *validator.Validate
	clock       clockwork.Clock
	tracer      trace.Recorder
	logger      *slog.Logger
}

// NewRouter creates a router from cfg, filling in defaults for unset fields.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = trace.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		live:        cfg.Live,
		canned:      cfg.Canned,
		testMode:    cfg.TestMode,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		clock:       cfg.Clock,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With("component", "tools"),
	}
}

// TestMode reports whether booking calls are served by the canned provider.
func (r *Router) TestMode() bool {
	return r.testMode
}

// bookingProvider selects which provider serves booking capabilities.
// Search and detail always go live; only booking calls are canned in test
// mode so conversational flows stay realistic.
func (r *Router) bookingProvider() Provider {
	if r.testMode && r.canned != nil {
		return r.canned
	}
	return r.live
}

func (r *Router) Search(ctx context.Context, meta CallMeta, req *SearchRequest) (*SearchResponse, error) {
	return call(ctx, r, CapDiscoverySearch, meta, req, r.live.Search)
}

func (r *Router) Detail(ctx context.Context, meta CallMeta, req *DetailRequest) (*DetailResponse, error) {
	return call(ctx, r, CapBusinessDetail, meta, req, r.live.Detail)
}

func (r *Router) Openings(ctx context.Context, meta CallMeta, req *OpeningsRequest) (*OpeningsResponse, error) {
	return call(ctx, r, CapBookingOpenings, meta, req, r.bookingProvider().Openings)
}

func (r *Router) Hold(ctx context.Context, meta CallMeta, req *HoldRequest) (*HoldResponse, error) {
	return call(ctx, r, CapBookingHold, meta, req, r.bookingProvider().Hold)
}

func (r *Router) Book(ctx context.Context, meta CallMeta, req *BookRequest) (*BookResponse, error) {
	return call(ctx, r, CapBookingBook, meta, req, r.bookingProvider().Book)
}

// call validates, dispatches, classifies, and retries one capability call.
func call[Req, Resp any](
	ctx context.Context,
	r *Router,
	capability Capability,
	meta CallMeta,
	req Req,
	dispatch func(context.Context, Req) (Resp, error),
) (Resp, error) {
	var zero Resp
	start := r.clock.Now()

	// Fail fast on bad arguments; no network call, no retry.
	if err := r.validate.Struct(req); err != nil {
		r.record(capability, meta, OutcomeValidationError, 1, start)
		return zero, &CallError{
			Capability: capability,
			Outcome:    OutcomeValidationError,
			Attempts:   1,
			Err:        err,
		}
	}

	var lastErr error
	var lastOutcome Outcome
	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := dispatch(ctx, req)
		if err == nil {
			r.record(capability, meta, OutcomeSuccess, attempt, start)
			return resp, nil
		}

		lastErr = err
		lastOutcome = Classify(err)
		if !lastOutcome.Retryable() || ctx.Err() != nil {
			r.record(capability, meta, lastOutcome, attempt, start)
			return zero, &CallError{
				Capability: capability,
				Outcome:    lastOutcome,
				Attempts:   attempt,
				Err:        err,
			}
		}

		if attempt < r.maxAttempts {
			r.logger.Debug("capability call failed, retrying",
				"capability", capability,
				"outcome", lastOutcome,
				"attempt", attempt,
				"next_delay", delay,
				"error", err)
			timer := r.clock.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				r.record(capability, meta, lastOutcome, attempt, start)
				return zero, &CallError{
					Capability: capability,
					Outcome:    lastOutcome,
					Attempts:   attempt,
					Err:        fmt.Errorf("retry abandoned: %w", ctx.Err()),
				}
			case <-timer.Chan():
			}
			delay = min(delay*2, r.maxDelay)
		}
	}

	r.record(capability, meta, lastOutcome, r.maxAttempts, start)
	return zero, &CallError{
		Capability: capability,
		Outcome:    lastOutcome,
		Attempts:   r.maxAttempts,
		Err:        lastErr,
	}
}

func (r *Router) record(capability Capability, meta CallMeta, outcome Outcome, attempts int, start time.Time) {
	r.tracer.RecordToolCall(trace.ToolCall{
		TurnID:     meta.TurnID,
		RoomID:     meta.RoomID,
		Capability: string(capability),
		Outcome:    string(outcome),
		Attempts:   attempts,
		Latency:    r.clock.Since(start),
		TestMode:   r.testMode,
	})
}
