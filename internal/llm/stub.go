// ABOUTME: Deterministic planner and summarizer used in tests and test mode
// ABOUTME: Same inputs always produce the same plan

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StubPlanner returns fixed plans keyed on simple prompt inspection. When
// Plans is non-empty, plans are returned in order; otherwise a reply plan
// echoing the prompt is produced. Delay holds each call open, letting tests
// observe an in-flight turn.
type StubPlanner struct {
	Plans []*Plan
	Err   error
	Delay time.Duration

	calls int
}

func (p *StubPlanner) Plan(ctx context.Context, req *Request) (*Plan, error) {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Plans) > 0 {
		plan := p.Plans[min(p.calls, len(p.Plans)-1)]
		p.calls++
		return plan, nil
	}
	return &Plan{Action: ActionReply, Reply: "noted: " + req.Prompt}, nil
}

// StubSummarizer produces a deterministic one-line synopsis.
type StubSummarizer struct {
	Err error
}

func (s *StubSummarizer) Summarize(_ context.Context, text string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	lines := strings.Count(text, "\n") + 1
	return fmt.Sprintf("[summary of %d earlier messages]", lines), nil
}
