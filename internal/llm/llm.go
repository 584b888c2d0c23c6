// ABOUTME: Planner and Summarizer interfaces over the language model
// ABOUTME: The agent depends on these, never on a concrete SDK

package llm

import "context"

// Role labels a conversation turn for the model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior message in the model's view of the conversation.
type Turn struct {
	Role Role
	Text string
}

// Request is the assembled prompt for a planning call.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Action is what the planner wants the turn to do next.
type Action string

const (
	// ActionReply answers conversationally with no tool use.
	ActionReply Action = "reply"
	// ActionSearch runs discovery search and answers from the results.
	ActionSearch Action = "search"
	// ActionBook starts the reservation workflow.
	ActionBook Action = "book"
)

// BookingIntent is the structured reservation request the planner extracted
// from the conversation.
type BookingIntent struct {
	BusinessID string `json:"business_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Covers     int    `json:"covers"`
}

// Plan is the planner's structured decision for one turn.
type Plan struct {
	Action      Action         `json:"action"`
	Reply       string         `json:"reply,omitempty"`
	SearchQuery string         `json:"search_query,omitempty"`
	Booking     *BookingIntent `json:"booking,omitempty"`
}

// Planner turns an assembled prompt into a structured plan for the turn.
type Planner interface {
	Plan(ctx context.Context, req *Request) (*Plan, error)
}

// Summarizer collapses older transcript history into a short synopsis.
// A failed summarization is recoverable: callers degrade to truncation.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
