// ABOUTME: Package documentation for the tools package
// ABOUTME: Describes the capability set, outcome taxonomy, and retry policy

// Package tools routes the agent's typed capability calls to the external
// provider. The capability set is closed: discovery-search,
// business-detail, booking-openings, booking-hold, and booking-book.
//
// Every call is validated before dispatch, and every result is classified
// as success, validation-error, rate-limited, transient-timeout, or
// permanent-failure. Only the rate-limited and transient-timeout outcomes
// are retried, with exponential backoff up to a configurable attempt cap.
// Failures surface as CallError values with a human-describable message,
// never as raw provider payloads.
//
// In test mode, booking calls are served by a deterministic canned
// provider with identical error shapes; only the trace record reveals
// which mode served a call.
package tools
