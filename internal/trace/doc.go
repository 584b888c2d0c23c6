// ABOUTME: Package documentation for the trace package
// ABOUTME: One record per tool call, one per turn, write-only

// Package trace emits one structured record per capability call and one per
// agent turn. Recording is strictly fire-and-forget: a sink may drop
// records but it must never block or return an error into the agent path.
package trace
