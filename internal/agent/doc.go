// ABOUTME: Package documentation for the agent package
// ABOUTME: Turn lifecycle, context assembly, and per-turn output streaming

// Package agent runs conversational turns: it assembles a bounded context
// bundle from the room's transcript, itinerary, and member taste profiles,
// asks the planner for a structured decision, executes it through the
// capability router and reservation workflow, and streams partial output to
// subscribers while the turn runs.
//
// One turn runs per room at a time. A newer mention-triggered turn
// supersedes an in-flight cadence turn; cancellation emits a terminal
// canceled marker and records any abandoned hold for later reconciliation.
package agent
