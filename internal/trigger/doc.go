// ABOUTME: Package documentation for the trigger package
// ABOUTME: Explains the precedence rules for starting agent turns

// Package trigger decides when an incoming room message should start an
// agent turn. Three conditions can fire, in strict precedence order:
// an @-mention of one of the agent's aliases, an explicit invoke flag on
// the request, and finally a cadence rule that fires after N consecutive
// human messages with no agent participation.
//
// The Evaluator is pure; the Coordinator wraps it with per-room serialized
// counters. A firing decision leaves the counter untouched until the caller
// commits it, so a decision whose turn never started (the room was busy)
// keeps the boundary armed for the next message.
package trigger
