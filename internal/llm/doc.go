// ABOUTME: Package documentation for the llm package
// ABOUTME: Interfaces plus the Gemini implementation and test stubs

// Package llm abstracts the language model behind two narrow interfaces:
// a Planner that returns a structured decision for an agent turn, and a
// Summarizer used to collapse old transcript history. The production
// implementation uses the Google GenAI SDK; deterministic stubs back the
// tests.
package llm
