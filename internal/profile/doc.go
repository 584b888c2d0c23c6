// ABOUTME: Package documentation for the profile package
// ABOUTME: Derived taste aggregates, lazily recomputed from place signals

// Package profile derives per-user taste aggregates (category histogram,
// price-tier distribution, recency-weighted favorites) from saved-place and
// discovery signals. Profiles are cached in the store and recomputed lazily
// when stale; concurrent recomputations for the same user coalesce through
// singleflight.
package profile
