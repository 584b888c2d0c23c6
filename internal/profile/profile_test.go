// ABOUTME: Tests for taste profile computation and cached service reads
// ABOUTME: Covers histograms, recency weighting, staleness, and coalescing

package profile

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

func signal(userID, bizID, name string, cats []string, price string, age time.Duration, now time.Time) *store.PlaceSignal {
	return &store.PlaceSignal{
		UserID:     userID,
		BusinessID: bizID,
		Name:       name,
		Categories: cats,
		PriceTier:  price,
		Source:     "saved",
		CreatedAt:  now.Add(-age),
	}
}

func TestComputeHistogramAndPrices(t *testing.T) {
	now := time.Now().UTC()
	signals := []*store.PlaceSignal{
		signal("u", "b1", "Tacos Uno", []string{"mexican", "tacos"}, "$", 0, now),
		signal("u", "b2", "Tacos Dos", []string{"mexican"}, "$", time.Hour, now),
		signal("u", "b3", "Sushi Go", []string{"japanese"}, "$$$", 2*time.Hour, now),
	}

	p := Compute("u", signals, now)
	require.NotEmpty(t, p.TopCategories)
	assert.Equal(t, CategoryCount{Name: "mexican", Count: 2}, p.TopCategories[0])
	assert.Equal(t, map[string]int{"$": 2, "$$$": 1}, p.PriceTiers)
	assert.Equal(t, 3, p.SignalCount)
}

func TestComputeRecencyWeighting(t *testing.T) {
	now := time.Now().UTC()
	// An old favorite visited twice still outweighs a brand-new one-off
	// only if its decayed weights sum higher; 90-day-old signals decay to
	// 1/8 each, so the fresh signal wins.
	signals := []*store.PlaceSignal{
		signal("u", "old", "Old Haunt", nil, "", 90*24*time.Hour, now),
		{UserID: "u", BusinessID: "old", Name: "Old Haunt", Source: "discovery", CreatedAt: now.Add(-91 * 24 * time.Hour)},
		signal("u", "new", "New Spot", nil, "", 0, now),
	}

	p := Compute("u", signals, now)
	require.Len(t, p.Favorites, 2)
	assert.Equal(t, "new", p.Favorites[0].BusinessID)
}

func TestComputeDeterministic(t *testing.T) {
	now := time.Now().UTC()
	signals := []*store.PlaceSignal{
		signal("u", "b1", "A", []string{"thai"}, "$$", time.Hour, now),
		signal("u", "b2", "B", []string{"thai"}, "$$", 2*time.Hour, now),
	}
	first := Compute("u", signals, now)
	for range 5 {
		assert.Equal(t, first, Compute("u", signals, now))
	}
}

func TestServiceCachesUntilStale(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := clockwork.NewFakeClock()
	svc := NewService(st, clock, time.Hour, nil)
	ctx := t.Context()

	now := clock.Now().UTC()
	require.NoError(t, st.AddPlaceSignal(ctx, signal("u", "b1", "A", []string{"thai"}, "$$", 0, now)))

	p, err := svc.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, p.SignalCount)

	// New signal within the TTL is not reflected yet.
	require.NoError(t, st.AddPlaceSignal(ctx, signal("u", "b2", "B", []string{"thai"}, "$$", 0, now)))
	p, err = svc.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, p.SignalCount)

	// Past the TTL the profile is recomputed.
	clock.Advance(2 * time.Hour)
	p, err = svc.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, p.SignalCount)
}

func TestServiceEmptyHistory(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil, 0, nil)
	p, err := svc.Get(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, p.SignalCount)
	assert.Equal(t, "no taste history yet", p.Describe())
}

func TestSavePlaceFeedsProfile(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil, time.Hour, nil)
	ctx := t.Context()

	// Warm the cache with an empty profile.
	p, err := svc.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, p.SignalCount)

	require.NoError(t, svc.SavePlace(ctx, "u", "b1", "Tacos Uno", []string{"mexican"}, "$"))

	// The save invalidated the cache, so the signal shows up immediately.
	p, err = svc.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, p.SignalCount)
	assert.Equal(t, "mexican", p.TopCategories[0].Name)

	saved, err := svc.ListSaved(ctx, "u")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "b1", saved[0].BusinessID)
	assert.Equal(t, store.SignalSourceSaved, saved[0].Source)
}

func TestListSavedExcludesDiscoveries(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil, 0, nil)
	ctx := t.Context()

	require.NoError(t, svc.SavePlace(ctx, "u", "b1", "Kept", []string{"thai"}, "$$"))
	require.NoError(t, st.AddPlaceSignal(ctx, &store.PlaceSignal{
		UserID: "u", BusinessID: "b2", Name: "Suggested",
		Source: store.SignalSourceDiscovery, CreatedAt: time.Now().UTC(),
	}))

	saved, err := svc.ListSaved(ctx, "u")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "b1", saved[0].BusinessID)
}

func TestServiceConcurrentGets(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil, 0, nil)
	ctx := t.Context()
	for i := range 3 {
		require.NoError(t, st.AddPlaceSignal(ctx,
			signal("u", fmt.Sprintf("b%d", i), "X", []string{"thai"}, "$", 0, time.Now().UTC())))
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Get(ctx, "u")
			assert.NoError(t, err)
			assert.Equal(t, 3, p.SignalCount)
		}()
	}
	wg.Wait()
}
