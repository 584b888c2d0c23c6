// ABOUTME: Lazily recomputed taste profiles from saved-place and discovery history
// ABOUTME: Concurrent requests for one user share a single recompute

package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

const (
	// defaultTTL is how long a computed profile stays fresh.
	defaultTTL = 24 * time.Hour
	// favoriteHalfLife controls recency weighting: a signal this old counts
	// half as much as one from right now.
	favoriteHalfLife = 30 * 24 * time.Hour
	maxFavorites     = 5
	maxCategories    = 8
)

// CategoryCount is one bar of the category histogram.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Favorite is a recency-weighted place the user keeps coming back to.
type Favorite struct {
	BusinessID string  `json:"business_id"`
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
}

// Profile is the derived taste aggregate for one user. It is never
// hand-edited; it is recomputed from signals whenever it goes stale.
type Profile struct {
	UserID        string          `json:"user_id"`
	TopCategories []CategoryCount `json:"top_categories"`
	PriceTiers    map[string]int  `json:"price_tiers"`
	Favorites     []Favorite      `json:"favorites"`
	SignalCount   int             `json:"signal_count"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Service serves taste profiles with a store-backed cache and singleflight
// recomputation.
type Service struct {
	store  store.Store
	clock  clockwork.Clock
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewService creates a profile service. Zero ttl means the default 24h.
func NewService(st store.Store, clock clockwork.Clock, ttl time.Duration, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		clock:  clock,
		ttl:    ttl,
		logger: logger.With("component", "profile"),
	}
}

// Get returns the user's profile, recomputing it if the cached copy is
// missing or stale. Concurrent callers for the same user coalesce into one
// computation.
func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	row, err := s.store.GetTasteProfile(ctx, userID)
	if err == nil && s.clock.Since(row.ComputedAt) < s.ttl {
		var p Profile
		if jsonErr := json.Unmarshal([]byte(row.ProfileJSON), &p); jsonErr == nil {
			return &p, nil
		}
		// Unreadable cache rows fall through to recompute.
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reading cached profile: %w", err)
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		return s.recompute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// SavePlace records a place the user explicitly saved and drops the cached
// profile so the new signal shows up on the next Get. Saving the same
// business again refreshes the signal's timestamp.
func (s *Service) SavePlace(ctx context.Context, userID, businessID, name string, categories []string, priceTier string) error {
	if err := s.store.AddPlaceSignal(ctx, &store.PlaceSignal{
		UserID:     userID,
		BusinessID: businessID,
		Name:       name,
		Categories: categories,
		PriceTier:  priceTier,
		Source:     store.SignalSourceSaved,
		CreatedAt:  s.clock.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("saving place: %w", err)
	}
	if err := s.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("invalidating profile after save", "user_id", userID, "error", err)
	}
	return nil
}

// ListSaved returns the user's saved places, newest first.
func (s *Service) ListSaved(ctx context.Context, userID string) ([]*store.PlaceSignal, error) {
	signals, err := s.store.ListPlaceSignals(ctx, userID, 500)
	if err != nil {
		return nil, fmt.Errorf("listing place signals: %w", err)
	}
	saved := make([]*store.PlaceSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.Source == store.SignalSourceSaved {
			saved = append(saved, sig)
		}
	}
	return saved, nil
}

// Invalidate drops the cached profile so the next Get recomputes.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	row := &store.TasteProfileRow{
		UserID:      userID,
		ProfileJSON: "{}",
		ComputedAt:  time.Time{},
	}
	return s.store.SaveTasteProfile(ctx, row)
}

func (s *Service) recompute(ctx context.Context, userID string) (*Profile, error) {
	signals, err := s.store.ListPlaceSignals(ctx, userID, 500)
	if err != nil {
		return nil, fmt.Errorf("listing place signals: %w", err)
	}

	now := s.clock.Now().UTC()
	p := Compute(userID, signals, now)

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	if err := s.store.SaveTasteProfile(ctx, &store.TasteProfileRow{
		UserID:      userID,
		ProfileJSON: string(data),
		ComputedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}

	s.logger.Debug("profile recomputed", "user_id", userID, "signals", p.SignalCount)
	return p, nil
}

// Compute derives a profile from raw signals. Pure and deterministic for a
// fixed now.
func Compute(userID string, signals []*store.PlaceSignal, now time.Time) *Profile {
	categories := make(map[string]int)
	prices := make(map[string]int)
	weights := make(map[string]*Favorite)

	for _, sig := range signals {
		for _, cat := range sig.Categories {
			categories[cat]++
		}
		if sig.PriceTier != "" {
			prices[sig.PriceTier]++
		}

		age := now.Sub(sig.CreatedAt)
		w := math.Exp2(-float64(age) / float64(favoriteHalfLife))
		if fav, ok := weights[sig.BusinessID]; ok {
			fav.Weight += w
		} else {
			weights[sig.BusinessID] = &Favorite{BusinessID: sig.BusinessID, Name: sig.Name, Weight: w}
		}
	}

	top := make([]CategoryCount, 0, len(categories))
	for name, count := range categories {
		top = append(top, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > maxCategories {
		top = top[:maxCategories]
	}

	favorites := make([]Favorite, 0, len(weights))
	for _, fav := range weights {
		favorites = append(favorites, *fav)
	}
	sort.Slice(favorites, func(i, j int) bool {
		if favorites[i].Weight != favorites[j].Weight {
			return favorites[i].Weight > favorites[j].Weight
		}
		return favorites[i].BusinessID < favorites[j].BusinessID
	})
	if len(favorites) > maxFavorites {
		favorites = favorites[:maxFavorites]
	}

	return &Profile{
		UserID:        userID,
		TopCategories: top,
		PriceTiers:    prices,
		Favorites:     favorites,
		SignalCount:   len(signals),
		ComputedAt:    now,
	}
}

// Describe renders the profile as a compact line for prompt context.
func (p *Profile) Describe() string {
	if p.SignalCount == 0 {
		return "no taste history yet"
	}
	cats := make([]string, 0, len(p.TopCategories))
	for _, c := range p.TopCategories {
		cats = append(cats, c.Name)
	}
	favs := make([]string, 0, len(p.Favorites))
	for _, f := range p.Favorites {
		favs = append(favs, f.Name)
	}
	desc := "likes varied spots"
	if len(cats) > 0 {
		desc = "likes " + strings.Join(cats, ", ")
	}
	if len(favs) > 0 {
		desc += "; favorites: " + strings.Join(favs, ", ")
	}
	return desc
}
