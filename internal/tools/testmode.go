// ABOUTME: Deterministic canned provider used for booking calls in test mode
// ABOUTME: Mirrors live latency and error shapes, including expired holds

package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// holdTTL matches the external provider's hold window.
const holdTTL = 5 * time.Minute

// CannedProvider serves deterministic booking responses without touching
// the network. Error shapes match the live provider exactly: a book against
// an unknown or expired hold returns the same HOLD_NOT_FOUND envelope the
// live service would, so callers cannot tell the modes apart.
type CannedProvider struct {
	mu    sync.Mutex
	clock clockwork.Clock
	holds map[string]time.Time // holdID -> expiry
}

// NewCannedProvider creates a canned provider. Pass nil for a real clock.
func NewCannedProvider(clock clockwork.Clock) *CannedProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CannedProvider{
		clock: clock,
		holds: make(map[string]time.Time),
	}
}

func (p *CannedProvider) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return &SearchResponse{
		Text: "Here are a couple of solid picks nearby.",
		Businesses: []Business{
			{ID: "test-trattoria", Name: "Test Trattoria", Categories: []string{"italian"}, Price: "$$", Rating: 4.5},
			{ID: "test-izakaya", Name: "Test Izakaya", Categories: []string{"japanese"}, Price: "$$$", Rating: 4.7},
		},
		ChatID: "test-chat",
	}, nil
}

func (p *CannedProvider) Detail(ctx context.Context, req *DetailRequest) (*DetailResponse, error) {
	return &DetailResponse{
		Business: Business{ID: req.BusinessID, Name: "Test Venue", Rating: 4.5},
		Photos:   []string{"https://example.test/photo1.jpg"},
	}, nil
}

// Openings returns the requested slot plus neighbors 30 minutes either
// side. A business ID containing "fullybooked" yields an empty list, which
// lets tests exercise the no-availability path.
func (p *CannedProvider) Openings(ctx context.Context, req *OpeningsRequest) (*OpeningsResponse, error) {
	if strings.Contains(strings.ToLower(req.BusinessID), "fullybooked") {
		return &OpeningsResponse{Slots: []Slot{}}, nil
	}

	t, err := time.Parse("15:04", req.Time)
	if err != nil {
		return nil, &ProviderError{StatusCode: http.StatusBadRequest, Code: "INVALID_TIME", Message: "unparseable time"}
	}
	return &OpeningsResponse{Slots: []Slot{
		{Date: req.Date, Time: t.Add(-30 * time.Minute).Format("15:04")},
		{Date: req.Date, Time: req.Time},
		{Date: req.Date, Time: t.Add(30 * time.Minute).Format("15:04")},
	}}, nil
}

func (p *CannedProvider) Hold(ctx context.Context, req *HoldRequest) (*HoldResponse, error) {
	id := fmt.Sprintf("test-hold-%s", digest(req.BusinessID, req.Date, req.Time, fmt.Sprint(req.Covers)))
	expires := p.clock.Now().Add(holdTTL)

	p.mu.Lock()
	p.holds[id] = expires
	p.mu.Unlock()

	return &HoldResponse{HoldID: id, ExpiresAt: expires}, nil
}

func (p *CannedProvider) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	p.mu.Lock()
	expires, ok := p.holds[req.HoldID]
	p.mu.Unlock()

	if !ok || p.clock.Now().After(expires) {
		return nil, &ProviderError{
			StatusCode: http.StatusNotFound,
			Code:       "HOLD_NOT_FOUND",
			Message:    "hold does not exist or has expired",
		}
	}
	return &BookResponse{
		ReservationID:    "test-res-" + digest(req.HoldID),
		ConfirmationCode: "TEST-" + digest(req.HoldID)[:6],
	}, nil
}

// digest renders a short stable hex id from its inputs.
func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
