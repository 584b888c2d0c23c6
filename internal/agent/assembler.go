// ABOUTME: Builds the bounded ContextBundle an agent turn reasons over
// ABOUTME: Recent messages verbatim, older history summarized or truncated

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/llm"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/profile"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
)

// DefaultTokenBudget bounds the transcript window of a ContextBundle.
const DefaultTokenBudget = 4000

// transcriptFetchLimit caps how much history one assembly will read.
const transcriptFetchLimit = 1000

// BundleMessage is one transcript entry inside a bundle.
type BundleMessage struct {
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Seq      int64  `json:"seq"`
}

// ContextBundle is everything a turn gets to see: a bounded transcript
// window, an optional summary of older history, a structured itinerary
// snapshot, and a taste profile line per present member. For a fixed
// transcript, itinerary, and profile set, every field except Summary is
// reproduced byte for byte across runs.
type ContextBundle struct {
	RoomID    string
	Summary   string
	Messages  []BundleMessage
	Itinerary string // compact JSON snapshot, "" when empty
	Profiles  map[string]string
	Truncated bool // older history existed beyond the window
	Tokens    int  // estimate for the transcript window
}

// Assembler constructs ContextBundles from the store within a token budget.
type Assembler struct {
	store      store.Store
	profiles   *profile.Service
	summarizer llm.Summarizer
	budget     int
	logger     *slog.Logger
}

// NewAssembler creates an assembler. Zero budget uses the default.
func NewAssembler(st store.Store, profiles *profile.Service, summarizer llm.Summarizer, budget int, logger *slog.Logger) *Assembler {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:      st,
		profiles:   profiles,
		summarizer: summarizer,
		budget:     budget,
		logger:     logger.With("component", "assembler"),
	}
}

// Assemble builds a bundle for the room. Summarization failure degrades to
// plain truncation; profile loads run concurrently and a failed profile
// load degrades to omitting that member rather than failing the turn.
func (a *Assembler) Assemble(ctx context.Context, roomID string, members []*store.Member) (*ContextBundle, error) {
	transcript, err := a.store.ListMessages(ctx, roomID, 0, transcriptFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	itinerary, err := a.store.ListItinerary(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("reading itinerary: %w", err)
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.DisplayName
	}

	bundle := &ContextBundle{
		RoomID:   roomID,
		Profiles: make(map[string]string, len(members)),
	}

	// Walk backward, taking the newest messages verbatim until the budget
	// is spent.
	var window []*store.Message
	used := 0
	cut := len(transcript)
	for i := len(transcript) - 1; i >= 0; i-- {
		cost := EstimateTokens(transcript[i].Content)
		if used+cost > a.budget && len(window) > 0 {
			break
		}
		used += cost
		cut = i
		window = append(window, transcript[i])
	}
	// Restore chronological order.
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	bundle.Tokens = used

	for _, msg := range window {
		bundle.Messages = append(bundle.Messages, BundleMessage{
			SenderID: msg.SenderID,
			Sender:   senderName(names, msg.SenderID),
			Content:  msg.Content,
			Seq:      msg.Seq,
		})
	}

	if cut > 0 {
		bundle.Truncated = true
		bundle.Summary = a.summarizeOlder(ctx, transcript[:cut], names)
	}

	if len(itinerary) > 0 {
		snapshot, err := itinerarySnapshot(itinerary)
		if err != nil {
			return nil, err
		}
		bundle.Itinerary = snapshot
	}

	a.attachProfiles(ctx, bundle, members)
	return bundle, nil
}

// summarizeOlder collapses pre-window history into one synthetic summary.
// On summarizer failure the history is simply dropped (truncation).
func (a *Assembler) summarizeOlder(ctx context.Context, older []*store.Message, names map[string]string) string {
	if a.summarizer == nil {
		return ""
	}
	var text string
	for _, msg := range older {
		text += senderName(names, msg.SenderID) + ": " + msg.Content + "\n"
	}
	summary, err := a.summarizer.Summarize(ctx, text)
	if err != nil {
		a.logger.Warn("summarization failed, truncating instead", "error", err)
		return ""
	}
	return summary
}

func (a *Assembler) attachProfiles(ctx context.Context, bundle *ContextBundle, members []*store.Member) {
	if a.profiles == nil {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, m := range members {
		if m.UserID == store.AgentUserID || m.UserID == store.SystemUserID {
			continue
		}
		g.Go(func() error {
			p, err := a.profiles.Get(gctx, m.UserID)
			if err != nil {
				a.logger.Warn("profile load failed, omitting member",
					"user_id", m.UserID, "error", err)
				return nil
			}
			mu.Lock()
			bundle.Profiles[m.UserID] = p.Describe()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// itinerarySnapshot renders the itinerary as stable compact JSON, sorted by
// position.
func itinerarySnapshot(items []*store.ItineraryItem) (string, error) {
	sorted := make([]*store.ItineraryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	type entry struct {
		Position     int    `json:"position"`
		Title        string `json:"title"`
		BusinessID   string `json:"business_id,omitempty"`
		ScheduledFor string `json:"scheduled_for,omitempty"`
		Confirmation string `json:"confirmation,omitempty"`
	}
	entries := make([]entry, 0, len(sorted))
	for _, item := range sorted {
		e := entry{
			Position:     item.Position,
			Title:        item.Title,
			BusinessID:   item.BusinessID,
			Confirmation: item.ConfirmationCode,
		}
		if item.ScheduledFor != nil {
			e.ScheduledFor = item.ScheduledFor.UTC().Format("2006-01-02 15:04")
		}
		entries = append(entries, e)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encoding itinerary snapshot: %w", err)
	}
	return string(data), nil
}

// EstimateTokens approximates token count as one token per four runes.
// Cheap, model-independent, and only used to bound the window.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s)/4 + 1
}

func senderName(names map[string]string, senderID string) string {
	if senderID == store.AgentUserID {
		return "Tess"
	}
	if senderID == store.SystemUserID {
		return "system"
	}
	if name, ok := names[senderID]; ok && name != "" {
		return name
	}
	return senderID
}
