// ABOUTME: Gemini-backed planner and summarizer using the GenAI SDK
// ABOUTME: Plans are requested as JSON and parsed into structured decisions

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	maxRetries     = 3
	defaultTimeout = 60 * time.Second
)

var sdkSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

// Gemini implements Planner and Summarizer over the Google GenAI SDK.
type Gemini struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGemini creates a Gemini client for the given API key and model.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if modelName == "" {
		return nil, errors.New("gemini model name is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		timeout:   timeout,
		logger:    logger.With("component", "llm"),
	}, nil
}

// Plan asks the model for a structured JSON decision.
func (g *Gemini) Plan(ctx context.Context, req *Request) (*Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var prompt []*genai.Content
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		prompt = append(prompt, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	prompt = append(prompt, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	})

	text, err := g.generate(ctx, req.System, prompt, "application/json")
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	if plan.Action == "" {
		plan.Action = ActionReply
	}
	return &plan, nil
}

// Summarize collapses transcript text into a short synopsis.
func (g *Gemini) Summarize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system := "Summarize this group chat so the conversation can continue without the full history. " +
		"Keep names, places mentioned, decisions made, and open questions. Be brief."
	prompt := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: text}},
	}}

	out, err := g.generate(ctx, system, prompt, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Gemini) generate(ctx context.Context, system string, prompt []*genai.Content, mimeType string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		SafetySettings:    sdkSafetySettings,
	}
	if mimeType != "" {
		cfg.ResponseMIMEType = mimeType
	}

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err = g.client.Models.GenerateContent(ctx, g.modelName, prompt, cfg)
		if err != nil {
			g.logger.Warn("GenAI call failed, retrying", "error", err, "attempt", attempt)
			if attempt < maxRetries && ctx.Err() == nil {
				continue
			}
			return "", fmt.Errorf("calling GenAI after %d attempts: %w", attempt, err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			g.logger.Warn("GenAI response empty, retrying", "attempt", attempt)
			if attempt < maxRetries {
				continue
			}
			return "", errors.New("no response candidates returned from GenAI after retries")
		}
		break
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
