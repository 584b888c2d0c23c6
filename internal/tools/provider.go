// ABOUTME: Provider interface and HTTP client for the external capability
// ABOUTME: Treats the provider as an untrusted, retryable network boundary

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Provider executes capability calls against an external service. The
// router owns validation, classification, and retries; implementations
// return raw errors (ProviderError for HTTP-level rejections).
type Provider interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	Detail(ctx context.Context, req *DetailRequest) (*DetailResponse, error)
	Openings(ctx context.Context, req *OpeningsRequest) (*OpeningsResponse, error)
	Hold(ctx context.Context, req *HoldRequest) (*HoldResponse, error)
	Book(ctx context.Context, req *BookRequest) (*BookResponse, error)
}

// HTTPProvider talks to the live capability service over HTTP.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a live provider client. A zero timeout defaults
// to 30 seconds.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := p.post(ctx, "/ai/chat/v2", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) Detail(ctx context.Context, req *DetailRequest) (*DetailResponse, error) {
	var resp DetailResponse
	path := "/v3/businesses/" + url.PathEscape(req.BusinessID)
	if err := p.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) Openings(ctx context.Context, req *OpeningsRequest) (*OpeningsResponse, error) {
	var resp OpeningsResponse
	path := fmt.Sprintf("/v3/bookings/%s/openings?date=%s&time=%s&covers=%d",
		url.PathEscape(req.BusinessID),
		url.QueryEscape(req.Date), url.QueryEscape(req.Time), req.Covers)
	if err := p.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) Hold(ctx context.Context, req *HoldRequest) (*HoldResponse, error) {
	var resp HoldResponse
	path := "/v3/bookings/" + url.PathEscape(req.BusinessID) + "/holds"
	if err := p.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	var resp BookResponse
	if err := p.post(ctx, "/v3/bookings/reservations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return p.do(ctx, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (p *HTTPProvider) get(ctx context.Context, path string, out any) error {
	return p.do(ctx, http.MethodGet, path, nil, out)
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseProviderError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// parseProviderError extracts the provider's structured error envelope when
// present, falling back to the raw status.
func parseProviderError(status int, data []byte) error {
	var envelope struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	pe := &ProviderError{StatusCode: status, Message: http.StatusText(status)}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
		pe.Code = envelope.Error.Code
		pe.Message = envelope.Error.Description
	}
	return pe
}
