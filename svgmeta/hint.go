package svgmeta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HintClient queries the external metadata suggestion service. The service
// is advisory: every failure path degrades to local analysis, so callers can
// treat Suggest as infallible.
type HintClient struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// HintOption configures a HintClient.
type HintOption func(*HintClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HintOption {
	return func(h *HintClient) { h.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) HintOption {
	return func(h *HintClient) { h.logger = l }
}

// NewHintClient creates a client for the metadata service at baseURL.
// An empty baseURL disables remote lookup entirely (local analysis only).
func NewHintClient(baseURL string, opts ...HintOption) *HintClient {
	h := &HintClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Suggest asks the remote service for metadata about the markup, falling
// back to local Analyze on any failure. The returned Hint is always usable.
func (h *HintClient) Suggest(ctx context.Context, markup string) Hint {
	if h.baseURL == "" {
		return Analyze(markup)
	}

	hint, err := h.remote(ctx, markup)
	if err != nil {
		h.logger.Warn("svgmeta: hint service unavailable, using local analysis", "error", err)
		return Analyze(markup)
	}

	// The service may omit dimensions; backfill from local analysis so the
	// hint is always complete.
	if hint.Width <= 0 || hint.Height <= 0 {
		w, hgt := intrinsicSize(markup)
		hint.Width, hint.Height = w, hgt
	}
	if hint.SuggestedDuration <= 0 {
		hint.SuggestedDuration = DefaultHint().SuggestedDuration
	}
	return hint
}

func (h *HintClient) remote(ctx context.Context, markup string) (Hint, error) {
	body, err := json.Marshal(map[string]string{"svg": markup})
	if err != nil {
		return Hint{}, fmt.Errorf("svgmeta: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/suggest", bytes.NewReader(body))
	if err != nil {
		return Hint{}, fmt.Errorf("svgmeta: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Hint{}, fmt.Errorf("svgmeta: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Hint{}, fmt.Errorf("svgmeta: hint service status %d", resp.StatusCode)
	}

	var hint Hint
	if err := json.NewDecoder(resp.Body).Decode(&hint); err != nil {
		return Hint{}, fmt.Errorf("svgmeta: decode response: %w", err)
	}
	return hint, nil
}
