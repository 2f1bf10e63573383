// Package analyzer implements the Semantic Analyzer Client (spec §4.D): a
// rate-limited HTTP client that ships a batch of messages plus
// conversation context to an LLM-backed classifier and parses its
// response into zero or more Violations.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config configures a Client.
type Config struct {
	Endpoint        string
	APIKey          string
	RequestsPerMin  float64
	Timeout         time.Duration
}

// Client calls the semantic analyzer over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	limiter    *rate.Limiter
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient returns a Client ready to serve Analyze calls.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	rps := cfg.RequestsPerMin / 60.0
	return &Client{
		httpClient: &http.Client{},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), maxBurst(cfg.RequestsPerMin)),
		timeout:    cfg.Timeout,
		logger:     logger.With().Str("component", "analyzer").Logger(),
	}
}

func maxBurst(rpm float64) int {
	if rpm < 1 {
		return 1
	}
	// Allow a full minute's allowance as burst so a quiet period doesn't
	// throttle the first batch after it.
	b := int(rpm)
	if b < 1 {
		b = 1
	}
	return b
}

// Analyze ships batch to the configured endpoint and parses the response.
// It makes exactly one HTTP attempt; retry-with-backoff across attempts is
// the pipeline orchestrator's responsibility (spec §4.I), since only it
// knows how many attempts a batch has already had.
//
// Analyze awaits a rate-limit token before sending, honoring ctx
// cancellation while it waits, and enforces the client's hard timeout
// regardless of ctx's own deadline.
func (c *Client) Analyze(ctx context.Context, batch domain.AnalysisBatch) (domain.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	body, err := json.Marshal(buildRequest(batch))
	if err != nil {
		return domain.AnalysisResult{}, &PermanentError{Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AnalysisResult{}, &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.AnalysisResult{}, &PermanentError{Err: fmt.Errorf("auth rejected: status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return domain.AnalysisResult{}, &PermanentError{Err: fmt.Errorf("request rejected: status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("rate limited by analyzer: status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("analyzer server error: status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var wire analyzeResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return domain.AnalysisResult{}, &TransientError{Err: fmt.Errorf("malformed JSON response: %w", err)}
	}

	return parseResponse(batch, wire, c.logger), nil
}
