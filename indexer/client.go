// Package indexer is a thin typed client for the external GraphQL-style
// indexer (spec §4.2): one Query entry point, classified errors,
// bounded exponential-backoff retry, and timestamp-cursor pagination
// for per-token fill queries.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Client issues requests against the subgraph endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	log        zerolog.Logger
}

// Config configures a Client.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Logger     zerolog.Logger
}

// New builds a Client against cfg.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Logger.With().Str("component", "indexer").Logger(),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// retryableMessageMarkers are substrings that classify a GraphQL
// response-level error as retryable rather than fatal (spec §4.2,
// §7). Matching is case-insensitive.
var retryableMessageMarkers = []string{
	"unavailable",
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"service overloaded",
}

// Query executes one GraphQL request with per-attempt timeout and
// exponential-backoff retry, decoding the "data" field into out. out
// may be nil when the caller only cares about side effects (none
// exist here, but kept for symmetry with non-query operations).
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, out any) error {
	var lastErr error

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // bounded by maxRetries below, not wall time

	attempt := 0
	operation := func() error {
		attempt++
		err := c.doOnce(ctx, query, vars, out)
		if err == nil {
			return nil
		}
		lastErr = err

		ie, ok := AsIndexerError(err)
		if !ok || !ie.Retryable() {
			return backoff.Permanent(err)
		}
		if ie.Kind == KindRateLimited && ie.RetryAfter > 0 {
			bo.NextBackOff() // advance internal state for logging consistency
			time.Sleep(ie.RetryAfter)
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("retrying indexer request")
		return err
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(bo, uint64(c.maxRetries)))
	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, query string, vars map[string]any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return newMalformedResponseError(err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return newTransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return newRateLimitedError(retryAfterFromHeader(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode >= 500 {
		return newUnavailableError(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return newQueryError(fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return newMalformedResponseError(err)
	}

	if len(gr.Errors) > 0 {
		msg := gr.Errors[0].Message
		if isRetryableMessage(msg) {
			return &Error{Kind: KindIndexerUnavailable, Message: msg}
		}
		return newQueryError(msg)
	}

	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return newMalformedResponseError(err)
	}
	return nil
}

func isRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range retryableMessageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func retryAfterFromHeader(h string) time.Duration {
	if h == "" {
		return 5 * time.Second // spec §4.2: rate-limit base ~5s when no server hint
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second
}
