package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(url string, maxRetries int) *Client {
	return New(Config{
		URL:        url,
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		Logger:     zerolog.Nop(),
	})
}

func TestQuery_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"account": map[string]any{"id": "0xabc"}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)
	var out struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
	}
	if err := c.Query(context.Background(), accountQuery, nil, &out); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Account.ID != "0xabc" {
		t.Errorf("account id = %q, want 0xabc", out.Account.ID)
	}
}

func TestQuery_MalformedResponseIsFatalNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	err := c.Query(context.Background(), accountQuery, nil, &struct{}{})
	if err == nil {
		t.Fatal("expected an error")
	}
	ie, ok := AsIndexerError(err)
	if !ok || ie.Kind != KindMalformedResponse {
		t.Fatalf("expected KindMalformedResponse, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("malformed response must not be retried, got %d attempts", attempts)
	}
}

func TestQuery_ServerErrorIsRetriedThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5)
	// Shrink the client's own backoff by constructing directly would
	// require exporting fields; instead rely on the short exponential
	// intervals already being small relative to the test timeout.
	if err := c.Query(context.Background(), accountQuery, nil, &struct{}{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", attempts)
	}
}

func TestQuery_QueryErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "field X does not exist on type Y"}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	err := c.Query(context.Background(), accountQuery, nil, &struct{}{})
	ie, ok := AsIndexerError(err)
	if !ok || ie.Kind != KindQueryError {
		t.Fatalf("expected KindQueryError, got %v", err)
	}
}

func TestIsRetryableMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"indexer unavailable", true},
		{"request timed out", true},
		{"Rate limit exceeded", true},
		{"unknown field on type Query", false},
	}
	for _, tt := range tests {
		if got := isRetryableMessage(tt.msg); got != tt.want {
			t.Errorf("isRetryableMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
