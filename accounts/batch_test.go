package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polyscope/indexer"
	"polyscope/model"
	"polyscope/store"
)

func TestLookupBatch_MixesCacheAndBatchedFetch(t *testing.T) {
	interChunkDelay = time.Millisecond // keep the test fast

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if !stringContains(req.Query, "AccountsBatch") {
			// redemptions lookup triggered by fromSubgraph
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"redemptions": []any{}}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"w0": map[string]any{
					"id": "0xnew", "creationTimestamp": "100", "lastSeenTimestamp": "200",
					"collateralVolume": "50.000000", "numTrades": "2", "profit": "0.000000", "scaledProfit": "0.000000",
				},
			},
		})
	}))
	defer srv.Close()

	idx := indexer.New(indexer.Config{URL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 1, Logger: zerolog.Nop()})
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer st.Close()

	if err := st.UpsertAccount(context.Background(), model.Account{Wallet: "0xcached", LifetimeTrades: 9}); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}

	f := New(st, idx, zerolog.Nop())
	results, counts, err := f.LookupBatch(context.Background(), []string{"0xcached", "0xnew"})
	if err != nil {
		t.Fatalf("LookupBatch: %v", err)
	}

	cached, ok := results["0xcached"].Get()
	if !ok || cached.Source != SourceStoreCache {
		t.Errorf("expected 0xcached to resolve from store cache, got %+v", cached)
	}
	fresh, ok := results["0xnew"].Get()
	if !ok || fresh.TotalTrades != 2 {
		t.Errorf("expected 0xnew to resolve via batched subgraph fetch, got %+v", fresh)
	}
	if counts[SourceStoreCache] != 1 || counts[SourceSubgraph] != 1 {
		t.Errorf("unexpected source counts: %+v", counts)
	}
}
