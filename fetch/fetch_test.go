package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polyscope/indexer"
	"polyscope/model"
	"polyscope/store"
)

func newTestFetcher(t *testing.T, pages [][]map[string]any) (*Fetcher, *store.Store) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls >= len(pages) {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"enrichedOrderFilleds": []any{}}})
			return
		}
		page := pages[calls]
		calls++
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"enrichedOrderFilleds": page}})
	}))
	t.Cleanup(srv.Close)

	idx := indexer.New(indexer.Config{URL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 1, Logger: zerolog.Nop()})

	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st, idx, 300, zerolog.Nop()), st
}

func wireFill(id string, ts int64) map[string]any {
	return map[string]any{
		"id":              id,
		"transactionHash": "0xtx" + id,
		"timestamp":       fmt.Sprintf("%d", ts),
		"side":            "Buy",
		"size":            "10.000000",
		"price":           "0.500000",
		"maker":           map[string]any{"id": "0xmaker"},
		"taker":           map[string]any{"id": "0xtaker"},
		"market":          map[string]any{"id": "tok1"},
	}
}

func TestFetch_MissingCoveragePersistsAndMarksComplete(t *testing.T) {
	page := []map[string]any{wireFill("f2", 200), wireFill("f1", 100)}
	f, st := newTestFetcher(t, [][]map[string]any{page})

	hi := int64(1000)
	fills, err := f.Fetch(context.Background(), "tok1", Range{Hi: &hi}, 1000)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}

	m, err := st.GetMarket(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if !m.Sync.HasCompleteHistory {
		t.Error("expected has_complete_history = true after a short (< page-size) page")
	}
	if m.Sync.SyncedFrom == nil || *m.Sync.SyncedFrom != 100 {
		t.Errorf("synced_from = %v, want 100", m.Sync.SyncedFrom)
	}
	if m.Sync.SyncedTo == nil || *m.Sync.SyncedTo != 1000 {
		t.Errorf("synced_to = %v, want 1000 (the confirmed upper request bound)", m.Sync.SyncedTo)
	}
}

// TestFetch_DualGapDrainsBothOlderAndNewer covers the case where a
// single request straddles both a partial-older and a partial-newer
// gap at once (watermark sits strictly inside the request window):
// one Fetch call must drain both deltas and leave the watermark
// covering the full requested range, not just whichever gap
// coverageGap happens to report first.
//
// The first (newer-gap) page is padded out to a full PageSize so its
// break comes from reaching the gap's lower bound rather than from a
// short page, keeping has_complete_history false until the second
// (older-gap) call's genuinely short page earns it.
func TestFetch_DualGapDrainsBothOlderAndNewer(t *testing.T) {
	newerPage := make([]map[string]any, indexer.PageSize)
	newerPage[0] = wireFill("f-newer", 25)
	for i := 1; i < indexer.PageSize-1; i++ {
		newerPage[i] = wireFill(fmt.Sprintf("f-filler-%d", i), 500)
	}
	newerPage[indexer.PageSize-1] = wireFill("f-cutoff", 15) // <= gap.Lo(20): stops the page loop here

	olderPage := []map[string]any{wireFill("f-older", 3)}
	f, st := newTestFetcher(t, [][]map[string]any{newerPage, olderPage})

	from, to := int64(5), int64(20)
	if err := st.UpsertMarket(context.Background(), model.Market{
		TokenID: "tok1",
		Sync:    model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to},
	}); err != nil {
		t.Fatalf("UpsertMarket: %v", err)
	}

	lo, hi := int64(1), int64(31)
	fills, err := f.Fetch(context.Background(), "tok1", Range{Lo: &lo, Hi: &hi}, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2 (one from each gap)", len(fills))
	}

	m, err := st.GetMarket(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.Sync.SyncedFrom == nil || *m.Sync.SyncedFrom != 1 {
		t.Errorf("synced_from = %v, want 1 (older gap drained)", m.Sync.SyncedFrom)
	}
	if m.Sync.SyncedTo == nil || *m.Sync.SyncedTo != 31 {
		t.Errorf("synced_to = %v, want 31 (newer gap drained)", m.Sync.SyncedTo)
	}
}

func TestFetch_ServedFromCacheWhenCovered(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"enrichedOrderFilleds": []any{}}})
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

	from, to, syncedAt := int64(0), int64(1000), int64(900)
	if err := st.UpsertMarket(context.Background(), model.Market{
		TokenID: "tok1",
		Sync:    model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to, SyncedAt: &syncedAt, HasCompleteHistory: true},
	}); err != nil {
		t.Fatalf("UpsertMarket: %v", err)
	}

	f := New(st, idx, 300, zerolog.Nop())
	hi := int64(800)
	if _, err := f.Fetch(context.Background(), "tok1", Range{Hi: &hi}, 950); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no indexer calls when range is fully covered, got %d", calls)
	}
}

func TestCoverageGap_Missing(t *testing.T) {
	hi := int64(100)
	reason, _ := coverageGap(model.SyncWatermark{}, Range{Hi: &hi}, 300, 1000)
	if reason != ReasonMissing {
		t.Errorf("reason = %s, want missing", reason)
	}
}

func TestCoverageGap_PartialNewer(t *testing.T) {
	from, to := int64(0), int64(500)
	hi := int64(1000)
	reason, gap := coverageGap(model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to}, Range{Hi: &hi}, 300, 1000)
	if reason != ReasonPartialNewer {
		t.Fatalf("reason = %s, want partial-newer", reason)
	}
	if *gap.Lo != 500 || *gap.Hi != 1000 {
		t.Errorf("gap = [%d,%d], want [500,1000]", *gap.Lo, *gap.Hi)
	}
}

func TestCoverageGap_PartialOlder(t *testing.T) {
	from, to := int64(500), int64(1000)
	lo := int64(100)
	hi := int64(900)
	reason, gap := coverageGap(model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to, HasCompleteHistory: false}, Range{Lo: &lo, Hi: &hi}, 300, 1000)
	if reason != ReasonPartialOlder {
		t.Fatalf("reason = %s, want partial-older", reason)
	}
	if *gap.Lo != 100 || *gap.Hi != 500 {
		t.Errorf("gap = [%d,%d], want [100,500]", *gap.Lo, *gap.Hi)
	}
}

func TestCoverageGap_PartialOlderSuppressedWhenComplete(t *testing.T) {
	from, to := int64(500), int64(1000)
	lo := int64(100)
	hi := int64(900)
	reason, _ := coverageGap(model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to, HasCompleteHistory: true}, Range{Lo: &lo, Hi: &hi}, 300, 1000)
	if reason != ReasonNone {
		t.Errorf("reason = %s, want none (complete history already known)", reason)
	}
}

func TestCoverageGap_Stale(t *testing.T) {
	from, to := int64(0), int64(500)
	syncedAt := int64(100)
	reason, gap := coverageGap(model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to, SyncedAt: &syncedAt}, Range{}, 300, 1000)
	if reason != ReasonStale {
		t.Fatalf("reason = %s, want stale", reason)
	}
	if *gap.Lo != 500 {
		t.Errorf("gap lo = %d, want 500", *gap.Lo)
	}
}

func TestCoverageGap_None(t *testing.T) {
	from, to := int64(0), int64(1000)
	syncedAt := int64(900)
	hi := int64(800)
	reason, _ := coverageGap(model.SyncWatermark{SyncedFrom: &from, SyncedTo: &to, SyncedAt: &syncedAt}, Range{Hi: &hi}, 300, 1000)
	if reason != ReasonNone {
		t.Errorf("reason = %s, want none", reason)
	}
}
