package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"polyscope/accounts"
	"polyscope/config"
	"polyscope/indexer"
	"polyscope/model"
	"polyscope/resolver"
	"polyscope/score"
	"polyscope/store"
)

func testScoringCfg() config.ScoringConfig {
	return config.ScoringConfig{
		AlertThreshold:       65,
		SizeWeight:           40,
		AccountHistoryWeight: 35,
		ConvictionWeight:     25,
		SizeFloorUSD:         1000,
		SafeBetEnabled:       true,
		SafeBetThreshold:     0.95,
		WhaleValueThreshold:  50000,
	}
}

// newTestMonitor wires a Monitor against an in-memory store, a mock
// GraphQL indexer answering empty account/position data (so every
// wallet resolves as brand new), and a local gorilla/websocket test
// server that plays back the given messages once a client subscribes.
func newTestMonitor(t *testing.T, messages [][]byte) (*Monitor, *httptest.Server) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain the subscribe frame.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		}
		// Keep the connection open until the client closes it so the
		// monitor doesn't immediately treat this as a disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"redemptions": []any{}}})
	}))
	t.Cleanup(idxSrv.Close)

	idx := indexer.New(indexer.Config{URL: idxSrv.URL, Timeout: 2 * time.Second, MaxRetries: 1, Logger: zerolog.Nop()})
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() {})

	acct := accounts.New(st, idx, zerolog.Nop())
	res := resolver.New(st, idx)

	cfg := &config.Config{
		MonitorWSURL:              "ws" + srv.URL[len("http"):],
		MonitorStabilityWindowSec: 60,
		MonitorCacheTTLMinutes:    5,
		MonitorMinSizeUSD:         100,
		Scoring:                   testScoringCfg(),
	}

	m := New(st, acct, res, cfg, zerolog.Nop())
	return m, srv
}

func tradeEventJSON(t *testing.T, wallet, side string, size, price float64, ts int64) []byte {
	t.Helper()
	ev := map[string]any{
		"asset":           "tok-yes",
		"conditionId":     "cond-1",
		"eventSlug":       "test-event",
		"outcome":         "YES",
		"outcomeIndex":    0,
		"price":           fmtAmount(price),
		"proxyWallet":     wallet,
		"side":            side,
		"size":            fmtAmount(size),
		"slug":            "test-market",
		"timestamp":       ts,
		"transactionHash": "0xabc",
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal trade event: %v", err)
	}
	return b
}

func fmtAmount(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// TestMonitor_LargeTradeAlerts feeds one large, brand-new-wallet event
// through a local WebSocket server and asserts it alerts.
func TestMonitor_LargeTradeAlerts(t *testing.T) {
	wallet := "0xstreamwhale"
	msg := tradeEventJSON(t, wallet, "BUY", 100_000, 0.5, time.Now().Unix())
	m, _ := newTestMonitor(t, [][]byte{msg})

	alerts := make(chan score.Scored, 4)
	m.OnAlert = func(s score.Scored) { alerts <- s }

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go m.Run(ctx, []string{"test-market"})

	select {
	case s := <-alerts:
		if s.Trade.Wallet != wallet {
			t.Errorf("expected alert for %s, got %s", wallet, s.Trade.Wallet)
		}
		if !s.IsAlert {
			t.Errorf("expected IsAlert true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
	}
}

// TestMonitor_SmallTradeFilteredBySize asserts an event below the
// configured minimum USD size never reaches scoring.
func TestMonitor_SmallTradeFilteredBySize(t *testing.T) {
	wallet := "0xminnow"
	msg := tradeEventJSON(t, wallet, "BUY", 1, 0.5, time.Now().Unix())
	m, _ := newTestMonitor(t, [][]byte{msg})

	var calls int
	m.OnAlert = func(score.Scored) { calls++ }
	m.OnVerbose = func(score.Scored) { calls++ }
	m.SetVerbose(true)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	m.Run(ctx, []string{"test-market"})

	if calls != 0 {
		t.Errorf("expected the small trade to be filtered before scoring, got %d emissions", calls)
	}
}

func TestParseEvent_RoundTripsAmounts(t *testing.T) {
	ev := model.TradeEvent{
		Asset: "tok-yes", ConditionID: "cond-1", ProxyWallet: "0xAbC",
		Side: "buy", Size: "10.500000", Price: "0.250000",
		OutcomeIndex: 0, Timestamp: 1000, TransactionHash: "0xdead",
	}
	trade, err := parseEvent(ev)
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	if trade.Wallet != "0xabc" {
		t.Errorf("expected lowercased wallet, got %s", trade.Wallet)
	}
	if trade.Side != model.TradeSide("BUY") {
		t.Errorf("expected upper-cased BUY side, got %s", trade.Side)
	}
	wantValue := trade.TotalSize.Mul(trade.AvgPrice)
	if trade.TotalValueUSD != wantValue {
		t.Errorf("expected value = size*price, got %v want %v", trade.TotalValueUSD, wantValue)
	}
}

// TestIdleBackfill_DrainsAndRespectsBudget seeds three queued wallets
// and asserts idleBackfill drains all of them when the budget comfortably
// covers the lookups.
func TestIdleBackfill_DrainsAndRespectsBudget(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx := context.Background()

	for i, w := range []string{"0xa", "0xb", "0xc"} {
		if err := m.st.EnqueueBackfill(ctx, w, i, time.Now().Unix()); err != nil {
			t.Fatalf("seed backfill: %v", err)
		}
	}

	m.idleBackfill(ctx)

	remaining, err := m.st.DequeueBackfill(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueBackfill: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected idleBackfill to drain the whole (small) queue, %d entries left", len(remaining))
	}
}
