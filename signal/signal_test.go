package signal

import (
	"testing"

	"polyscope/accounts"
	"polyscope/config"
	"polyscope/model"
)

func testCfg() config.ScoringConfig {
	return config.ScoringConfig{
		SizeWeight:           40,
		AccountHistoryWeight: 35,
		ConvictionWeight:     25,
		SizeFloorUSD:         1000,
	}
}

func TestSize_BelowFloorScoresZero(t *testing.T) {
	s := Size(testCfg(), model.FromFloat(500), nil, nil)
	if s.Score != 0 {
		t.Errorf("score = %d, want 0 below the floor", s.Score)
	}
}

func TestSize_AtFloorScoresTwentyFive(t *testing.T) {
	s := Size(testCfg(), model.FromFloat(1000), nil, nil)
	if s.Score != 25 {
		t.Errorf("score = %d, want 25 at exactly the floor", s.Score)
	}
}

func TestSize_MonotonicInValue(t *testing.T) {
	prev := -1
	for _, v := range []float64{1000, 5000, 20000, 100000, 1000000} {
		s := Size(testCfg(), model.FromFloat(v), nil, nil)
		if s.Score < prev {
			t.Errorf("size score decreased at V=%v: %d < %d", v, s.Score, prev)
		}
		prev = s.Score
	}
}

func TestAccountHistory_SkippedYieldsPlaceholder(t *testing.T) {
	s := AccountHistory(testCfg(), accounts.Skipped(), nil, 1000, 0)
	if s.Score != placeholderScore {
		t.Errorf("score = %d, want placeholder %d", s.Score, placeholderScore)
	}
}

func TestAccountHistory_NotFoundYieldsMaxSuspicion(t *testing.T) {
	s := AccountHistory(testCfg(), accounts.NotFound(), nil, 1000, 0)
	if s.Score != 100 {
		t.Errorf("score = %d, want 100", s.Score)
	}
}

func TestAccountHistory_TradeCountMonotonicDecay(t *testing.T) {
	h := accounts.Found(accounts.History{CreationTimestamp: 0})
	prev := 1000
	for _, n := range []int64{0, 1, 5, 10, 25, 49, 50, 100} {
		state := &model.AccountState{TradeCountBefore: n}
		s := AccountHistory(testCfg(), h, state, 1_000_000_000, 0)
		if s.Score > prev {
			t.Errorf("trade count %d: score %d exceeds previous %d (must be non-increasing)", n, s.Score, prev)
		}
		prev = s.Score
	}
}

func TestAccountHistory_ZeroTradesScoresHigh(t *testing.T) {
	h := accounts.Found(accounts.History{CreationTimestamp: 1_000_000_000})
	state := &model.AccountState{TradeCountBefore: 0}
	s := AccountHistory(testCfg(), h, state, 1_000_000_000, 0)
	if s.Score < 30 {
		t.Errorf("a brand new account with zero prior trades should score highly suspicious, got %d", s.Score)
	}
}

func TestAccountHistory_FiftyOrMoreTradesZerosCountComponent(t *testing.T) {
	h := accounts.Found(accounts.History{CreationTimestamp: 0})
	state := &model.AccountState{TradeCountBefore: 50}
	s := AccountHistory(testCfg(), h, state, 1_000_000_000, 0)
	// With a very old account (age component near 0) and no dormancy or
	// profit contribution, an account with >=50 trades should score
	// near the bottom of the range.
	if s.Score > 10 {
		t.Errorf("score = %d, want near 0 for an established, old, non-dormant account", s.Score)
	}
}

func TestConviction_FirstTradeIsMaxConcentration(t *testing.T) {
	h := accounts.Found(accounts.History{TotalVolume: 0})
	s := Conviction(testCfg(), h, nil, model.FromFloat(500))
	if s.Score != 100 {
		t.Errorf("score = %d, want 100 for a first trade with no prior volume", s.Score)
	}
}

func TestConviction_SkippedYieldsPlaceholder(t *testing.T) {
	s := Conviction(testCfg(), accounts.Skipped(), nil, model.FromFloat(500))
	if s.Score != placeholderScore {
		t.Errorf("score = %d, want placeholder %d", s.Score, placeholderScore)
	}
}

func TestConviction_RatioScaling(t *testing.T) {
	h := accounts.Found(accounts.History{})
	state := &model.AccountState{VolumeBefore: model.FromFloat(1000)}
	s := Conviction(testCfg(), h, state, model.FromFloat(500))
	if s.Score != 50 {
		t.Errorf("score = %d, want 50 for a trade worth half prior volume", s.Score)
	}
}
