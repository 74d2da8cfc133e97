// Package signal computes the three heuristic suspicion signals scored
// against a single reconstructed trade: size, account history, and
// conviction. Each returns a score in [0,100] plus its configured
// weight, so the caller (score.Combine) can combine them without
// knowing anything about how any one signal computed its number.
package signal

import (
	"math"

	"polyscope/accounts"
	"polyscope/config"
	"polyscope/model"
)

// Signal is one scored dimension of a trade.
type Signal struct {
	Name    string
	Score   int
	Weight  int
	Details string
}

// placeholderScore is returned by sub-scores that have no real history
// to reason about because the lookup was never attempted (as opposed
// to attempted and failed, which scores maximally suspicious instead).
// The aggregator/caller can recognize this value via Details rather
// than from the number alone; it is deliberately the series' own
// neutral midpoint rather than 0 or 100.
const placeholderScore = 50

// Size computes the size signal (weight 40) from a trade's USD value
// and, when available, bracketing price points for market-impact.
func Size(cfg config.ScoringConfig, totalValueUSD model.Amount, priceBefore, priceAfter *model.Amount) Signal {
	v := totalValueUSD.ToFloat()
	floor := cfg.SizeFloorUSD

	a := 0.0
	if v >= floor && floor > 0 {
		a = 25 + 25*math.Log10(v/floor)
		if a > 100 {
			a = 100
		}
	}

	if priceBefore == nil || priceAfter == nil {
		return Signal{Name: "size", Score: clampRound(a), Weight: cfg.SizeWeight, Details: "magnitude only, no bracketing price points"}
	}

	pctChange := math.Abs(priceAfter.ToFloat()-priceBefore.ToFloat()) * 100
	b := pctChange * 10 // 10% price swing maps to 100; monotonic, uncapped input clamped below
	if b > 100 {
		b = 100
	}

	combined := 0.6*a + 0.4*b
	return Signal{Name: "size", Score: clampRound(combined), Weight: cfg.SizeWeight, Details: "magnitude + market impact"}
}

// AccountHistory computes the account-history signal (weight 35). h is
// the resolved (or skipped/not-found) Lookup; state is the point-in-time
// reconstruction at the trade's own timestamp, used preferentially over
// h's lifetime totals wherever both are available.
func AccountHistory(cfg config.ScoringConfig, h accounts.Lookup, state *model.AccountState, tradeTS int64, profit model.Amount) Signal {
	if h.IsSkipped() {
		return Signal{Name: "account_history", Score: placeholderScore, Weight: cfg.AccountHistoryWeight, Details: "account data not fetched"}
	}
	if h.IsNotFound() {
		return Signal{Name: "account_history", Score: 100, Weight: cfg.AccountHistoryWeight, Details: "account lookup failed, wallet unknown"}
	}

	found, _ := h.Get()

	tradeCount := found.TotalTrades
	if state != nil {
		tradeCount = state.TradeCountBefore
	}

	var lastTradeTS *int64
	if state != nil {
		lastTradeTS = state.LastTradeTimestamp
	}

	creationOrFirst := found.CreationTimestamp
	if creationOrFirst == 0 && tradeCount == 0 {
		// No creation time on record and no earlier trade: this trade is
		// the wallet's first, so age is measured from the trade itself.
		// With earlier trades but no creation time, age is measured from
		// the unix epoch and the age component contributes 0.
		creationOrFirst = tradeTS
	}

	countScore := tradeCountScore(tradeCount)
	ageDays := float64(tradeTS-creationOrFirst) / 86400.0
	ageScore := ageScore(ageDays)
	dormancyScore := dormancyScore(tradeTS, lastTradeTS)
	profitScore := profitOnNewAccountScore(ageDays, profit)

	total := countScore + ageScore + dormancyScore + profitScore
	if total > 100 {
		total = 100
	}

	return Signal{
		Name:    "account_history",
		Score:   int(math.Round(total)),
		Weight:  cfg.AccountHistoryWeight,
		Details: "trade-count + age + dormancy + new-account-profit components",
	}
}

// tradeCountScore implements the trade-count sub-score: 33 at 0-1
// trades, then 30, 28, 26, 25 and 23 at 2 through 6 trades, and a
// linear decay from there to 0 at 50 trades.
func tradeCountScore(n int64) float64 {
	if n <= 1 {
		return 33
	}
	if n >= 50 {
		return 0
	}
	if n <= 6 {
		anchors := [...]float64{2: 30, 3: 28, 4: 26, 5: 25, 6: 23}
		return anchors[n]
	}
	// Linear decay from 23 at n=6 to 0 at n=50; the curve never rises,
	// which is what the monotonicity invariant relies on.
	return 23 * (1 - float64(n-6)/44)
}

// ageScore implements the age sub-score: 33 at age 0, linear to 0 at
// 365 days.
func ageScore(ageDays float64) float64 {
	if ageDays <= 0 {
		return 33
	}
	if ageDays >= 365 {
		return 0
	}
	return 33 * (1 - ageDays/365)
}

// dormancyScore implements the dormancy sub-score: 0 for a first
// trade, rising to ~33 as dormancy approaches and exceeds ~100 days.
func dormancyScore(tradeTS int64, lastTradeTS *int64) float64 {
	if lastTradeTS == nil {
		return 0
	}
	dormancyDays := float64(tradeTS-*lastTradeTS) / 86400.0
	if dormancyDays <= 0 {
		return 0
	}
	const saturationDays = 100
	if dormancyDays >= saturationDays {
		return 33
	}
	return 33 * (dormancyDays / saturationDays)
}

// profitOnNewAccountScore is only nonzero for a young, profitable
// account — a pattern consistent with a wallet spun up to ride a single
// piece of informed conviction.
func profitOnNewAccountScore(ageDays float64, profit model.Amount) float64 {
	const newAccountDays = 30
	if ageDays > newAccountDays || profit <= 0 {
		return 0
	}
	// Scaled down linearly as the account approaches the "new" cutoff,
	// capped at a third of the total signal like the other sub-scores.
	return 34 * (1 - ageDays/newAccountDays)
}

// Conviction computes the conviction signal (weight 25): the trade's
// share of the wallet's prior volume.
func Conviction(cfg config.ScoringConfig, h accounts.Lookup, state *model.AccountState, tradeValueUSD model.Amount) Signal {
	if h.IsSkipped() {
		return Signal{Name: "conviction", Score: placeholderScore, Weight: cfg.ConvictionWeight, Details: "account data not fetched"}
	}

	var priorVolume model.Amount
	if state != nil {
		priorVolume = state.VolumeBefore
	} else if found, ok := h.Get(); ok {
		priorVolume = found.TotalVolume
	}

	if priorVolume <= 0 {
		return Signal{Name: "conviction", Score: 100, Weight: cfg.ConvictionWeight, Details: "first trade, no prior volume"}
	}

	ratio := tradeValueUSD.ToFloat() / priorVolume.ToFloat()
	score := ratio * 100
	if score > 100 {
		score = 100
	}
	return Signal{Name: "conviction", Score: clampRound(score), Weight: cfg.ConvictionWeight, Details: "trade value / prior lifetime volume"}
}

func clampRound(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(math.Round(v))
}
