// Package score combines the signal suite into one total per trade and
// attaches the closed set of classifier tags (spec §4.9).
package score

import (
	"math"

	"polyscope/config"
	"polyscope/model"
	"polyscope/signal"
)

// Tag is one classifier label. Tags are additive; any combination may
// appear on a scored trade.
type Tag string

const (
	TagWhale      Tag = "WHALE"
	TagSniper     Tag = "SNIPER"
	TagEarlyMover Tag = "EARLY_MOVER"
	TagDumping    Tag = "DUMPING"
)

// sniperWindowSeconds bounds how soon after a market's creation a trade
// must land to earn the SNIPER tag.
const sniperWindowSeconds = 3600

// earlyMoverRank bounds how early among a market's trades (by
// chronological rank) a trade must land to earn EARLY_MOVER on rank
// alone.
const earlyMoverRank = 10

// earlyMoverExtremePrice is the price distance from 0 or 1 that counts
// as "extreme" regardless of rank.
const earlyMoverExtremePrice = 0.03

// dumpingMinSizeUSD is the minimum sell value that can qualify for
// DUMPING; small sells of an existing position are routine portfolio
// management, not suspicious liquidation.
const dumpingMinSizeUSD = 5000.0

// dumpingLowPrice is the outcome price below which a large sell counts
// as dumping (selling into a price that has already collapsed suggests
// urgency, e.g. acting on adverse information).
const dumpingLowPrice = 0.15

// Scored is one trade's full scoring result.
type Scored struct {
	Trade   model.Trade
	Signals []signal.Signal
	Total   int
	IsAlert bool
	Tags    []Tag
}

// Combine computes total = Σ(score×weight)/100, rounded, and sets
// IsAlert against the configured threshold.
func Combine(cfg config.ScoringConfig, trade model.Trade, signals []signal.Signal) Scored {
	sum := 0.0
	for _, s := range signals {
		sum += float64(s.Score) * float64(s.Weight)
	}
	total := int(math.Round(sum / 100))

	return Scored{
		Trade:   trade,
		Signals: signals,
		Total:   total,
		IsAlert: total >= cfg.AlertThreshold,
	}
}

// MarketContext supplies the classifier the trade-external facts it
// needs that the signal suite itself does not carry: the market's
// creation time, this trade's chronological rank among all trades
// observed so far on its market, and the wallet's position on the
// token immediately before this trade (for DUMPING).
type MarketContext struct {
	MarketCreatedAt    *int64
	ChronologicalRank  int // 1-based; 0 means unknown/not computed
	PriorPositionShare model.Amount
}

// Classify attaches tags from the closed set to an already-scored
// trade.
func Classify(cfg config.ScoringConfig, trade model.Trade, price model.Amount, mc MarketContext) []Tag {
	var tags []Tag

	if trade.TotalValueUSD.ToFloat() >= cfg.WhaleValueThreshold {
		tags = append(tags, TagWhale)
	}

	if mc.MarketCreatedAt != nil && trade.Timestamp-*mc.MarketCreatedAt <= sniperWindowSeconds && trade.Timestamp >= *mc.MarketCreatedAt {
		tags = append(tags, TagSniper)
	}

	p := price.ToFloat()
	extreme := p <= earlyMoverExtremePrice || p >= 1-earlyMoverExtremePrice
	if (mc.ChronologicalRank > 0 && mc.ChronologicalRank <= earlyMoverRank) || extreme {
		tags = append(tags, TagEarlyMover)
	}

	if trade.Side == model.TradeSell && mc.PriorPositionShare > 0 && trade.TotalValueUSD.ToFloat() >= dumpingMinSizeUSD && p <= dumpingLowPrice {
		tags = append(tags, TagDumping)
	}

	return tags
}
