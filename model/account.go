package model

// Account is the store's summary row for a wallet: lifetime
// aggregates plus sync watermarks, independent of any single trade.
type Account struct {
	Wallet            string
	CreationTimestamp int64
	Sync              SyncWatermark
	LifetimeTrades    int64
	LifetimeVolume    Amount
	LifetimeProfit    Amount
}

// Redemption is a payout from a resolved market.
type Redemption struct {
	RedemptionID string
	Wallet       string
	ConditionID  string
	Timestamp    int64
	Payout       Amount
}

// BackfillQueueEntry is a wallet pending deeper history sync.
type BackfillQueueEntry struct {
	Wallet   string
	Priority int
}

// AccountState is the point-in-time reconstruction of a wallet's
// history as of a query timestamp, derived only from fills the store
// has recorded (spec §4.7). It is distinct from Account: Account is the
// (possibly stale, possibly indexer-sourced) lifetime summary, while
// AccountState is always derived strictly from store rows older than
// the query time.
type AccountState struct {
	Wallet             string
	AsOf               int64
	TradeCountBefore   int64
	VolumeBefore       Amount
	LastTradeTimestamp *int64 // nil if no prior trade
	PnLBefore          Amount
	Approximate        bool // store coverage does not reach back far enough
}

// DormancyDays returns days since the wallet's last trade before AsOf,
// or 0 if there is no prior trade (spec §4.7 — never negative).
func (s AccountState) DormancyDays(at int64) float64 {
	if s.LastTradeTimestamp == nil {
		return 0
	}
	d := at - *s.LastTradeTimestamp
	if d <= 0 {
		return 0
	}
	return float64(d) / 86400.0
}
