package model

// This file mirrors the indexer's GraphQL-style entities and the
// real-time event stream shape from spec §6. Numeric fields on the wire
// are decimal strings with six fractional digits; timestamps are
// seconds-since-epoch decimal strings. Parsing happens where the
// indexer's results are consumed (fetch, accounts, resolver) via
// ParseAmount/ParseUnixSeconds, so scoring code only ever sees
// Amount/int64.

// WireAccount is the indexer's Account entity.
type WireAccount struct {
	ID                 string `json:"id"`
	CreationTimestamp  string `json:"creationTimestamp"`
	LastSeenTimestamp  string `json:"lastSeenTimestamp"`
	CollateralVolume   string `json:"collateralVolume"`
	NumTrades          string `json:"numTrades"`
	Profit             string `json:"profit"`
	ScaledProfit       string `json:"scaledProfit"`
}

// WireFill is the indexer's EnrichedOrderFilled entity.
type WireFill struct {
	ID              string `json:"id"`
	TransactionHash string `json:"transactionHash"`
	Timestamp       string `json:"timestamp"`
	Side            string `json:"side"`
	Size            string `json:"size"`
	Price           string `json:"price"`
	Maker           struct {
		ID string `json:"id"`
	} `json:"maker"`
	Taker struct {
		ID string `json:"id"`
	} `json:"taker"`
	Market struct {
		ID string `json:"id"`
	} `json:"market"`
}

// WireMarket is the indexer's Market entity: the token-level metadata
// needed to resolve a bare token id to its condition and outcome
// index.
type WireMarket struct {
	ID        string `json:"id"`
	Condition struct {
		ID string `json:"id"`
	} `json:"condition"`
	OutcomeIndex     int    `json:"outcomeIndex"`
	Question         string `json:"question"`
	OutcomeLabel     string `json:"outcome"`
	CreatedTimestamp string `json:"createdTimestamp"`
}

// WireMarketPosition is the indexer's MarketPosition entity, read by
// the account fetcher's data-API fallback.
type WireMarketPosition struct {
	ID     string `json:"id"`
	Market struct {
		ID string `json:"id"`
	} `json:"market"`
	ValueBought    string `json:"valueBought"`
	ValueSold      string `json:"valueSold"`
	NetValue       string `json:"netValue"`
	QuantityBought string `json:"quantityBought"`
	QuantitySold   string `json:"quantitySold"`
	NetQuantity    string `json:"netQuantity"`
}

// WireRedemption is the indexer's Redemption entity.
type WireRedemption struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Payout    string `json:"payout"`
	Condition struct {
		ID string `json:"id"`
	} `json:"condition"`
}

// TradeEvent is one message from the real-time trade-event stream
// (spec §6). Field names match the wire JSON exactly.
type TradeEvent struct {
	Asset           string `json:"asset"`
	ConditionID     string `json:"conditionId"`
	EventSlug       string `json:"eventSlug"`
	Outcome         string `json:"outcome"`
	OutcomeIndex    int    `json:"outcomeIndex"`
	Price           string `json:"price"`
	ProxyWallet     string `json:"proxyWallet"`
	Side            string `json:"side"`
	Size            string `json:"size"`
	Slug            string `json:"slug"`
	Timestamp       int64  `json:"timestamp"`
	TransactionHash string `json:"transactionHash"`
}

// Position is the caller-supplied, already-parsed view of a wallet's
// existing position on one token, used for aggregator step 6(a).
type Position struct {
	TokenID     string
	NetQuantity Amount // signed: positive = net long
}
