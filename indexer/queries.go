package indexer

import (
	"context"
	"fmt"

	"polyscope/model"
)

// PageSize is the indexer's documented maximum page size for
// timestamp-cursor fill pagination (spec §4.2).
const PageSize = 1000

// fillsForTokenQuery is the single canonical query for one page of a
// token's fills, ordered by timestamp descending with a timestamp
// cursor continuation predicate (spec §4.2).
const fillsForTokenQuery = `
query FillsForToken($token: String!, $before: BigInt!, $first: Int!) {
  enrichedOrderFilleds(
    where: { market: $token, timestamp_lt: $before }
    orderBy: timestamp
    orderDirection: desc
    first: $first
  ) {
    id
    transactionHash
    timestamp
    side
    size
    price
    maker { id }
    taker { id }
    market { id }
  }
}`

type fillsForTokenData struct {
	EnrichedOrderFilleds []model.WireFill `json:"enrichedOrderFilleds"`
}

// FetchFillsPage returns one page of fills for token strictly older
// than beforeTS, newest-first, bounded to PageSize.
func (c *Client) FetchFillsPage(ctx context.Context, token string, beforeTS int64) ([]model.WireFill, error) {
	vars := map[string]any{
		"token":  token,
		"before": fmt.Sprintf("%d", beforeTS),
		"first":  PageSize,
	}
	var data fillsForTokenData
	if err := c.Query(ctx, fillsForTokenQuery, vars, &data); err != nil {
		return nil, err
	}
	return data.EnrichedOrderFilleds, nil
}

const accountQuery = `
query Account($id: String!) {
  account(id: $id) {
    id
    creationTimestamp
    lastSeenTimestamp
    collateralVolume
    numTrades
    profit
    scaledProfit
  }
}`

type accountData struct {
	Account *model.WireAccount `json:"account"`
}

// FetchAccount returns the subgraph's Account record, or nil if the
// wallet has no record there (spec §4.6 resolution order step 2).
func (c *Client) FetchAccount(ctx context.Context, wallet string) (*model.WireAccount, error) {
	var data accountData
	if err := c.Query(ctx, accountQuery, map[string]any{"id": wallet}, &data); err != nil {
		return nil, err
	}
	return data.Account, nil
}

const redemptionsForWalletQuery = `
query Redemptions($wallet: String!) {
  redemptions(where: { user: $wallet }, orderBy: timestamp, orderDirection: asc) {
    id
    timestamp
    payout
    condition { id }
  }
}`

type redemptionsData struct {
	Redemptions []model.WireRedemption `json:"redemptions"`
}

// FetchRedemptions returns every redemption recorded for wallet.
func (c *Client) FetchRedemptions(ctx context.Context, wallet string) ([]model.WireRedemption, error) {
	var data redemptionsData
	if err := c.Query(ctx, redemptionsForWalletQuery, map[string]any{"wallet": wallet}, &data); err != nil {
		return nil, err
	}
	return data.Redemptions, nil
}

const marketQuery = `
query Market($id: String!) {
  market(id: $id) {
    id
    condition { id }
    outcomeIndex
    question
    outcome
    createdTimestamp
  }
}`

type marketData struct {
	Market *model.WireMarket `json:"market"`
}

// FetchMarket returns the subgraph's Market record for a token, or nil
// if the token is unknown to the indexer.
func (c *Client) FetchMarket(ctx context.Context, tokenID string) (*model.WireMarket, error) {
	var data marketData
	if err := c.Query(ctx, marketQuery, map[string]any{"id": tokenID}, &data); err != nil {
		return nil, err
	}
	return data.Market, nil
}

const positionsForWalletQuery = `
query Positions($wallet: String!) {
  marketPositions(where: { user: $wallet }) {
    id
    market { id }
    valueBought
    valueSold
    netValue
    quantityBought
    quantitySold
    netQuantity
  }
}`

type positionsData struct {
	MarketPositions []model.WireMarketPosition `json:"marketPositions"`
}

// FetchPositions returns wallet's current positions across all
// markets, used by the account fetcher's data-API fallback to derive
// trade count and volume.
func (c *Client) FetchPositions(ctx context.Context, wallet string) ([]model.WireMarketPosition, error) {
	var data positionsData
	if err := c.Query(ctx, positionsForWalletQuery, map[string]any{"wallet": wallet}, &data); err != nil {
		return nil, err
	}
	return data.MarketPositions, nil
}
