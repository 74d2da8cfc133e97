// Package accounts resolves a wallet's lifetime trading history across
// the subgraph and data-API planes, with a store-backed cache in front
// of both.
package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polyscope/indexer"
	"polyscope/model"
	"polyscope/store"
)

// DataSource names which plane produced a History.
type DataSource string

const (
	SourceSubgraph       DataSource = "subgraph"
	SourceDataAPI        DataSource = "data-api"
	SourceSubgraphTrades DataSource = "subgraph-trades"
	SourceStoreCache     DataSource = "store-cache"
)

// History is the resolved lifetime summary for one wallet.
type History struct {
	Wallet            string
	CreationTimestamp int64
	TotalTrades       int64
	TotalVolume       model.Amount
	Profit            model.Amount
	Source            DataSource
}

// whaleVolumeFloor is the "significant volume despite zero trade count"
// threshold that triggers the subgraph-trades fallback (step 4). It is
// intentionally coarse: the fallback only needs to catch an obviously
// stale zero, not draw a precise line.
const whaleVolumeFloor = model.Scale * 1000

// Lookup is the three-state result of asking for a wallet's History:
// looked up and found, looked up and confirmed absent, or never
// attempted. Signal scoring treats each state differently (spec §4.8
// special cases), so this is modeled as a sum type rather than a
// History pointer plus a bool, to make "skipped" a distinct state from
// "not found" at the type level.
type Lookup struct {
	state lookupState
	hist  History
}

type lookupState int

const (
	lookupSkipped lookupState = iota
	lookupNotFound
	lookupFound
)

// Skipped builds a Lookup representing "never attempted".
func Skipped() Lookup { return Lookup{state: lookupSkipped} }

// NotFound builds a Lookup representing "looked up, confirmed absent".
func NotFound() Lookup { return Lookup{state: lookupNotFound} }

// Found builds a Lookup wrapping a resolved History.
func Found(h History) Lookup { return Lookup{state: lookupFound, hist: h} }

// IsSkipped reports whether the lookup was never attempted.
func (l Lookup) IsSkipped() bool { return l.state == lookupSkipped }

// IsNotFound reports whether the lookup was attempted and found nothing.
func (l Lookup) IsNotFound() bool { return l.state == lookupNotFound }

// Get returns the wrapped History and whether one is present.
func (l Lookup) Get() (History, bool) { return l.hist, l.state == lookupFound }

// Fetcher resolves wallet history through the store cache, then the
// subgraph plane, then the data-API plane.
type Fetcher struct {
	st  *store.Store
	idx *indexer.Client
	log zerolog.Logger
}

// New builds a Fetcher.
func New(st *store.Store, idx *indexer.Client, log zerolog.Logger) *Fetcher {
	return &Fetcher{st: st, idx: idx, log: log.With().Str("component", "accounts").Logger()}
}

// Lookup resolves one wallet's History, consulting the store first.
func (f *Fetcher) Lookup(ctx context.Context, wallet string) (Lookup, error) {
	wallet = strings.ToLower(wallet)

	if a, err := f.st.GetAccount(ctx, wallet); err == nil {
		return Found(History{
			Wallet:            a.Wallet,
			CreationTimestamp: a.CreationTimestamp,
			TotalTrades:       a.LifetimeTrades,
			TotalVolume:       a.LifetimeVolume,
			Profit:            a.LifetimeProfit,
			Source:            SourceStoreCache,
		}), nil
	} else if err != store.ErrNotFound {
		return Lookup{}, fmt.Errorf("lookup account %s in store: %w", wallet, err)
	}

	wa, err := f.idx.FetchAccount(ctx, wallet)
	if err != nil {
		return Lookup{}, fmt.Errorf("fetch account %s from subgraph: %w", wallet, err)
	}

	h, err := f.resolveOne(ctx, wallet, wa)
	if err != nil {
		return Lookup{}, err
	}

	if err := f.st.UpsertAccount(ctx, model.Account{
		Wallet:            wallet,
		CreationTimestamp: h.CreationTimestamp,
		LifetimeTrades:    h.TotalTrades,
		LifetimeVolume:    h.TotalVolume,
		LifetimeProfit:    h.Profit,
	}); err != nil {
		return Lookup{}, fmt.Errorf("cache account %s: %w", wallet, err)
	}

	return Found(h), nil
}

// fromSubgraph builds a History from the subgraph's Account record,
// adding redemption payouts to trading profit (step 2).
func (f *Fetcher) fromSubgraph(ctx context.Context, wallet string, wa *model.WireAccount) (History, error) {
	creation, err := model.ParseUnixSeconds(wa.CreationTimestamp)
	if err != nil {
		return History{}, fmt.Errorf("parse creation timestamp: %w", err)
	}
	volume, err := model.ParseAmount(wa.CollateralVolume)
	if err != nil {
		return History{}, fmt.Errorf("parse collateral volume: %w", err)
	}
	trades, err := model.ParseUnixSeconds(wa.NumTrades)
	if err != nil {
		return History{}, fmt.Errorf("parse num trades: %w", err)
	}
	profit, err := model.ParseAmount(wa.ScaledProfit)
	if err != nil {
		return History{}, fmt.Errorf("parse scaled profit: %w", err)
	}

	reds, err := f.idx.FetchRedemptions(ctx, wallet)
	if err != nil {
		f.log.Warn().Err(err).Str("wallet", wallet).Msg("redemptions fetch failed, profit excludes payouts")
	} else {
		for _, r := range reds {
			payout, err := model.ParseAmount(r.Payout)
			if err != nil {
				continue
			}
			profit = profit.Add(payout)
		}
	}

	return History{
		Wallet:            wallet,
		CreationTimestamp: creation,
		TotalTrades:       trades,
		TotalVolume:       volume,
		Profit:            profit,
		Source:            SourceSubgraph,
	}, nil
}

// fromDataAPI builds a History from the wallet's position list when the
// subgraph has no Account record (step 3): totals are derived from
// current positions since no lifetime aggregate is available on this
// plane.
func (f *Fetcher) fromDataAPI(ctx context.Context, wallet string) (History, error) {
	positions, err := f.idx.FetchPositions(ctx, wallet)
	if err != nil {
		return History{}, fmt.Errorf("fetch positions for %s from data-api: %w", wallet, err)
	}

	var volume model.Amount
	for _, p := range positions {
		bought, err := model.ParseAmount(p.ValueBought)
		if err != nil {
			continue
		}
		sold, err := model.ParseAmount(p.ValueSold)
		if err != nil {
			continue
		}
		volume = volume.Add(bought).Add(sold)
	}

	return History{
		Wallet:      wallet,
		TotalTrades: int64(len(positions)),
		TotalVolume: volume,
		Source:      SourceDataAPI,
	}, nil
}

// countTradesFromFills counts distinct transactions the store already
// has for wallet, used as a stopgap when the subgraph reports a stale
// zero trade count (step 4).
func (f *Fetcher) countTradesFromFills(ctx context.Context, wallet string) (int64, error) {
	fills, err := f.st.GetFillsForWallet(ctx, wallet, 0, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	txs := make(map[string]struct{}, len(fills))
	for _, fl := range fills {
		txs[fl.TransactionHash] = struct{}{}
	}
	return int64(len(txs)), nil
}
