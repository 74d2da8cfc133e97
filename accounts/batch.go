package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polyscope/indexer"
	"polyscope/model"
)

// interChunkDelay is the pause between successive aliased batch
// queries, keeping the indexer within its rate budget (spec §5).
var interChunkDelay = time.Second

// LookupBatch resolves History for every wallet in wallets, splitting
// into chunks of indexer.MaxBatchAliases aliased requests with a short
// delay between chunks. Wallets already cached in the store are served
// without touching the indexer at all. The returned counts tally which
// data source ultimately answered each wallet, for phase-2
// observability (spec §4.10).
func (f *Fetcher) LookupBatch(ctx context.Context, wallets []string) (map[string]Lookup, map[DataSource]int, error) {
	results := make(map[string]Lookup, len(wallets))
	counts := make(map[DataSource]int)

	var uncached []string
	for _, w := range wallets {
		w = strings.ToLower(w)
		if a, err := f.st.GetAccount(ctx, w); err == nil {
			h := History{
				Wallet: a.Wallet, CreationTimestamp: a.CreationTimestamp,
				TotalTrades: a.LifetimeTrades, TotalVolume: a.LifetimeVolume,
				Profit: a.LifetimeProfit, Source: SourceStoreCache,
			}
			results[w] = Found(h)
			counts[SourceStoreCache]++
			continue
		}
		uncached = append(uncached, w)
	}

	for i := 0; i < len(uncached); i += indexer.MaxBatchAliases {
		end := i + indexer.MaxBatchAliases
		if end > len(uncached) {
			end = len(uncached)
		}
		chunk := uncached[i:end]

		accts, err := f.idx.FetchAccountsBatch(ctx, chunk)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch accounts batch: %w", err)
		}

		for _, w := range chunk {
			h, err := f.resolveOne(ctx, w, accts[w])
			if err != nil {
				f.log.Warn().Err(err).Str("wallet", w).Msg("batched account resolution failed")
				results[w] = NotFound()
				counts[SourceDataAPI]++ // attempted and failed counts against the cheaper plane
				continue
			}
			results[w] = Found(h)
			counts[h.Source]++
			if err := f.st.UpsertAccount(ctx, model.Account{
				Wallet: w, CreationTimestamp: h.CreationTimestamp,
				LifetimeTrades: h.TotalTrades, LifetimeVolume: h.TotalVolume, LifetimeProfit: h.Profit,
			}); err != nil {
				f.log.Warn().Err(err).Str("wallet", w).Msg("failed to cache batched account")
			}
		}

		if end < len(uncached) {
			time.Sleep(interChunkDelay)
		}
	}

	return results, counts, nil
}

// resolveOne applies the subgraph/data-API/trade-counting resolution
// order to a single wallet whose subgraph Account record (possibly
// nil) has already been fetched, shared with the single-wallet Lookup
// path.
func (f *Fetcher) resolveOne(ctx context.Context, wallet string, wa *model.WireAccount) (History, error) {
	var h History
	var err error
	if wa != nil {
		h, err = f.fromSubgraph(ctx, wallet, wa)
	} else {
		h, err = f.fromDataAPI(ctx, wallet)
	}
	if err != nil {
		return History{}, err
	}

	if h.TotalTrades == 0 && h.TotalVolume > whaleVolumeFloor {
		h.Source = SourceSubgraphTrades
		if count, err := f.countTradesFromFills(ctx, wallet); err == nil {
			h.TotalTrades = count
		}
	}
	return h, nil
}
