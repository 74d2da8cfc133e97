// Package fetch coordinates the store and the indexer client: it
// satisfies a (token, range) request from the cache first, fetching
// only the uncovered delta, and always returns a view read back from
// the store so callers see one consistent result regardless of which
// portion came from cache.
package fetch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"polyscope/indexer"
	"polyscope/model"
	"polyscope/store"
)

// Reason names why a fetch needed to hit the indexer at all.
type Reason string

const (
	ReasonMissing      Reason = "missing"
	ReasonPartialNewer Reason = "partial-newer"
	ReasonPartialOlder Reason = "partial-older"
	ReasonStale        Reason = "stale"
	ReasonNone         Reason = "none"
)

// Range is a requested window; either bound may be open (nil).
type Range struct {
	Lo *int64
	Hi *int64
}

// Fetcher bridges the store's watermark bookkeeping and the indexer's
// paginated fill queries.
type Fetcher struct {
	st           *store.Store
	idx          *indexer.Client
	stalenessSec int64
	log          zerolog.Logger
}

// New builds a Fetcher. stalenessSec is the configured bound past
// which an open-ended request against synced_at triggers a refresh
// even when the requested range is otherwise covered.
func New(st *store.Store, idx *indexer.Client, stalenessSec int64, log zerolog.Logger) *Fetcher {
	return &Fetcher{st: st, idx: idx, stalenessSec: stalenessSec, log: log.With().Str("component", "fetch").Logger()}
}

// Fetch satisfies r for token, fetching every uncovered delta, and
// returns every fill the store now has in range once the watermark
// covers r completely. A request can straddle both an older and a
// newer gap at once (e.g. synced_from/synced_to sitting strictly
// inside r), so the coverage decision is re-evaluated after each
// persisted delta until it reports ReasonNone rather than assuming
// one delta always suffices.
func (f *Fetcher) Fetch(ctx context.Context, tokenID string, r Range, now int64) ([]model.Fill, error) {
	for {
		m, err := f.st.GetMarket(ctx, tokenID)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("lookup market %s: %w", tokenID, err)
		}

		reason, gap := coverageGap(m.Sync, r, f.stalenessSec, now)
		f.log.Debug().Str("token", tokenID).Str("reason", string(reason)).Msg("coverage computed")

		if reason == ReasonNone {
			break
		}
		if err := f.fetchDelta(ctx, tokenID, gap, now); err != nil {
			return nil, fmt.Errorf("fetch delta for %s (%s): %w", tokenID, reason, err)
		}
	}

	lo, hi := int64(0), now
	if r.Lo != nil {
		lo = *r.Lo
	}
	if r.Hi != nil {
		hi = *r.Hi
	}
	return f.st.GetFillsForMarket(ctx, tokenID, lo, hi)
}

// coverageGap implements the five-way coverage decision (spec §4.5).
func coverageGap(sync model.SyncWatermark, r Range, stalenessSec, now int64) (Reason, Range) {
	if sync.SyncedFrom == nil || sync.SyncedTo == nil {
		return ReasonMissing, r
	}

	if r.Hi != nil && *r.Hi > *sync.SyncedTo {
		lo, hi := *sync.SyncedTo, *r.Hi
		return ReasonPartialNewer, Range{Lo: &lo, Hi: &hi}
	}

	if r.Lo != nil && *r.Lo < *sync.SyncedFrom && !sync.HasCompleteHistory {
		hi := *sync.SyncedFrom
		return ReasonPartialOlder, Range{Lo: r.Lo, Hi: &hi}
	}

	if r.Hi == nil && sync.SyncedAt != nil && now-*sync.SyncedAt > stalenessSec {
		lo := *sync.SyncedTo
		return ReasonStale, Range{Lo: &lo, Hi: &now}
	}

	return ReasonNone, Range{}
}

// fetchDelta pages through the indexer for gap, then persists the
// fills and advances the market's watermarks in one transaction.
func (f *Fetcher) fetchDelta(ctx context.Context, tokenID string, gap Range, now int64) error {
	before := now + 1
	if gap.Hi != nil {
		before = *gap.Hi + 1
	}

	var (
		allFills   []model.Fill
		minTS      int64 = -1
		maxTS      int64
		lastPageSz int
	)
	for {
		page, err := f.idx.FetchFillsPage(ctx, tokenID, before)
		if err != nil {
			return fmt.Errorf("fetch fills page: %w", err)
		}
		lastPageSz = len(page)
		if len(page) == 0 {
			break
		}

		for _, wf := range page {
			fl, err := parseWireFill(wf)
			if err != nil {
				f.log.Warn().Err(err).Str("fill_id", wf.ID).Msg("dropping unparseable fill")
				continue
			}
			if gap.Lo != nil && fl.Timestamp <= *gap.Lo {
				continue
			}
			allFills = append(allFills, fl)
			if minTS == -1 || fl.Timestamp < minTS {
				minTS = fl.Timestamp
			}
			if fl.Timestamp > maxTS {
				maxTS = fl.Timestamp
			}
		}

		oldest := page[len(page)-1]
		oldestTS, err := model.ParseUnixSeconds(oldest.Timestamp)
		if err != nil {
			return fmt.Errorf("parse cursor timestamp: %w", err)
		}
		if gap.Lo != nil && oldestTS <= *gap.Lo {
			break
		}
		if len(page) < indexer.PageSize {
			break
		}
		before = oldestTS
	}

	// confirmedTo is the upper bound we actually paged up to, regardless
	// of whether any fill happened to land exactly there; it is what
	// keeps a token with no recent trading from being reported
	// "partial-newer" on every subsequent request.
	confirmedTo := now
	if gap.Hi != nil {
		confirmedTo = *gap.Hi
	}
	complete := lastPageSz < indexer.PageSize

	if len(allFills) == 0 {
		from := gap.Lo
		if from == nil {
			// Nothing exists at or before confirmedTo; recording it as the
			// lower watermark keeps the token from reading as "missing".
			from = &confirmedTo
		}
		return f.st.AdvanceMarketSync(ctx, tokenID, from, &confirmedTo, now, complete)
	}

	if err := f.st.SaveFills(ctx, allFills); err != nil {
		return fmt.Errorf("save fills: %w", err)
	}

	from := minTS
	if gap.Lo != nil {
		from = *gap.Lo
	}
	return f.st.AdvanceMarketSync(ctx, tokenID, &from, &confirmedTo, now, complete)
}

func parseWireFill(wf model.WireFill) (model.Fill, error) {
	ts, err := model.ParseUnixSeconds(wf.Timestamp)
	if err != nil {
		return model.Fill{}, err
	}
	size, err := model.ParseAmount(wf.Size)
	if err != nil {
		return model.Fill{}, err
	}
	price, err := model.ParseAmount(wf.Price)
	if err != nil {
		return model.Fill{}, err
	}
	side := model.Buy
	if wf.Side == "Sell" || wf.Side == "SELL" || wf.Side == "sell" {
		side = model.Sell
	}
	return model.Fill{
		FillID:          wf.ID,
		TransactionHash: wf.TransactionHash,
		Timestamp:       ts,
		Side:            side,
		Size:            size,
		Price:           price,
		MakerWallet:     wf.Maker.ID,
		TakerWallet:     wf.Taker.ID,
		TokenID:         wf.Market.ID,
	}, nil
}
