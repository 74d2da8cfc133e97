// Package analyze orchestrates the three-phase trade-scoring pipeline
// over a resolved market or condition: a cheap quick pass without
// account history narrows the wallet set, a batched history fetch
// resolves only those wallets, and a final pass re-scores with the
// populated history and attaches classifier tags (spec §4.10).
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polyscope/accounts"
	"polyscope/aggregate"
	"polyscope/clock"
	"polyscope/config"
	"polyscope/fetch"
	"polyscope/indexer"
	"polyscope/model"
	"polyscope/resolver"
	"polyscope/score"
	"polyscope/signal"
	"polyscope/store"
)

// candidateThresholdFloor is the minimum quick-score candidate
// threshold regardless of how low the configured alert threshold is
// (spec §4.10 phase 1: max(40, alert_threshold-10)).
const candidateThresholdFloor = 40

// candidateThresholdMargin is how far below the alert threshold the
// candidate threshold sits.
const candidateThresholdMargin = 10

// Pipeline wires the store, indexer-backed resolver/fetcher/accounts
// helpers, and scoring config into one analyze entry point.
type Pipeline struct {
	st       *store.Store
	idx      *indexer.Client
	resolver *resolver.Resolver
	fetcher  *fetch.Fetcher
	accts    *accounts.Fetcher
	cfg      config.ScoringConfig
	log      zerolog.Logger
	clk      clock.Clock
}

// New builds a Pipeline.
func New(st *store.Store, idx *indexer.Client, res *resolver.Resolver, f *fetch.Fetcher, acct *accounts.Fetcher, cfg config.ScoringConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		st: st, idx: idx, resolver: res, fetcher: f, accts: acct, cfg: cfg,
		log: log.With().Str("component", "analyze").Logger(),
		clk: clock.Real(),
	}
}

// Request scopes one analyze run to a market token (resolved to its
// condition, pulling in the sibling outcome too unless OutcomeIndex
// narrows the report to one side), a time window, and an optional role
// and output shape. A non-empty Wallet switches to wallet-mode: every
// trade for that wallet is reported with a full breakdown instead of
// only alerts surviving the candidate/safe-bet filters.
type Request struct {
	MarketID     string
	OutcomeIndex *int
	From, To     int64 // unix seconds; zero means unbounded on that side
	Role         model.Role
	MaxTrades    int
	TopN         int
	Wallet       string
}

// Result is one analyze run's output.
type Result struct {
	Scored           []score.Scored
	SourceCounts     map[accounts.DataSource]int
	TradesConsidered int
	Candidates       int
}

// Analyze runs the pipeline for req.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	now := p.clk.Now().Unix()

	markets, err := p.loadMarkets(ctx, req)
	if err != nil {
		return nil, err
	}

	fills, err := p.collectFills(ctx, markets, req, now)
	if err != nil {
		return nil, err
	}

	trades := p.reconstructTrades(fills, markets, req)

	if req.Wallet != "" {
		return p.analyzeWallet(ctx, req, trades, markets)
	}

	active := excludeSafeBets(p.cfg, trades, markets)
	rank := chronologicalRank(active)
	res := &Result{TradesConsidered: len(active)}

	candidates := p.phase1QuickScore(active)
	res.Candidates = len(candidates)
	p.log.Info().Int("trades", len(active)).Int("candidates", len(candidates)).Msg("phase 1 complete")

	histories, sourceCounts, err := p.accts.LookupBatch(ctx, setToSlice(candidates))
	if err != nil {
		return nil, fmt.Errorf("phase 2 batched history: %w", err)
	}
	res.SourceCounts = sourceCounts

	scored := p.phase3FinalScore(ctx, active, markets, rank, histories, candidates)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Total > scored[j].Total })
	if req.TopN > 0 && len(scored) > req.TopN {
		scored = scored[:req.TopN]
	}
	res.Scored = scored

	p.opportunisticBackfill(ctx)
	return res, nil
}

// loadMarkets resolves req.MarketID and pulls in every sibling market
// of its condition (both outcome sides are needed for the aggregator's
// complementary-side selection even when only one is reported),
// optionally narrowed by OutcomeIndex.
func (p *Pipeline) loadMarkets(ctx context.Context, req Request) (map[string]model.Market, error) {
	primary, err := p.resolver.Resolve(ctx, req.MarketID)
	if err != nil {
		return nil, fmt.Errorf("resolve market %s: %w", req.MarketID, err)
	}

	siblings, err := p.st.GetMarketsByCondition(ctx, primary.ConditionID)
	if err != nil {
		return nil, fmt.Errorf("load sibling markets for condition %s: %w", primary.ConditionID, err)
	}

	out := make(map[string]model.Market, len(siblings)+1)
	out[primary.TokenID] = primary
	for _, m := range siblings {
		out[m.TokenID] = m
	}

	if req.OutcomeIndex != nil {
		filtered := make(map[string]model.Market, len(out))
		for id, m := range out {
			if m.OutcomeIndex == *req.OutcomeIndex {
				filtered[id] = m
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("market %s: no side matches outcome filter", req.MarketID)
		}
		return filtered, nil
	}
	return out, nil
}

// collectFills pulls the cache-aware delta for every market token in
// scope and concatenates them, so the aggregator sees both outcome
// sides of a condition at once (needed for complementary-side
// selection).
func (p *Pipeline) collectFills(ctx context.Context, markets map[string]model.Market, req Request, now int64) ([]model.Fill, error) {
	r := fetch.Range{}
	if req.From != 0 {
		r.Lo = &req.From
	}
	if req.To != 0 {
		r.Hi = &req.To
	}

	var all []model.Fill
	for tokenID := range markets {
		fills, err := p.fetcher.Fetch(ctx, tokenID, r, now)
		if err != nil {
			return nil, fmt.Errorf("fetch fills for token %s: %w", tokenID, err)
		}
		all = append(all, fills...)
	}
	return all, nil
}

// reconstructTrades runs the aggregator once per wallet observed in
// fills (or just the requested wallet in wallet-mode), merges the
// results, and applies the role filter.
func (p *Pipeline) reconstructTrades(fills []model.Fill, markets map[string]model.Market, req Request) []model.Trade {
	var wallets []string
	if req.Wallet != "" {
		wallets = []string{strings.ToLower(req.Wallet)}
	} else {
		wallets = distinctWallets(fills)
	}

	var merged []model.Trade
	for _, w := range wallets {
		trades, _ := aggregate.Run(fills, w, markets, nil)
		for _, t := range trades {
			if !roleMatches(t, w, req.Role) {
				continue
			}
			merged = append(merged, t)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp > merged[j].Timestamp })
	if req.MaxTrades > 0 && len(merged) > req.MaxTrades {
		merged = merged[:req.MaxTrades]
	}
	return merged
}

// roleMatches reports whether trade satisfies the requested role
// filter. An empty or "both" role matches everything.
func roleMatches(t model.Trade, wallet string, role model.Role) bool {
	if role == "" || role == model.RoleBoth {
		return true
	}
	for _, f := range t.Fills {
		if r, ok := f.WalletRole(wallet); ok {
			return r == role
		}
	}
	return true
}

// distinctWallets collects every lowercased maker/taker address seen
// in fills, in first-seen order.
func distinctWallets(fills []model.Fill) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range fills {
		for _, raw := range [2]string{f.MakerWallet, f.TakerWallet} {
			w := strings.ToLower(raw)
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// chronologicalRank assigns each trade a 1-based rank by ascending
// timestamp among the trades passed in, keyed by (tx hash, wallet)
// since Trade carries no identifier of its own.
func chronologicalRank(trades []model.Trade) map[string]int {
	ordered := make([]model.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	rank := make(map[string]int, len(ordered))
	for i, t := range ordered {
		rank[tradeKey(t)] = i + 1
	}
	return rank
}

func tradeKey(t model.Trade) string {
	return t.TransactionHash + "|" + t.Wallet
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// opportunisticBackfill drains a bounded number of backfill-queue
// entries with a bounded time budget after an analyze run completes
// (spec §4.10 closing step).
const (
	backfillDrainLimit = 5
	backfillTimeBudget = 5 * time.Second
)

func (p *Pipeline) opportunisticBackfill(ctx context.Context) {
	entries, err := p.st.DequeueBackfill(ctx, backfillDrainLimit)
	if err != nil {
		p.log.Warn().Err(err).Msg("backfill dequeue failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	deadline := time.Now().Add(backfillTimeBudget)
	now := p.clk.Now().Unix()
	for _, e := range entries {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if err := p.st.EnqueueBackfill(ctx, e.Wallet, e.Priority, now); err != nil {
				p.log.Warn().Err(err).Str("wallet", e.Wallet).Msg("re-enqueue after budget exhaustion failed")
			}
			continue
		}
		bctx, cancel := context.WithTimeout(ctx, remaining)
		_, err := p.accts.Lookup(bctx, e.Wallet)
		cancel()
		if err != nil {
			p.log.Warn().Err(err).Str("wallet", e.Wallet).Msg("opportunistic backfill lookup failed")
		}
	}
}
