package analyze

import (
	"context"
	"strings"

	"polyscope/accounts"
	"polyscope/config"
	"polyscope/model"
	"polyscope/score"
	"polyscope/signal"
)

// excludeSafeBets drops trades that are trivially high-expected-value
// (spec §4.10 phase 1 pre-filter): a buy near price 1.0 or a sell near
// price 0.0 on an already-resolved market carries no informational
// content worth scoring.
func excludeSafeBets(cfg config.ScoringConfig, trades []model.Trade, markets map[string]model.Market) []model.Trade {
	if !cfg.SafeBetEnabled {
		return trades
	}
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if isSafeBet(cfg, t, markets[t.MarketID]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isSafeBet(cfg config.ScoringConfig, t model.Trade, mk model.Market) bool {
	if !mk.Resolved() {
		return false
	}
	p := t.AvgPrice.ToFloat()
	switch t.Side {
	case model.TradeBuy:
		return p >= cfg.SafeBetThreshold
	case model.TradeSell:
		return p <= 1-cfg.SafeBetThreshold
	default:
		return false
	}
}

// phase1QuickScore scores every trade without account history and
// collects the wallets whose quick score meets the candidate
// threshold.
func (p *Pipeline) phase1QuickScore(trades []model.Trade) map[string]struct{} {
	threshold := p.cfg.AlertThreshold - candidateThresholdMargin
	if threshold < candidateThresholdFloor {
		threshold = candidateThresholdFloor
	}

	candidates := make(map[string]struct{})
	for _, t := range trades {
		sizeSig := signal.Size(p.cfg, t.TotalValueUSD, nil, nil)
		histSig := signal.AccountHistory(p.cfg, accounts.Skipped(), nil, t.Timestamp, model.Zero)
		convSig := signal.Conviction(p.cfg, accounts.Skipped(), nil, t.TotalValueUSD)
		quick := score.Combine(p.cfg, t, []signal.Signal{sizeSig, histSig, convSig})
		if quick.Total >= threshold {
			candidates[strings.ToLower(t.Wallet)] = struct{}{}
		}
	}
	return candidates
}

// phase3FinalScore re-scores every trade belonging to a candidate
// wallet with its now-populated history, keeps the ones meeting the
// alert threshold, and attaches classifier tags.
func (p *Pipeline) phase3FinalScore(ctx context.Context, trades []model.Trade, markets map[string]model.Market, rank map[string]int, histories map[string]accounts.Lookup, candidates map[string]struct{}) []score.Scored {
	var out []score.Scored
	for _, t := range trades {
		wallet := strings.ToLower(t.Wallet)
		if _, ok := candidates[wallet]; !ok {
			continue
		}

		h, ok := histories[wallet]
		if !ok {
			h = accounts.Skipped()
		}

		scored := p.scoreOne(ctx, t, markets, rank, h)
		if scored.IsAlert {
			out = append(out, scored)
		}
	}
	return out
}

// analyzeWallet is the wallet-mode variant: every reconstructed trade
// for req.Wallet is scored and reported, skipping the candidate and
// safe-bet filters entirely (spec §4.10 wallet-mode).
func (p *Pipeline) analyzeWallet(ctx context.Context, req Request, trades []model.Trade, markets map[string]model.Market) (*Result, error) {
	wallet := strings.ToLower(req.Wallet)
	h, err := p.accts.Lookup(ctx, wallet)
	if err != nil {
		return nil, err
	}

	rank := chronologicalRank(trades)
	sourceCounts := map[accounts.DataSource]int{}
	if found, ok := h.Get(); ok {
		sourceCounts[found.Source] = 1
	}

	scored := make([]score.Scored, 0, len(trades))
	for _, t := range trades {
		scored = append(scored, p.scoreOne(ctx, t, markets, rank, h))
	}

	if req.TopN > 0 && len(scored) > req.TopN {
		scored = scored[:req.TopN]
	}

	p.opportunisticBackfill(ctx)
	return &Result{
		Scored:           scored,
		SourceCounts:     sourceCounts,
		TradesConsidered: len(trades),
		Candidates:       1,
	}, nil
}

// scoreOne computes the full signal suite, combines it, and attaches
// classifier tags for a single trade. Errors reconstructing
// point-in-time state degrade to a nil state (lifetime totals only)
// rather than failing the whole run.
func (p *Pipeline) scoreOne(ctx context.Context, t model.Trade, markets map[string]model.Market, rank map[string]int, h accounts.Lookup) score.Scored {
	var statePtr *model.AccountState
	if state, err := p.st.GetAccountStateAt(ctx, t.Wallet, t.Timestamp); err == nil {
		statePtr = &state
	} else {
		p.log.Warn().Err(err).Str("wallet", t.Wallet).Msg("point-in-time state reconstruction failed")
	}

	profit := model.Zero
	if statePtr != nil {
		profit = statePtr.PnLBefore
	}
	if profit == 0 {
		if found, ok := h.Get(); ok {
			profit = found.Profit
		}
	}

	sizeSig := signal.Size(p.cfg, t.TotalValueUSD, nil, nil)
	histSig := signal.AccountHistory(p.cfg, h, statePtr, t.Timestamp, profit)
	convSig := signal.Conviction(p.cfg, h, statePtr, t.TotalValueUSD)
	scored := score.Combine(p.cfg, t, []signal.Signal{sizeSig, histSig, convSig})

	mc := score.MarketContext{ChronologicalRank: rank[tradeKey(t)]}
	if mk, ok := markets[t.MarketID]; ok {
		mc.MarketCreatedAt = mk.CreatedAt
	}
	if statePtr != nil {
		mc.PriorPositionShare = statePtr.VolumeBefore
	}
	scored.Tags = score.Classify(p.cfg, t, t.AvgPrice, mc)

	return scored
}
