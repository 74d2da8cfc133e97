package monitor

import (
	"context"
	"strings"
	"time"

	"polyscope/accounts"
	"polyscope/model"
	"polyscope/score"
	"polyscope/signal"
)

// parseEvent converts one wire TradeEvent into the wallet-perspective
// Trade shape the signal suite and classifier expect. The stream
// already reports the proxy wallet's own side, size, and price for a
// single trade, unlike the batch fill stream, which needs the full
// aggregator to derive a wallet's side from raw maker/taker fills. One
// event is one Trade; FillCount is always 1 and Fills is left empty
// since there is no underlying Fill record to attach.
func parseEvent(ev model.TradeEvent) (model.Trade, error) {
	size, err := model.ParseAmount(ev.Size)
	if err != nil {
		return model.Trade{}, err
	}
	price, err := model.ParseAmount(ev.Price)
	if err != nil {
		return model.Trade{}, err
	}

	return model.Trade{
		TransactionHash: ev.TransactionHash,
		MarketID:        ev.Asset,
		ConditionID:     ev.ConditionID,
		Wallet:          strings.ToLower(ev.ProxyWallet),
		Side:            model.TradeSide(strings.ToUpper(ev.Side)),
		Outcome:         model.OutcomeFromIndex(ev.OutcomeIndex),
		TotalSize:       size,
		AvgPrice:        price,
		TotalValueUSD:   size.Mul(price),
		Timestamp:       ev.Timestamp,
		FillCount:       1,
	}, nil
}

// handleEvent applies the minimum-size filter, resolves history
// through the session cache, scores the trade, and emits it (spec
// §4.11 per-event handling).
func (m *Monitor) handleEvent(ctx context.Context, ev model.TradeEvent) {
	trade, err := parseEvent(ev)
	if err != nil {
		m.log.Warn().Err(err).Str("tx", ev.TransactionHash).Msg("unparseable trade event, dropped")
		return
	}

	if trade.TotalValueUSD.ToFloat() < m.minSizeUSD {
		return
	}

	h := m.historyFor(ctx, trade.Wallet)
	scored := m.scoreEvent(ctx, trade, ev, h)

	if scored.IsAlert {
		m.emitAlert(scored)
	} else if m.verbose {
		m.emitVerbose(scored)
	}
}

// historyFor resolves wallet through the session cache, falling back
// to the account fetcher on a miss and caching the result for the
// configured TTL.
func (m *Monitor) historyFor(ctx context.Context, wallet string) accounts.Lookup {
	if h, ok := m.cache.Get(wallet); ok {
		return h
	}

	h, err := m.accts.Lookup(ctx, wallet)
	if err != nil {
		m.log.Warn().Err(err).Str("wallet", wallet).Msg("account history lookup failed")
		h = accounts.NotFound()
	}
	m.cache.Add(wallet, h)
	return h
}

func (m *Monitor) scoreEvent(ctx context.Context, t model.Trade, ev model.TradeEvent, h accounts.Lookup) score.Scored {
	var statePtr *model.AccountState
	if state, err := m.st.GetAccountStateAt(ctx, t.Wallet, t.Timestamp); err == nil {
		statePtr = &state
	} else {
		m.log.Warn().Err(err).Str("wallet", t.Wallet).Msg("point-in-time state reconstruction failed")
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

	sizeSig := signal.Size(m.cfg, t.TotalValueUSD, nil, nil)
	histSig := signal.AccountHistory(m.cfg, h, statePtr, t.Timestamp, profit)
	convSig := signal.Conviction(m.cfg, h, statePtr, t.TotalValueUSD)
	scored := score.Combine(m.cfg, t, []signal.Signal{sizeSig, histSig, convSig})

	mc := score.MarketContext{}
	if mk, err := m.resolver.Resolve(ctx, t.MarketID); err == nil {
		mc.MarketCreatedAt = mk.CreatedAt
	}
	if statePtr != nil {
		mc.PriorPositionShare = statePtr.VolumeBefore
	}
	scored.Tags = score.Classify(m.cfg, t, t.AvgPrice, mc)

	return scored
}

func (m *Monitor) emitAlert(s score.Scored) {
	if m.OnAlert != nil {
		m.OnAlert(s)
	}
	m.log.Info().
		Str("wallet", s.Trade.Wallet).
		Int("score", s.Total).
		Str("side", string(s.Trade.Side)).
		Str("value", s.Trade.TotalValueUSD.String()).
		Interface("tags", s.Tags).
		Msg("ALERT")
}

func (m *Monitor) emitVerbose(s score.Scored) {
	if m.OnVerbose != nil {
		m.OnVerbose(s)
	}
	m.log.Debug().
		Str("wallet", s.Trade.Wallet).
		Int("score", s.Total).
		Str("value", s.Trade.TotalValueUSD.String()).
		Msg("scored")
}

// idleBackfillDrainLimit and idleBackfillTimeBudget bound the
// idle-triggered backfill pass (spec §4.11): at most 3 wallets, at most
// 10 seconds of wall time. The Analyze Pipeline's post-run pass has its
// own bounds (5 wallets, 5 seconds).
const (
	idleBackfillDrainLimit = 3
	idleBackfillTimeBudget = 10 * time.Second
)

func (m *Monitor) idleBackfill(ctx context.Context) {
	entries, err := m.st.DequeueBackfill(ctx, idleBackfillDrainLimit)
	if err != nil {
		m.log.Warn().Err(err).Msg("idle backfill dequeue failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	deadline := time.Now().Add(idleBackfillTimeBudget)
	now := m.clk.Now().Unix()
	for _, e := range entries {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if err := m.st.EnqueueBackfill(ctx, e.Wallet, e.Priority, now); err != nil {
				m.log.Warn().Err(err).Str("wallet", e.Wallet).Msg("re-enqueue after idle budget exhaustion failed")
			}
			continue
		}
		bctx, cancel := context.WithTimeout(ctx, remaining)
		_, err := m.accts.Lookup(bctx, e.Wallet)
		cancel()
		if err != nil {
			m.log.Warn().Err(err).Str("wallet", e.Wallet).Msg("idle backfill lookup failed")
		}
	}
}
