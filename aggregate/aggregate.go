// Package aggregate reconstructs per-wallet per-transaction trades from
// raw maker/taker fill records. Run is a pure function: no I/O, no
// clock, same input always yields the same output (spec §4.4, §8).
package aggregate

import (
	"sort"

	"polyscope/model"
)

// Warning is a non-fatal condition encountered while aggregating, e.g.
// a fill referencing a token the caller's market map doesn't know
// about. The aggregator skips the affected group rather than failing.
type Warning struct {
	TokenID string
	Reason  string
}

const reasonMissingMarket = "fill references unknown token; condition dropped"

// walletFill is one fill annotated with the wallet's role and
// wallet-perspective side, computed once in Run (spec §4.4 steps 3–4).
type walletFill struct {
	fill model.Fill
	role model.Role
	side model.TradeSide
}

func toTradeSide(s model.Side) model.TradeSide {
	if s == model.Buy {
		return model.TradeBuy
	}
	return model.TradeSell
}

// Run groups fills by transaction, then by condition, applies
// same-transaction role deduplication and complementary-side
// selection, and aggregates the kept side into Trade values (spec §4.4
// steps 1–8). positions is optional; pass nil when unavailable.
func Run(fills []model.Fill, wallet string, markets map[string]model.Market, positions []model.Position) ([]model.Trade, []Warning) {
	var warnings []Warning
	posByToken := make(map[string]model.Amount, len(positions))
	for _, p := range positions {
		posByToken[p.TokenID] = p.NetQuantity
	}

	// Step 1: partition by transaction hash.
	byTx := make(map[string][]model.Fill)
	var txOrder []string
	for _, f := range fills {
		if _, seen := byTx[f.TransactionHash]; !seen {
			txOrder = append(txOrder, f.TransactionHash)
		}
		byTx[f.TransactionHash] = append(byTx[f.TransactionHash], f)
	}

	var trades []model.Trade
	for _, tx := range txOrder {
		txTrades, txWarnings := runTx(tx, byTx[tx], wallet, markets, posByToken)
		trades = append(trades, txTrades...)
		warnings = append(warnings, txWarnings...)
	}

	// Step 8: sort by timestamp descending.
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp > trades[j].Timestamp
	})

	return trades, warnings
}

func runTx(tx string, txFills []model.Fill, wallet string, markets map[string]model.Market, posByToken map[string]model.Amount) ([]model.Trade, []Warning) {
	var warnings []Warning

	// Steps 2–4: bucket by condition -> outcome, after role detection
	// and wallet-side derivation. Also track per-token role groupings
	// for step 5.
	type tokenKey struct {
		condition string
		token     string
	}
	byToken := make(map[tokenKey]map[model.Role][]walletFill)
	conditionOf := make(map[string]string) // token -> condition
	marketOf := make(map[string]model.Market)

	for _, f := range txFills {
		mk, ok := markets[f.TokenID]
		if !ok {
			warnings = append(warnings, Warning{TokenID: f.TokenID, Reason: reasonMissingMarket})
			continue
		}
		role, ok := f.WalletRole(wallet)
		if !ok {
			continue // neither maker nor taker is wallet
		}
		side := f.WalletSide(role)
		wf := walletFill{fill: f, role: role, side: toTradeSide(side)}

		k := tokenKey{condition: mk.ConditionID, token: f.TokenID}
		if byToken[k] == nil {
			byToken[k] = make(map[model.Role][]walletFill)
		}
		byToken[k][role] = append(byToken[k][role], wf)
		conditionOf[f.TokenID] = mk.ConditionID
		marketOf[f.TokenID] = mk
	}

	// Step 5: same-transaction role deduplication per (tx, token).
	keptByToken := make(map[tokenKey][]walletFill)
	for k, byRole := range byToken {
		makerVal := sumValue(byRole[model.RoleMaker])
		takerVal := sumValue(byRole[model.RoleTaker])
		if makerVal >= takerVal {
			keptByToken[k] = byRole[model.RoleMaker]
		} else {
			keptByToken[k] = byRole[model.RoleTaker]
		}
	}

	// Group kept-per-token fills by condition for step 6.
	byCondition := make(map[string]map[string][]walletFill) // condition -> token -> fills
	for k, wfs := range keptByToken {
		if len(wfs) == 0 {
			continue
		}
		if byCondition[k.condition] == nil {
			byCondition[k.condition] = make(map[string][]walletFill)
		}
		byCondition[k.condition][k.token] = wfs
	}

	var trades []model.Trade
	for condition, byTokenFills := range byCondition {
		trade := buildConditionTrade(tx, condition, byTokenFills, marketOf, posByToken, wallet)
		if trade != nil {
			trades = append(trades, *trade)
		}
	}

	return trades, warnings
}

func sumValue(wfs []walletFill) model.Amount {
	var total model.Amount
	for _, wf := range wfs {
		total = total.Add(wf.fill.ValueUSD())
	}
	return total
}

// buildConditionTrade applies step 6 (complementary-side selection) and
// step 7 (aggregation) for one condition's fills within one
// transaction. byTokenFills has at most two entries: the YES token and
// the NO token of this condition.
func buildConditionTrade(tx, condition string, byTokenFills map[string][]walletFill, marketOf map[string]model.Market, posByToken map[string]model.Amount, wallet string) *model.Trade {
	if len(byTokenFills) == 0 {
		return nil
	}

	if len(byTokenFills) == 1 {
		for token, wfs := range byTokenFills {
			return aggregateKept(tx, condition, token, marketOf[token], wfs, 0, false, wallet)
		}
	}

	// Exactly two tokens: the condition's YES and NO sides.
	tokens := make([]string, 0, 2)
	for token := range byTokenFills {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens) // deterministic ordering for tie-break below
	tokenA, tokenB := tokens[0], tokens[1]
	wfsA, wfsB := byTokenFills[tokenA], byTokenFills[tokenB]
	valA, valB := sumValue(wfsA), sumValue(wfsB)

	keepToken, keepWfs, discardVal := selectComplementarySide(tokenA, wfsA, valA, tokenB, wfsB, valB, posByToken)

	return aggregateKept(tx, condition, keepToken, marketOf[keepToken], keepWfs, discardVal, true, wallet)
}

// selectComplementarySide implements spec §4.4 step 6(a)(b)(c).
func selectComplementarySide(tokenA string, wfsA []walletFill, valA model.Amount, tokenB string, wfsB []walletFill, valB model.Amount, posByToken map[string]model.Amount) (string, []walletFill, model.Amount) {
	// (a) caller-supplied position: exactly one side has a non-zero position.
	posA, hasPosA := posByToken[tokenA]
	posB, hasPosB := posByToken[tokenB]
	aNonZero := hasPosA && posA != 0
	bNonZero := hasPosB && posB != 0
	if aNonZero != bNonZero {
		if aNonZero {
			return tokenA, wfsA, valB
		}
		return tokenB, wfsB, valA
	}

	// (b) maker on one side, taker on the other: prefer maker.
	aAllMaker, aAllTaker := allRole(wfsA, model.RoleMaker), allRole(wfsA, model.RoleTaker)
	bAllMaker, bAllTaker := allRole(wfsB, model.RoleMaker), allRole(wfsB, model.RoleTaker)
	if aAllMaker && bAllTaker {
		return tokenA, wfsA, valB
	}
	if bAllMaker && aAllTaker {
		return tokenB, wfsB, valA
	}

	// (c) higher total USD value wins.
	if valA >= valB {
		return tokenA, wfsA, valB
	}
	return tokenB, wfsB, valA
}

func allRole(wfs []walletFill, role model.Role) bool {
	if len(wfs) == 0 {
		return false
	}
	for _, wf := range wfs {
		if wf.role != role {
			return false
		}
	}
	return true
}

// aggregateKept implements spec §4.4 step 7: aggregate the kept side,
// additionally resolving any within-side BUY/SELL disagreement by
// keeping the higher-value sub-side and folding the rest into the
// complementary value.
func aggregateKept(tx, condition, token string, mk model.Market, wfs []walletFill, priorComplementary model.Amount, hadComplementary bool, wallet string) *model.Trade {
	if len(wfs) == 0 {
		return nil
	}

	buyVal, sellVal := model.Zero, model.Zero
	for _, wf := range wfs {
		if wf.side == model.TradeBuy {
			buyVal = buyVal.Add(wf.fill.ValueUSD())
		} else {
			sellVal = sellVal.Add(wf.fill.ValueUSD())
		}
	}

	keepSide := model.TradeBuy
	discard := sellVal
	if sellVal > buyVal {
		keepSide = model.TradeSell
		discard = buyVal
	}
	if discard > 0 {
		hadComplementary = true
		priorComplementary = priorComplementary.Add(discard)
	}

	var totalSize, totalValue model.Amount
	var minTS int64
	first := true
	fillCount := 0
	var kept []model.Fill
	for _, wf := range wfs {
		if wf.side != keepSide {
			continue
		}
		totalSize = totalSize.Add(wf.fill.Size)
		totalValue = totalValue.Add(wf.fill.ValueUSD())
		if first || wf.fill.Timestamp < minTS {
			minTS = wf.fill.Timestamp
			first = false
		}
		fillCount++
		kept = append(kept, wf.fill)
	}

	if fillCount == 0 {
		return nil
	}

	avgPrice := totalValue.Div(totalSize)

	return &model.Trade{
		TransactionHash:       tx,
		MarketID:              token,
		ConditionID:           condition,
		Wallet:                wallet,
		Side:                  keepSide,
		Outcome:               mk.Outcome(),
		TotalSize:             totalSize,
		AvgPrice:              avgPrice,
		TotalValueUSD:         totalValue,
		Timestamp:             minTS,
		FillCount:             fillCount,
		Fills:                 kept,
		HadComplementaryFills: hadComplementary,
		ComplementaryValue:    priorComplementary,
	}
}
