// Package resolver maps opaque token identifiers to their condition,
// question, and outcome metadata (spec §4.3), using the store as a
// cache and falling back to the indexer client on a miss.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"polyscope/indexer"
	"polyscope/model"
	"polyscope/store"
)

// ErrUnknownToken is returned when neither the store nor the indexer
// knows about a token.
var ErrUnknownToken = errors.New("resolver: unknown token")

// Resolver resolves tokens through the store, backed by the indexer
// on cache miss.
type Resolver struct {
	st  *store.Store
	idx *indexer.Client
}

// New builds a Resolver.
func New(st *store.Store, idx *indexer.Client) *Resolver {
	return &Resolver{st: st, idx: idx}
}

// Resolve returns the market metadata for one token, fetching and
// caching through the indexer on a store miss.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) (model.Market, error) {
	m, err := r.st.GetMarket(ctx, tokenID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Market{}, fmt.Errorf("lookup market %s in store: %w", tokenID, err)
	}

	fetched, err := r.fetchFromIndexer(ctx, tokenID)
	if err != nil {
		return model.Market{}, err
	}
	if err := r.st.UpsertMarket(ctx, fetched); err != nil {
		return model.Market{}, fmt.Errorf("cache market %s: %w", tokenID, err)
	}
	return fetched, nil
}

// ResolveBatch resolves every token in tokenIDs, reusing the store
// cache and fetching the rest from the indexer. Unresolvable tokens
// are omitted from the result map rather than failing the whole
// batch, matching the aggregator's own tolerance for unknown tokens
// (spec §4.4 failure modes).
func (r *Resolver) ResolveBatch(ctx context.Context, tokenIDs []string) map[string]model.Market {
	out := make(map[string]model.Market, len(tokenIDs))
	for _, id := range tokenIDs {
		m, err := r.Resolve(ctx, id)
		if err != nil {
			continue
		}
		out[id] = m
	}
	return out
}

// fetchFromIndexer fetches one token's market metadata directly from
// the indexer's Market entity.
func (r *Resolver) fetchFromIndexer(ctx context.Context, tokenID string) (model.Market, error) {
	wm, err := r.idx.FetchMarket(ctx, tokenID)
	if err != nil {
		return model.Market{}, fmt.Errorf("fetch market %s from indexer: %w", tokenID, err)
	}
	if wm == nil {
		return model.Market{}, fmt.Errorf("resolve token %s: %w", tokenID, ErrUnknownToken)
	}

	var createdAt *int64
	if wm.CreatedTimestamp != "" {
		if ts, err := model.ParseUnixSeconds(wm.CreatedTimestamp); err == nil {
			createdAt = &ts
		}
	}

	return model.Market{
		TokenID:      wm.ID,
		ConditionID:  wm.Condition.ID,
		Question:     wm.Question,
		OutcomeLabel: wm.OutcomeLabel,
		OutcomeIndex: wm.OutcomeIndex,
		CreatedAt:    createdAt,
	}, nil
}

// RegisterFromFill records (or refreshes) a market's identity the
// first time a fill or position naming it is observed. condition and
// outcomeIndex come from the indexer response embedding the token.
func (r *Resolver) RegisterFromFill(ctx context.Context, tokenID, conditionID string, outcomeIndex int) error {
	existing, err := r.st.GetMarket(ctx, tokenID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup market %s: %w", tokenID, err)
	}
	if err == nil {
		// Already known; metadata updates merge but never clear sync
		// watermarks (spec §3 Market invariant).
		existing.ConditionID = conditionID
		existing.OutcomeIndex = outcomeIndex
		return r.st.UpsertMarket(ctx, existing)
	}
	return r.st.UpsertMarket(ctx, model.Market{TokenID: tokenID, ConditionID: conditionID, OutcomeIndex: outcomeIndex})
}
