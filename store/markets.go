package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"polyscope/model"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// UpsertMarket inserts or updates one market row, including its sync
// watermark.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO markets (token_id, condition_id, question, outcome_label, outcome_index, created_at, resolved_at, synced_from, synced_to, synced_at, has_complete_history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			condition_id         = excluded.condition_id,
			question             = excluded.question,
			outcome_label        = excluded.outcome_label,
			outcome_index        = excluded.outcome_index,
			created_at           = excluded.created_at,
			resolved_at          = excluded.resolved_at,
			synced_from          = excluded.synced_from,
			synced_to            = excluded.synced_to,
			synced_at            = excluded.synced_at,
			has_complete_history = excluded.has_complete_history
	`, m.TokenID, m.ConditionID, m.Question, m.OutcomeLabel, m.OutcomeIndex, m.CreatedAt, m.ResolvedAt,
		m.Sync.SyncedFrom, m.Sync.SyncedTo, m.Sync.SyncedAt, boolToInt(m.Sync.HasCompleteHistory))
	if err != nil {
		return fmt.Errorf("upsert market %s: %w", m.TokenID, err)
	}
	return nil
}

// GetMarket looks up one market by token id. Returns ErrNotFound if
// absent.
func (s *Store) GetMarket(ctx context.Context, tokenID string) (model.Market, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT token_id, condition_id, question, outcome_label, outcome_index, created_at, resolved_at, synced_from, synced_to, synced_at, has_complete_history
		FROM markets WHERE token_id = ?
	`, tokenID)
	return scanMarket(row)
}

// GetMarketsByCondition returns every known market (token) for a
// condition, typically the YES and NO sides.
func (s *Store) GetMarketsByCondition(ctx context.Context, conditionID string) ([]model.Market, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT token_id, condition_id, question, outcome_label, outcome_index, created_at, resolved_at, synced_from, synced_to, synced_at, has_complete_history
		FROM markets WHERE condition_id = ?
	`, conditionID)
	if err != nil {
		return nil, fmt.Errorf("query markets for condition: %w", err)
	}
	defer rows.Close()

	var out []model.Market
	for rows.Next() {
		m, err := scanMarketRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AdvanceMarketSync merges a newly-fetched delta's range into a
// market's watermark: synced_from becomes the min of the existing and
// new lower bound, synced_to the max of the existing and new upper
// bound, synced_at is set to now, and has_complete_history is only
// ever raised from false to true, never lowered (a later partial fetch
// must not erase a previously-established complete history).
func (s *Store) AdvanceMarketSync(ctx context.Context, tokenID string, from, to *int64, now int64, complete bool) error {
	m, err := s.GetMarket(ctx, tokenID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lookup market %s for sync advance: %w", tokenID, err)
		}
		m = model.Market{TokenID: tokenID}
	}

	if from != nil && (m.Sync.SyncedFrom == nil || *from < *m.Sync.SyncedFrom) {
		m.Sync.SyncedFrom = from
	}
	if to != nil && (m.Sync.SyncedTo == nil || *to > *m.Sync.SyncedTo) {
		m.Sync.SyncedTo = to
	}
	m.Sync.SyncedAt = &now
	if complete {
		m.Sync.HasCompleteHistory = true
	}
	return s.UpsertMarket(ctx, m)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (model.Market, error) {
	var m model.Market
	var hasHistory int
	err := row.Scan(&m.TokenID, &m.ConditionID, &m.Question, &m.OutcomeLabel, &m.OutcomeIndex, &m.CreatedAt, &m.ResolvedAt,
		&m.Sync.SyncedFrom, &m.Sync.SyncedTo, &m.Sync.SyncedAt, &hasHistory)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Market{}, ErrNotFound
	}
	if err != nil {
		return model.Market{}, fmt.Errorf("scan market: %w", err)
	}
	m.Sync.HasCompleteHistory = hasHistory != 0
	return m, nil
}

func scanMarketRows(rows *sql.Rows) (model.Market, error) {
	return scanMarket(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
