package store

import (
	"context"
	"fmt"
	"strings"

	"polyscope/model"
)

// EnqueueBackfill adds or bumps a wallet's priority in the
// opportunistic backfill queue (spec §4.9 candidate-narrowing,
// monitor's idle-timer backfill). Re-enqueueing keeps the higher of
// the existing and new priority.
func (s *Store) EnqueueBackfill(ctx context.Context, wallet string, priority int, enqueuedAt int64) error {
	wallet = strings.ToLower(wallet)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO backfill_queue (wallet, priority, enqueued_at)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			priority = MAX(priority, excluded.priority)
	`, wallet, priority, enqueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue backfill for %s: %w", wallet, err)
	}
	return nil
}

// DequeueBackfill pops up to limit wallets, highest priority first,
// removing them from the queue.
func (s *Store) DequeueBackfill(ctx context.Context, limit int) ([]model.BackfillQueueEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT wallet, priority FROM backfill_queue
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query backfill queue: %w", err)
	}

	var out []model.BackfillQueueEntry
	for rows.Next() {
		var e model.BackfillQueueEntry
		if err := rows.Scan(&e.Wallet, &e.Priority); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan backfill entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate backfill queue: %w", err)
	}
	rows.Close()

	for _, e := range out {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM backfill_queue WHERE wallet = ?`, e.Wallet); err != nil {
			return nil, fmt.Errorf("dequeue backfill for %s: %w", e.Wallet, err)
		}
	}
	return out, nil
}
