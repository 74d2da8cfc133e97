package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"polyscope/model"
)

// SaveRedemptions upserts redemption rows by redemption_id.
func (s *Store) SaveRedemptions(ctx context.Context, reds []model.Redemption) error {
	if len(reds) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO redemptions (redemption_id, wallet, condition_id, timestamp, payout)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(redemption_id) DO UPDATE SET
				wallet       = excluded.wallet,
				condition_id = excluded.condition_id,
				timestamp    = excluded.timestamp,
				payout       = excluded.payout
		`)
		if err != nil {
			return fmt.Errorf("prepare redemption upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range reds {
			if _, err := stmt.ExecContext(ctx, r.RedemptionID, strings.ToLower(r.Wallet), r.ConditionID, r.Timestamp, int64(r.Payout)); err != nil {
				return fmt.Errorf("upsert redemption %s: %w", r.RedemptionID, err)
			}
		}
		return nil
	})
}

// GetRedemptionsForWallet returns a wallet's redemptions ordered
// ascending by timestamp.
func (s *Store) GetRedemptionsForWallet(ctx context.Context, wallet string) ([]model.Redemption, error) {
	wallet = strings.ToLower(wallet)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT redemption_id, wallet, condition_id, timestamp, payout
		FROM redemptions WHERE wallet = ? ORDER BY timestamp ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	var out []model.Redemption
	for rows.Next() {
		var r model.Redemption
		var payout int64
		if err := rows.Scan(&r.RedemptionID, &r.Wallet, &r.ConditionID, &r.Timestamp, &payout); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		r.Payout = model.Amount(payout)
		out = append(out, r)
	}
	return out, rows.Err()
}
