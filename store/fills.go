package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"polyscope/model"
)

// SaveFills upserts fills by fill_id inside a single transaction.
// Re-saving the same fill is a no-op on every column but fill_id, so
// repeated delta fetches covering overlapping ranges stay idempotent
// (spec §8, fill idempotence).
func (s *Store) SaveFills(ctx context.Context, fills []model.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fills (fill_id, transaction_hash, timestamp, order_hash, side, size, price, maker_wallet, taker_wallet, token_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fill_id) DO UPDATE SET
				transaction_hash = excluded.transaction_hash,
				timestamp        = excluded.timestamp,
				order_hash       = excluded.order_hash,
				side             = excluded.side,
				size             = excluded.size,
				price            = excluded.price,
				maker_wallet     = excluded.maker_wallet,
				taker_wallet     = excluded.taker_wallet,
				token_id         = excluded.token_id
		`)
		if err != nil {
			return fmt.Errorf("prepare fill upsert: %w", err)
		}
		defer stmt.Close()

		for _, f := range fills {
			if _, err := stmt.ExecContext(ctx, f.FillID, f.TransactionHash, f.Timestamp, f.OrderHash, string(f.Side), int64(f.Size), int64(f.Price), strings.ToLower(f.MakerWallet), strings.ToLower(f.TakerWallet), f.TokenID); err != nil {
				return fmt.Errorf("upsert fill %s: %w", f.FillID, err)
			}
		}
		return nil
	})
}

// GetFillsForWallet returns every stored fill where wallet is maker or
// taker, with timestamp in [fromTS, toTS], ordered ascending.
func (s *Store) GetFillsForWallet(ctx context.Context, wallet string, fromTS, toTS int64) ([]model.Fill, error) {
	wallet = strings.ToLower(wallet)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT fill_id, transaction_hash, timestamp, order_hash, side, size, price, maker_wallet, taker_wallet, token_id
		FROM fills
		WHERE (maker_wallet = ? OR taker_wallet = ?) AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, wallet, wallet, fromTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("query fills for wallet: %w", err)
	}
	defer rows.Close()
	return scanFills(rows)
}

// GetFillsForMarket returns every stored fill on the given token in
// [fromTS, toTS], ordered ascending.
func (s *Store) GetFillsForMarket(ctx context.Context, tokenID string, fromTS, toTS int64) ([]model.Fill, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT fill_id, transaction_hash, timestamp, order_hash, side, size, price, maker_wallet, taker_wallet, token_id
		FROM fills
		WHERE token_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, tokenID, fromTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("query fills for market: %w", err)
	}
	defer rows.Close()
	return scanFills(rows)
}

func scanFills(rows *sql.Rows) ([]model.Fill, error) {
	var out []model.Fill
	for rows.Next() {
		var f model.Fill
		var side string
		var size, price int64
		if err := rows.Scan(&f.FillID, &f.TransactionHash, &f.Timestamp, &f.OrderHash, &side, &size, &price, &f.MakerWallet, &f.TakerWallet, &f.TokenID); err != nil {
			return nil, fmt.Errorf("scan fill row: %w", err)
		}
		f.Side = model.Side(side)
		f.Size = model.Amount(size)
		f.Price = model.Amount(price)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fill rows: %w", err)
	}
	return out, nil
}
