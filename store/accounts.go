package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"polyscope/aggregate"
	"polyscope/model"
)

// UpsertAccount inserts or updates one account summary row.
func (s *Store) UpsertAccount(ctx context.Context, a model.Account) error {
	a.Wallet = strings.ToLower(a.Wallet)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO accounts (wallet, creation_timestamp, lifetime_trades, lifetime_volume, lifetime_profit, synced_from, synced_to, synced_at, has_complete_history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			creation_timestamp   = excluded.creation_timestamp,
			lifetime_trades      = excluded.lifetime_trades,
			lifetime_volume      = excluded.lifetime_volume,
			lifetime_profit      = excluded.lifetime_profit,
			synced_from          = excluded.synced_from,
			synced_to            = excluded.synced_to,
			synced_at            = excluded.synced_at,
			has_complete_history = excluded.has_complete_history
	`, a.Wallet, a.CreationTimestamp, a.LifetimeTrades, int64(a.LifetimeVolume), int64(a.LifetimeProfit),
		a.Sync.SyncedFrom, a.Sync.SyncedTo, a.Sync.SyncedAt, boolToInt(a.Sync.HasCompleteHistory))
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Wallet, err)
	}
	return nil
}

// GetAccount looks up one account summary by wallet. Returns
// ErrNotFound if absent.
func (s *Store) GetAccount(ctx context.Context, wallet string) (model.Account, error) {
	wallet = strings.ToLower(wallet)
	row := s.conn.QueryRowContext(ctx, `
		SELECT wallet, creation_timestamp, lifetime_trades, lifetime_volume, lifetime_profit, synced_from, synced_to, synced_at, has_complete_history
		FROM accounts WHERE wallet = ?
	`, wallet)

	var a model.Account
	var volume, profit int64
	var hasHistory int
	err := row.Scan(&a.Wallet, &a.CreationTimestamp, &a.LifetimeTrades, &volume, &profit,
		&a.Sync.SyncedFrom, &a.Sync.SyncedTo, &a.Sync.SyncedAt, &hasHistory)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.LifetimeVolume = model.Amount(volume)
	a.LifetimeProfit = model.Amount(profit)
	a.Sync.HasCompleteHistory = hasHistory != 0
	return a, nil
}

// GetAccountStateAt reconstructs a wallet's trading history strictly
// before asOf from stored fills (spec §4.7, §9): a fill at exactly
// asOf is excluded. approximate is true when the account's sync
// watermark does not provably cover everything before asOf.
func (s *Store) GetAccountStateAt(ctx context.Context, wallet string, asOf int64) (model.AccountState, error) {
	wallet = strings.ToLower(wallet)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT timestamp, size, price, side, maker_wallet, taker_wallet, transaction_hash, token_id
		FROM fills
		WHERE (maker_wallet = ? OR taker_wallet = ?) AND timestamp < ?
		ORDER BY timestamp ASC
	`, wallet, wallet, asOf)
	if err != nil {
		return model.AccountState{}, fmt.Errorf("query fills before asOf: %w", err)
	}
	defer rows.Close()

	state := model.AccountState{Wallet: wallet, AsOf: asOf}
	var lastTS int64
	haveTrade := false
	var fills []model.Fill
	tokenIDs := make(map[string]struct{})

	for rows.Next() {
		var ts int64
		var size, price int64
		var side, maker, taker, tx, tokenID string
		if err := rows.Scan(&ts, &size, &price, &side, &maker, &taker, &tx, &tokenID); err != nil {
			return model.AccountState{}, fmt.Errorf("scan account-state fill: %w", err)
		}
		f := model.Fill{
			Timestamp: ts, Size: model.Amount(size), Price: model.Amount(price), Side: model.Side(side),
			MakerWallet: maker, TakerWallet: taker, TransactionHash: tx, TokenID: tokenID,
		}
		if _, ok := f.WalletRole(wallet); !ok {
			continue
		}
		state.TradeCountBefore++
		fills = append(fills, f)
		tokenIDs[tokenID] = struct{}{}
		lastTS = ts
		haveTrade = true
	}
	if err := rows.Err(); err != nil {
		return model.AccountState{}, fmt.Errorf("iterate account-state fills: %w", err)
	}
	if haveTrade {
		state.LastTradeTimestamp = &lastTS
	}

	// volume_before must go through the same per-(tx, condition)
	// complementary-side selection the aggregator applies, or a
	// cross-matched transaction double-counts the discarded side.
	markets := make(map[string]model.Market, len(tokenIDs))
	for tokenID := range tokenIDs {
		mk, err := s.GetMarket(ctx, tokenID)
		if errors.Is(err, ErrNotFound) {
			continue // aggregate.Run drops fills for unknown tokens rather than guessing a condition
		}
		if err != nil {
			return model.AccountState{}, fmt.Errorf("lookup market %s: %w", tokenID, err)
		}
		markets[tokenID] = mk
	}
	trades, _ := aggregate.Run(fills, wallet, markets, nil)
	for _, t := range trades {
		state.VolumeBefore = state.VolumeBefore.Add(t.TotalValueUSD)
	}

	acct, err := s.GetAccount(ctx, wallet)
	switch {
	case errors.Is(err, ErrNotFound):
		state.Approximate = true
	case err != nil:
		return model.AccountState{}, err
	default:
		state.Approximate = !acct.Sync.Covers(0, asOf)
	}

	return state, nil
}
