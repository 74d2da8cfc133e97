package store

// schemaSQL is migration 1: the tables as they existed before sync
// watermarks were added to markets. Kept in its pre-sync shape
// deliberately so migrateAddMarketSyncColumns (migration 2, in
// migrations.go) has something real to guard-ALTER onto, the way it
// would against a database created before this feature shipped.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS fills (
	fill_id          TEXT PRIMARY KEY,
	transaction_hash TEXT NOT NULL,
	timestamp        INTEGER NOT NULL,
	order_hash       TEXT NOT NULL DEFAULT '',
	side             TEXT NOT NULL,
	size             INTEGER NOT NULL,
	price            INTEGER NOT NULL,
	maker_wallet     TEXT NOT NULL,
	taker_wallet     TEXT NOT NULL,
	token_id         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_maker ON fills(maker_wallet, timestamp);
CREATE INDEX IF NOT EXISTS idx_fills_taker ON fills(taker_wallet, timestamp);
CREATE INDEX IF NOT EXISTS idx_fills_token ON fills(token_id);
CREATE INDEX IF NOT EXISTS idx_fills_tx ON fills(transaction_hash);

CREATE TABLE IF NOT EXISTS markets (
	token_id             TEXT PRIMARY KEY,
	condition_id         TEXT NOT NULL,
	question             TEXT NOT NULL DEFAULT '',
	outcome_label        TEXT NOT NULL DEFAULT '',
	outcome_index        INTEGER NOT NULL,
	created_at           INTEGER,
	resolved_at          INTEGER
);
CREATE INDEX IF NOT EXISTS idx_markets_condition ON markets(condition_id);

CREATE TABLE IF NOT EXISTS accounts (
	wallet               TEXT PRIMARY KEY,
	creation_timestamp   INTEGER NOT NULL DEFAULT 0,
	lifetime_trades      INTEGER NOT NULL DEFAULT 0,
	lifetime_volume      INTEGER NOT NULL DEFAULT 0,
	lifetime_profit      INTEGER NOT NULL DEFAULT 0,
	synced_from          INTEGER,
	synced_to            INTEGER,
	synced_at            INTEGER,
	has_complete_history INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS redemptions (
	redemption_id TEXT PRIMARY KEY,
	wallet        TEXT NOT NULL,
	condition_id  TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	payout        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_redemptions_wallet ON redemptions(wallet, timestamp);

CREATE TABLE IF NOT EXISTS backfill_queue (
	wallet      TEXT PRIMARY KEY,
	priority    INTEGER NOT NULL DEFAULT 0,
	enqueued_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backfill_priority ON backfill_queue(priority DESC, enqueued_at);
`
