package history

const schemaDDL = `
CREATE TABLE IF NOT EXISTS executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	venue          TEXT NOT NULL,
	instrument     TEXT NOT NULL,
	side           TEXT NOT NULL,
	size           REAL NOT NULL DEFAULT 0,
	order_id       TEXT NOT NULL DEFAULT '',
	submit_time_ms INTEGER NOT NULL DEFAULT 0,
	filled         BOOLEAN NOT NULL DEFAULT 0,
	fill_price     REAL NOT NULL DEFAULT 0,
	fill_size      REAL NOT NULL DEFAULT 0,
	fill_fee       REAL NOT NULL DEFAULT 0,
	realized_pnl   REAL NOT NULL DEFAULT 0,
	reason         TEXT NOT NULL DEFAULT '',
	api_error      TEXT NOT NULL DEFAULT '',
	recorded_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_exec_venue ON executions(venue);
CREATE INDEX IF NOT EXISTS idx_exec_order ON executions(order_id);
CREATE INDEX IF NOT EXISTS idx_exec_submit ON executions(submit_time_ms);

CREATE TABLE IF NOT EXISTS reconciliations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	venue_a    TEXT NOT NULL,
	venue_b    TEXT NOT NULL,
	size_a     REAL NOT NULL DEFAULT 0,
	size_b     REAL NOT NULL DEFAULT 0,
	delta_abs  REAL NOT NULL DEFAULT 0,
	verdict    TEXT NOT NULL,
	checked_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recon_checked ON reconciliations(checked_at);
`
