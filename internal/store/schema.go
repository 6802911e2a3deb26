package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    fetched_at           TEXT NOT NULL,
    source               TEXT NOT NULL,
    five_hour_pct        REAL,
    seven_day_pct        REAL,
    usage_percent        REAL,
    reset_time           TEXT,
    schema_version       TEXT,
    snapshot_json        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS token_totals (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at          TEXT NOT NULL,
    since                TEXT,
    total_tokens         INTEGER NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    cache_creation       INTEGER NOT NULL,
    cache_read           INTEGER NOT NULL,
    record_count         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at);
CREATE INDEX IF NOT EXISTS idx_token_totals_recorded ON token_totals(recorded_at);
`
