package checkpoint

const schema = `
CREATE TABLE IF NOT EXISTS periods (
    id         TEXT PRIMARY KEY,
    sealed     BOOLEAN NOT NULL DEFAULT 0,
    archived   BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    id            TEXT NOT NULL,
    period_id     TEXT NOT NULL REFERENCES periods(id),
    source        TEXT NOT NULL,
    external_id   TEXT NOT NULL,
    title         TEXT NOT NULL,
    body          TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    published_at  DATETIME NOT NULL,
    status        TEXT NOT NULL,
    run_batch_id  TEXT NOT NULL DEFAULT '',
    updated_at    DATETIME NOT NULL,
    partial_score REAL,
    final_score   REAL,
    trend_score   REAL,
    entities      TEXT NOT NULL DEFAULT '[]',
    dimensions    TEXT NOT NULL DEFAULT '{}',
    absorbed_ids  TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (period_id, id),
    UNIQUE (period_id, source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_items_period ON items(period_id);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(period_id, status);
CREATE INDEX IF NOT EXISTS idx_items_published ON items(period_id, published_at);
`
