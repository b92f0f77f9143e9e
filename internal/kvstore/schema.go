package kvstore

const schema = `
-- The 'kv' table holds JSON-encoded values addressed by a string key.
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`
