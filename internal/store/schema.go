package store

const schema = `
CREATE TABLE IF NOT EXISTS updates (
    name TEXT NOT NULL,
    revision INTEGER NOT NULL,
    installed_revision INTEGER NOT NULL,
    version TEXT,
    title TEXT,
    download_url TEXT,
    download_sha512 TEXT,
    binary_size INTEGER,
    changelog TEXT,
    token TEXT,
    state TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (name, revision)
);

CREATE TABLE IF NOT EXISTS checks (
    id TEXT PRIMARY KEY,
    package TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    outcome TEXT NOT NULL,
    records INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_updates_state ON updates(state);
CREATE INDEX IF NOT EXISTS idx_checks_finished ON checks(finished_at);
`
