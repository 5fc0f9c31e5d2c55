package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS intervals (
    log_path             TEXT NOT NULL,
    seq                  INTEGER NOT NULL,
    start_time           TEXT NOT NULL,
    end_time             TEXT NOT NULL,
    duration_ns          INTEGER NOT NULL,
    PRIMARY KEY (log_path, seq)
);

CREATE TABLE IF NOT EXISTS log_tracker (
    log_path             TEXT PRIMARY KEY,
    size_bytes           INTEGER NOT NULL,
    mtime_ns             INTEGER NOT NULL,
    read_offset          INTEGER NOT NULL,
    skipped_lines        INTEGER NOT NULL DEFAULT 0,
    synced_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intervals_start ON intervals(start_time);
`
