package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id              INTEGER PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT,
    max_days        INTEGER NOT NULL CHECK (max_days > 0),
    alert_start_day INTEGER CHECK (alert_start_day IS NULL OR alert_start_day > 0),
    thread_id       INTEGER NOT NULL DEFAULT 0,
    image           BLOB,
    image_mime      TEXT,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS queue (
    item_id       INTEGER NOT NULL REFERENCES items(id),
    user_id       INTEGER NOT NULL,
    phone         TEXT,
    location      TEXT,
    added_at      DATETIME NOT NULL,
    date_received DATETIME,
    date_done     DATETIME,
    PRIMARY KEY (item_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_queue_user ON queue(user_id);

CREATE TABLE IF NOT EXISTS history (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL REFERENCES items(id),
    user_id    INTEGER NOT NULL,
    start_date DATETIME NOT NULL,
    days       INTEGER NOT NULL CHECK (days >= 0),
    max_days   INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id);
CREATE INDEX IF NOT EXISTS idx_history_item ON history(item_id);

CREATE TABLE IF NOT EXISTS bans (
    user_id    INTEGER PRIMARY KEY,
    ends_on    DATETIME NOT NULL,
    reason     TEXT,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS otp (
    user_id    INTEGER PRIMARY KEY,
    phone      TEXT NOT NULL,
    code_hash  TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    sent_at    DATETIME NOT NULL,
    send_count INTEGER NOT NULL DEFAULT 1,
    attempts   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
