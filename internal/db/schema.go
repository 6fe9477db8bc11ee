package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS people (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL CHECK (type IN ('student', 'faculty', 'staff', 'visitor')),
    student_id  TEXT,
    employee_id TEXT,
    email       TEXT,
    phone       TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_people_student_id
    ON people(student_id) WHERE student_id IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_people_employee_id
    ON people(employee_id) WHERE employee_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    code          TEXT NOT NULL UNIQUE,
    category      TEXT NOT NULL,
    name          TEXT NOT NULL,
    description   TEXT,
    color         TEXT,
    brand         TEXT,
    location      TEXT,
    date_reported DATETIME NOT NULL,
    reported_by   INTEGER REFERENCES people(id),
    status        TEXT NOT NULL CHECK (status IN ('missing', 'in_custody', 'claimed', 'donated', 'deleted')),
    state         TEXT NOT NULL,
    last_restore  TEXT,
    version       INTEGER NOT NULL DEFAULT 1,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);

CREATE TABLE IF NOT EXISTS item_events (
    id          INTEGER PRIMARY KEY,
    item_id     INTEGER NOT NULL REFERENCES items(id),
    from_status TEXT,
    to_status   TEXT NOT NULL,
    actor       TEXT,
    note        TEXT,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_item_events_item ON item_events(item_id);

CREATE TABLE IF NOT EXISTS match_candidates (
    lost_item_id  INTEGER NOT NULL REFERENCES items(id),
    found_item_id INTEGER NOT NULL REFERENCES items(id),
    score         INTEGER NOT NULL,
    computed_at   DATETIME NOT NULL,
    PRIMARY KEY (lost_item_id, found_item_id)
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
