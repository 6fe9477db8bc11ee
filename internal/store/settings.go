package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	jwtSecretKey  = "jwt_secret"
	jobRunPrefix  = "last_run:"
	jobRunPattern = jobRunPrefix + "%"
)

// GetJWTSecret returns the JWT signing secret, generating and storing one on
// first use.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return ensureSetting(ctx, db, jwtSecretKey, hex.EncodeToString(buf))
}

// ensureSetting stores candidate under key unless a value is already there,
// and returns whichever value won. INSERT OR IGNORE + re-SELECT keeps
// concurrent first callers in agreement.
func ensureSetting(ctx context.Context, db *sql.DB, key, candidate string) (string, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var value string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}
	return value, nil
}

// RecordJobRun stores when a background job last finished successfully.
func RecordJobRun(ctx context.Context, db *sql.DB, job string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		jobRunPrefix+job, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run of %s: %w", job, err)
	}
	return nil
}

// JobRuns returns the last successful run of every job that has one, keyed
// by job name.
func JobRuns(ctx context.Context, db *sql.DB) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key LIKE ?`, jobRunPattern,
	)
	if err != nil {
		return nil, fmt.Errorf("listing job runs: %w", err)
	}
	defer rows.Close()

	runs := make(map[string]time.Time)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("job run %s: %w", key, err)
		}
		runs[strings.TrimPrefix(key, jobRunPrefix)] = at
	}
	return runs, rows.Err()
}
