package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// SaveMatches replaces the stored candidate map with the given one.
func SaveMatches(ctx context.Context, db *sql.DB, candidates map[int64][]model.MatchCandidate, computedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_candidates`); err != nil {
		return fmt.Errorf("clearing match candidates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO match_candidates (lost_item_id, found_item_id, score, computed_at)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for lostID, list := range candidates {
		for _, c := range list {
			if _, err := stmt.ExecContext(ctx, lostID, c.FoundItemID, c.Score, computedAt.UTC()); err != nil {
				return fmt.Errorf("saving match %d/%d: %w", lostID, c.FoundItemID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing matches: %w", err)
	}
	return nil
}

// ListMatches returns stored candidates, optionally for one lost item,
// best score first within each lost item.
func ListMatches(ctx context.Context, db *sql.DB, lostItemID int64) ([]model.MatchCandidate, error) {
	query := `SELECT m.lost_item_id, m.found_item_id, m.score, m.computed_at,
	                 i.name AS found_item_name, i.code AS found_item_code
	          FROM match_candidates m
	          JOIN items i ON i.id = m.found_item_id
	          WHERE 1=1`
	var args []any

	if lostItemID > 0 {
		query += ` AND m.lost_item_id = ?`
		args = append(args, lostItemID)
	}

	query += ` ORDER BY m.lost_item_id, m.score DESC, m.found_item_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.MatchCandidate
	for rows.Next() {
		var c model.MatchCandidate
		if err := rows.Scan(&c.LostItemID, &c.FoundItemID, &c.Score, &c.ComputedAt,
			&c.FoundItemName, &c.FoundItemCode); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, c)
	}
	return matches, rows.Err()
}
