package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// ErrVersionConflict is returned by UpdateItem when the item changed since it was read.
var ErrVersionConflict = errors.New("item version conflict")

// ErrNotFound is returned by writes that target a missing record.
var ErrNotFound = errors.New("record not found")

const itemColumns = `id, code, category, name, description, color, brand, location,
	date_reported, reported_by, status, state, last_restore, version, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateItem inserts a new item and records its initial status event. A
// non-zero item.CreatedAt is kept as the creation time.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item, actor string) (*model.Item, error) {
	state, err := model.MarshalState(item.State)
	if err != nil {
		return nil, fmt.Errorf("encoding item state: %w", err)
	}

	now := time.Now().UTC()
	if !item.CreatedAt.IsZero() {
		now = item.CreatedAt.UTC()
	}
	if item.DateReported.IsZero() {
		item.DateReported = now
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (code, category, name, description, color, brand, location,
		                    date_reported, reported_by, status, state, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		item.Code, string(item.Category), item.Name, item.Description, item.Color, item.Brand, item.Location,
		item.DateReported.UTC(), item.ReportedBy, string(item.Status()), string(state), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	if err := insertEvent(ctx, tx, &model.ItemEvent{
		ItemID:    id,
		ToStatus:  item.Status(),
		Actor:     actor,
		Note:      "reported",
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// FindItems returns items matching the filter, newest report first.
func FindItems(ctx context.Context, db *sql.DB, filter model.ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}

	query += ` ORDER BY date_reported DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem writes the item if its stored version still equals
// expectedVersion, bumping the version. When ev is non-nil it is recorded in
// the same transaction.
func UpdateItem(ctx context.Context, db *sql.DB, item *model.Item, expectedVersion int64, ev *model.ItemEvent) (*model.Item, error) {
	state, err := model.MarshalState(item.State)
	if err != nil {
		return nil, fmt.Errorf("encoding item state: %w", err)
	}

	var lastRestore sql.NullString
	if item.LastRestore != nil {
		data, err := json.Marshal(item.LastRestore)
		if err != nil {
			return nil, fmt.Errorf("encoding restore record: %w", err)
		}
		lastRestore = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET category = ?, name = ?, description = ?, color = ?, brand = ?, location = ?,
		        status = ?, state = ?, last_restore = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(item.Category), item.Name, item.Description, item.Color, item.Brand, item.Location,
		string(item.Status()), string(state), lastRestore, now,
		item.ID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, item.ID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking item: %w", err)
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}

	if ev != nil {
		ev.ItemID = item.ID
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item update: %w", err)
	}

	return GetItem(ctx, db, item.ID)
}

// ListItemEvents returns the status history of an item, oldest first.
func ListItemEvents(ctx context.Context, db *sql.DB, itemID int64) ([]model.ItemEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_id, from_status, to_status, actor, note, created_at
		 FROM item_events WHERE item_id = ? ORDER BY created_at, id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing item events: %w", err)
	}
	defer rows.Close()

	var events []model.ItemEvent
	for rows.Next() {
		var ev model.ItemEvent
		var from, actor, note sql.NullString
		var to string
		if err := rows.Scan(&ev.ID, &ev.ItemID, &from, &to, &actor, &note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item event: %w", err)
		}
		ev.FromStatus = model.Status(from.String)
		ev.ToStatus = model.Status(to)
		ev.Actor = actor.String
		ev.Note = note.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *model.ItemEvent) error {
	var from sql.NullString
	if ev.FromStatus != "" {
		from = sql.NullString{String: string(ev.FromStatus), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO item_events (item_id, from_status, to_status, actor, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ItemID, from, string(ev.ToStatus), ev.Actor, ev.Note, ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording item event: %w", err)
	}
	return nil
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var category, status, state string
	var description, color, brand, location, lastRestore sql.NullString
	err := row.Scan(&item.ID, &item.Code, &category, &item.Name, &description, &color, &brand, &location,
		&item.DateReported, &item.ReportedBy, &status, &state, &lastRestore, &item.Version,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Category = model.Category(category)
	item.Description = description.String
	item.Color = color.String
	item.Brand = brand.String
	item.Location = location.String

	item.State, err = model.UnmarshalState([]byte(state))
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", item.ID, err)
	}
	if item.Status() != model.Status(status) {
		return nil, fmt.Errorf("item %d: status column %q disagrees with state %q", item.ID, status, item.Status())
	}

	if lastRestore.Valid && lastRestore.String != "" {
		var r model.Restoration
		if err := json.Unmarshal([]byte(lastRestore.String), &r); err != nil {
			return nil, fmt.Errorf("item %d: decoding restore record: %w", item.ID, err)
		}
		item.LastRestore = &r
	}
	return item, nil
}
