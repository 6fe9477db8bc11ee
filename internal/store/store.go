package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// Store binds the package functions to one database so they can be handed
// to the lifecycle, donation, and matching packages as interfaces.
type Store struct {
	DB *sql.DB
}

// New returns a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// CreateItem inserts an item and records its initial status event.
func (s *Store) CreateItem(ctx context.Context, item *model.Item, actor string) (*model.Item, error) {
	return CreateItem(ctx, s.DB, item, actor)
}

// GetItem returns an item by ID, or nil if it does not exist.
func (s *Store) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	return GetItem(ctx, s.DB, id)
}

// FindItems returns the items matching filter.
func (s *Store) FindItems(ctx context.Context, filter model.ItemFilter) ([]model.Item, error) {
	return FindItems(ctx, s.DB, filter)
}

// UpdateItem writes item if its version is still expectedVersion.
func (s *Store) UpdateItem(ctx context.Context, item *model.Item, expectedVersion int64, ev *model.ItemEvent) (*model.Item, error) {
	return UpdateItem(ctx, s.DB, item, expectedVersion, ev)
}

// ListItemEvents returns an item's status history, oldest first.
func (s *Store) ListItemEvents(ctx context.Context, itemID int64) ([]model.ItemEvent, error) {
	return ListItemEvents(ctx, s.DB, itemID)
}

// ResolvePerson gets or creates the person described by in.
func (s *Store) ResolvePerson(ctx context.Context, in model.PersonInput) (*model.Person, error) {
	return ResolvePerson(ctx, s.DB, in)
}

// GetPerson returns a person by ID, or nil if it does not exist.
func (s *Store) GetPerson(ctx context.Context, id int64) (*model.Person, error) {
	return GetPerson(ctx, s.DB, id)
}

// PublishMatches stores the sweep's candidate map for the API to serve.
func (s *Store) PublishMatches(ctx context.Context, candidates map[int64][]model.MatchCandidate, computedAt time.Time) error {
	return SaveMatches(ctx, s.DB, candidates, computedAt)
}
