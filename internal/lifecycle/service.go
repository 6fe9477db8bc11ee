package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// maxAttempts bounds how often a write is retried after a version conflict
// that left the item's status untouched.
const maxAttempts = 3

// ItemStore is the item record store the state machine reads and writes.
// UpdateItem must fail with store.ErrVersionConflict when the stored version
// differs from expectedVersion.
type ItemStore interface {
	CreateItem(ctx context.Context, item *model.Item, actor string) (*model.Item, error)
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	FindItems(ctx context.Context, filter model.ItemFilter) ([]model.Item, error)
	UpdateItem(ctx context.Context, item *model.Item, expectedVersion int64, ev *model.ItemEvent) (*model.Item, error)
	ListItemEvents(ctx context.Context, itemID int64) ([]model.ItemEvent, error)
}

// PersonDirectory resolves reporters, finders, and claimants.
type PersonDirectory interface {
	ResolvePerson(ctx context.Context, in model.PersonInput) (*model.Person, error)
	GetPerson(ctx context.Context, id int64) (*model.Person, error)
}

// Service applies reports, transitions, and restores to items.
type Service struct {
	items    ItemStore
	people   PersonDirectory
	validate *validator.Validate

	// Now returns the current time. Tests replace it to simulate elapsed days.
	Now func() time.Time
}

// New returns a Service backed by the given store and directory.
func New(items ItemStore, people PersonDirectory) *Service {
	return &Service{
		items:    items,
		people:   people,
		validate: newValidator(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns an item with its person references resolved.
func (s *Service) Get(ctx context.Context, id int64) (*model.Item, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListByStatus returns every item currently in status. An empty status lists
// all items.
func (s *Service) ListByStatus(ctx context.Context, status model.Status) ([]model.Item, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	items, err := s.items.FindItems(ctx, model.ItemFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalDependency, err)
	}
	return items, nil
}

// History returns the status changes recorded for an item.
func (s *Service) History(ctx context.Context, id int64) ([]model.ItemEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.items.ListItemEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalDependency, err)
	}
	return events, nil
}

func (s *Service) load(ctx context.Context, id int64) (*model.Item, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: loading item %d: %v", ErrExternalDependency, id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return item, nil
}

// resolve expands the item's person references for display.
func (s *Service) resolve(ctx context.Context, item *model.Item) error {
	lookup := func(id *int64) (*model.Person, error) {
		if id == nil {
			return nil, nil
		}
		p, err := s.people.GetPerson(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("%w: loading person %d: %v", ErrExternalDependency, *id, err)
		}
		return p, nil
	}

	var err error
	if item.Reporter, err = lookup(item.ReportedBy); err != nil {
		return err
	}
	if c := item.Custody(); c != nil {
		if item.Finder, err = lookup(c.FoundBy); err != nil {
			return err
		}
	}
	if c, ok := item.State.(model.Claimed); ok {
		id := c.ClaimedBy
		if item.Claimant, err = lookup(&id); err != nil {
			return err
		}
	}
	return nil
}

// resolvePerson validates a payload identity and gets or creates its record.
func (s *Service) resolvePerson(ctx context.Context, role string, in *model.PersonInput) (*model.Person, error) {
	if in == nil {
		return nil, invalid("%s is required", role)
	}
	if err := s.check(in); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	p, err := s.people.ResolvePerson(ctx, *in)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrExternalDependency, role, err)
	}
	return p, nil
}

// write applies mutate to the item and stores it with a version check. On a
// version conflict the item is re-read; if its status moved the write fails
// with ErrConflict, otherwise mutate is applied again to the fresh copy.
// When settled returns true for a fresh copy, that copy is returned as is.
func (s *Service) write(ctx context.Context, item *model.Item, mutate func(*model.Item) (*model.ItemEvent, error), settled func(*model.Item) bool) (*model.Item, error) {
	status := item.Status()
	for attempt := 1; ; attempt++ {
		next := *item
		ev, err := mutate(&next)
		if err != nil {
			return nil, err
		}

		updated, err := s.items.UpdateItem(ctx, &next, item.Version, ev)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: item %d", ErrNotFound, item.ID)
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: updating item %d: %v", ErrExternalDependency, item.ID, err)
		}

		fresh, err := s.load(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if settled != nil && settled(fresh) {
			return fresh, nil
		}
		if fresh.Status() != status {
			return nil, fmt.Errorf("%w: item %d moved from %s to %s", ErrConflict, item.ID, status, fresh.Status())
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("%w: item %d kept changing", ErrConflict, item.ID)
		}
		slog.Debug("retrying item write", "item", item.ID, "attempt", attempt)
		item = fresh
	}
}
