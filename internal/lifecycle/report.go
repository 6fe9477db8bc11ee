package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// MissingReport describes an item someone has lost.
type MissingReport struct {
	Category     string             `json:"category" validate:"required"`
	Name         string             `json:"name" validate:"required,max=200"`
	Description  string             `json:"description" validate:"max=2000"`
	Color        string             `json:"color" validate:"max=100"`
	Brand        string             `json:"brand" validate:"max=100"`
	Location     string             `json:"location" validate:"max=200"`
	DateReported *time.Time         `json:"date_reported"`
	Reporter     *model.PersonInput `json:"reporter"`
}

// FoundReport describes an item handed in to the office.
type FoundReport struct {
	Category        string             `json:"category" validate:"required"`
	Name            string             `json:"name" validate:"required,max=200"`
	Description     string             `json:"description" validate:"max=2000"`
	Color           string             `json:"color" validate:"max=100"`
	Brand           string             `json:"brand" validate:"max=100"`
	FoundLocation   string             `json:"found_location" validate:"required,max=200"`
	FoundDate       *time.Time         `json:"found_date"`
	StorageLocation string             `json:"storage_location" validate:"max=200"`
	Finder          *model.PersonInput `json:"finder"`
}

// ItemEdit changes descriptive fields of an item. Nil fields are left as is.
type ItemEdit struct {
	Category        *string `json:"category"`
	Name            *string `json:"name" validate:"omitempty,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	Color           *string `json:"color" validate:"omitempty,max=100"`
	Brand           *string `json:"brand" validate:"omitempty,max=100"`
	Location        *string `json:"location" validate:"omitempty,max=200"`
	StorageLocation *string `json:"storage_location" validate:"omitempty,max=200"`
}

// ReportMissing records a lost item in status missing.
func (s *Service) ReportMissing(ctx context.Context, actor model.Actor, r MissingReport) (*model.Item, error) {
	if err := s.check(r); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(r.Category)
	if err != nil {
		return nil, invalid("%v", err)
	}

	now := s.Now()
	item := &model.Item{
		Category:     category,
		Name:         strings.TrimSpace(r.Name),
		Description:  r.Description,
		Color:        r.Color,
		Brand:        r.Brand,
		Location:     r.Location,
		DateReported: now,
		State:        model.Missing{},
		CreatedAt:    now,
	}
	if r.DateReported != nil {
		item.DateReported = r.DateReported.UTC()
	}
	if r.Reporter != nil {
		p, err := s.resolvePerson(ctx, "reporter", r.Reporter)
		if err != nil {
			return nil, err
		}
		item.ReportedBy = &p.ID
	}
	item.Code = model.NewItemCode(category, item.DateReported)

	return s.create(ctx, actor, item)
}

// ReportFound records a found item in status in_custody.
func (s *Service) ReportFound(ctx context.Context, actor model.Actor, r FoundReport) (*model.Item, error) {
	if err := s.check(r); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(r.Category)
	if err != nil {
		return nil, invalid("%v", err)
	}
	finder, err := s.resolvePerson(ctx, "finder", r.Finder)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	custody := model.Custody{
		FoundDate:       now,
		FoundLocation:   r.FoundLocation,
		StorageLocation: r.StorageLocation,
		FoundBy:         &finder.ID,
	}
	if r.FoundDate != nil {
		custody.FoundDate = r.FoundDate.UTC()
	}

	item := &model.Item{
		Category:     category,
		Name:         strings.TrimSpace(r.Name),
		Description:  r.Description,
		Color:        r.Color,
		Brand:        r.Brand,
		Location:     r.FoundLocation,
		DateReported: now,
		ReportedBy:   &finder.ID,
		State:        model.InCustody{Custody: custody},
		CreatedAt:    now,
	}
	item.Code = model.NewItemCode(category, item.DateReported)

	return s.create(ctx, actor, item)
}

func (s *Service) create(ctx context.Context, actor model.Actor, item *model.Item) (*model.Item, error) {
	created, err := s.items.CreateItem(ctx, item, actor.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: creating item: %v", ErrExternalDependency, err)
	}
	if err := s.resolve(ctx, created); err != nil {
		return nil, err
	}

	slog.Info("item reported", "item", created.ID, "code", created.Code,
		"status", created.Status(), "user", actor.Username)
	return created, nil
}

// UpdateDetails edits descriptive fields without changing the item's status.
func (s *Service) UpdateDetails(ctx context.Context, id int64, actor model.Actor, edit ItemEdit) (*model.Item, error) {
	if err := s.check(edit); err != nil {
		return nil, err
	}
	var category model.Category
	if edit.Category != nil {
		c, err := model.ParseCategory(*edit.Category)
		if err != nil {
			return nil, invalid("%v", err)
		}
		category = c
	}
	if edit.Name != nil && strings.TrimSpace(*edit.Name) == "" {
		return nil, invalid("name cannot be empty")
	}

	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status() == model.StatusDeleted {
		return nil, fmt.Errorf("%w: item %d is deleted; restore it before editing", ErrInvalidTransition, id)
	}

	updated, err := s.write(ctx, item, func(it *model.Item) (*model.ItemEvent, error) {
		if edit.Category != nil {
			it.Category = category
		}
		if edit.Name != nil {
			it.Name = strings.TrimSpace(*edit.Name)
		}
		if edit.Description != nil {
			it.Description = *edit.Description
		}
		if edit.Color != nil {
			it.Color = *edit.Color
		}
		if edit.Brand != nil {
			it.Brand = *edit.Brand
		}
		if edit.Location != nil {
			it.Location = *edit.Location
		}
		if edit.StorageLocation != nil {
			st, ok := it.State.(model.InCustody)
			if !ok {
				return nil, invalid("storage location can only be set while the item is in custody")
			}
			st.StorageLocation = *edit.StorageLocation
			it.State = st
		}
		return nil, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, updated); err != nil {
		return nil, err
	}

	slog.Info("item updated", "item", id, "user", actor.Username)
	return updated, nil
}
