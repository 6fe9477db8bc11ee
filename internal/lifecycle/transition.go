package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// Payload carries the status-specific facts of a transition. Only the fields
// relevant to the target status are read.
type Payload struct {
	// in_custody
	Finder          *model.PersonInput `json:"finder,omitempty"`
	FoundLocation   string             `json:"found_location,omitempty"`
	FoundDate       *time.Time         `json:"found_date,omitempty"`
	StorageLocation string             `json:"storage_location,omitempty"`

	// claimed
	Claimant  *model.PersonInput `json:"claimant,omitempty"`
	ClaimDate *time.Time         `json:"claim_date,omitempty"`

	// donated
	Organization string     `json:"organization,omitempty"`
	Contact      string     `json:"contact,omitempty"`
	DonationDate *time.Time `json:"donation_date,omitempty"`

	// donated and deleted
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`

	// From, when set, is the status the caller saw. The transition fails
	// with ErrConflict if the item has moved on since.
	From model.Status `json:"-"`
}

// allowed lists the statuses reachable from each status through Transition.
// Leaving deleted goes through Restore; missing is only entered by a report.
var allowed = map[model.Status][]model.Status{
	model.StatusMissing:   {model.StatusInCustody, model.StatusClaimed, model.StatusDonated, model.StatusDeleted},
	model.StatusInCustody: {model.StatusClaimed, model.StatusDonated, model.StatusDeleted},
	model.StatusClaimed:   {model.StatusDonated, model.StatusDeleted},
	model.StatusDonated:   {model.StatusDeleted},
}

// CanTransition reports whether Transition may move an item from one status
// to another.
func CanTransition(from, to model.Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves an item to target. Deleting an already deleted item
// returns it unchanged.
func (s *Service) Transition(ctx context.Context, id int64, target model.Status, actor model.Actor, p Payload) (*model.Item, error) {
	if !target.Valid() {
		return nil, invalid("unknown status %q", target)
	}

	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkFrom(item, p.From); err != nil {
		return nil, err
	}
	if target == model.StatusDeleted && item.Status() == model.StatusDeleted {
		return s.resolved(ctx, item)
	}
	if err := checkTransition(item.Status(), target); err != nil {
		return nil, err
	}

	// People are resolved once, before the write loop, so a retry cannot
	// create a second record for a person without a natural key.
	var person *model.Person
	switch target {
	case model.StatusInCustody:
		if p.FoundLocation == "" {
			return nil, invalid("found_location is required")
		}
		if person, err = s.resolvePerson(ctx, "finder", p.Finder); err != nil {
			return nil, err
		}
	case model.StatusClaimed:
		if person, err = s.resolvePerson(ctx, "claimant", p.Claimant); err != nil {
			return nil, err
		}
	}

	now := s.Now()
	mutate := func(it *model.Item) (*model.ItemEvent, error) {
		from := it.Status()
		if err := checkFrom(it, p.From); err != nil {
			return nil, err
		}
		if err := checkTransition(from, target); err != nil {
			return nil, err
		}
		it.State = nextState(it, target, p, person, actor, now)
		return &model.ItemEvent{
			FromStatus: from,
			ToStatus:   target,
			Actor:      actor.Username,
			Note:       eventNote(target, p),
			CreatedAt:  now,
		}, nil
	}
	settled := func(fresh *model.Item) bool {
		return target == model.StatusDeleted && fresh.Status() == model.StatusDeleted
	}

	updated, err := s.write(ctx, item, mutate, settled)
	if err != nil {
		return nil, err
	}

	slog.Info("item transitioned", "item", id, "from", item.Status(), "to", updated.Status(),
		"user", actor.Username)
	return s.resolved(ctx, updated)
}

// Delete soft-deletes an item, remembering its current state for Restore.
func (s *Service) Delete(ctx context.Context, id int64, actor model.Actor, reason string) (*model.Item, error) {
	return s.Transition(ctx, id, model.StatusDeleted, actor, Payload{Reason: reason})
}

// Restore returns a deleted item to the state it held before deletion.
func (s *Service) Restore(ctx context.Context, id int64, actor model.Actor) (*model.Item, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	mutate := func(it *model.Item) (*model.ItemEvent, error) {
		d, ok := it.State.(model.Deleted)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %s, not deleted", ErrInvalidTransition, it.ID, it.Status())
		}
		prev := d.Envelope.Previous
		if prev == nil || prev.Status() == model.StatusDeleted || !prev.Status().Valid() {
			return nil, fmt.Errorf("%w: item %d has no recoverable previous status", ErrInvalidTransition, it.ID)
		}
		it.State = prev
		it.LastRestore = &model.Restoration{
			RestoredBy:  actor.Username,
			RestoreDate: now,
			DeletedBy:   d.Envelope.DeletedBy,
			DeletedAt:   d.Envelope.DeletedAt,
		}
		return &model.ItemEvent{
			FromStatus: model.StatusDeleted,
			ToStatus:   prev.Status(),
			Actor:      actor.Username,
			Note:       "restored",
			CreatedAt:  now,
		}, nil
	}

	updated, err := s.write(ctx, item, mutate, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("item restored", "item", id, "status", updated.Status(), "user", actor.Username)
	return s.resolved(ctx, updated)
}

func (s *Service) resolved(ctx context.Context, item *model.Item) (*model.Item, error) {
	if err := s.resolve(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func checkFrom(item *model.Item, from model.Status) error {
	if from != "" && item.Status() != from {
		return fmt.Errorf("%w: item %d is %s, expected %s", ErrConflict, item.ID, item.Status(), from)
	}
	return nil
}

func checkTransition(from, to model.Status) error {
	switch {
	case from == model.StatusDeleted:
		return fmt.Errorf("%w: deleted items must be restored", ErrInvalidTransition)
	case from == to:
		return fmt.Errorf("%w: item is already %s", ErrInvalidTransition, to)
	case !CanTransition(from, to):
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// nextState builds the state an item enters. Custody facts already recorded
// carry over into claimed and donated.
func nextState(it *model.Item, target model.Status, p Payload, person *model.Person, actor model.Actor, now time.Time) model.State {
	switch target {
	case model.StatusInCustody:
		c := model.Custody{
			FoundDate:       now,
			FoundLocation:   p.FoundLocation,
			StorageLocation: p.StorageLocation,
			FoundBy:         &person.ID,
		}
		if p.FoundDate != nil {
			c.FoundDate = p.FoundDate.UTC()
		}
		return model.InCustody{Custody: c}
	case model.StatusClaimed:
		date := now
		if p.ClaimDate != nil {
			date = p.ClaimDate.UTC()
		}
		return model.Claimed{Custody: it.Custody(), ClaimedBy: person.ID, ClaimDate: date}
	case model.StatusDonated:
		d := model.Donation{
			Date:         now,
			Organization: p.Organization,
			Contact:      p.Contact,
			Note:         p.Note,
		}
		if p.DonationDate != nil {
			d.Date = p.DonationDate.UTC()
		}
		return model.Donated{Custody: it.Custody(), Donation: d}
	case model.StatusDeleted:
		return model.Deleted{Envelope: model.DeletedEnvelope{
			Previous:  it.State,
			DeletedAt: now,
			DeletedBy: actor.Username,
			Reason:    p.Reason,
		}}
	}
	panic("lifecycle: no state for " + string(target))
}

func eventNote(target model.Status, p Payload) string {
	switch target {
	case model.StatusDonated:
		if p.Organization != "" && p.Note != "" {
			return p.Organization + ": " + p.Note
		}
		if p.Organization != "" {
			return p.Organization
		}
		return p.Note
	case model.StatusDeleted:
		return p.Reason
	}
	return ""
}
