// Package donation moves items that have been in custody too long into the
// donated status.
package donation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/model"
)

// EligibilityWindow is how long an item may sit in custody unclaimed before
// it is donated. Both the scan and the eligibility listing use it.
const EligibilityWindow = 90 * 24 * time.Hour

// auditNote is stamped on donations made by the scan.
const auditNote = "automatically donated after 90 days unclaimed"

// Items lists items for the scan.
type Items interface {
	FindItems(ctx context.Context, filter model.ItemFilter) ([]model.Item, error)
}

// Transitioner applies the donation through the state machine.
type Transitioner interface {
	Transition(ctx context.Context, id int64, target model.Status, actor model.Actor, p lifecycle.Payload) (*model.Item, error)
}

// Scanner finds and donates long-unclaimed items.
type Scanner struct {
	Items     Items
	Lifecycle Transitioner
	Now       func() time.Time
}

// Failure is an item the scan could not donate.
type Failure struct {
	ItemID int64  `json:"item_id"`
	Error  string `json:"error"`
}

// Result summarizes one scan.
type Result struct {
	Scanned  int       `json:"scanned"`
	Donated  int       `json:"donated"`
	Failures []Failure `json:"failures,omitempty"`
}

// EarliestAnchor returns the earliest known date for an item among its found
// date, report date, and creation time. ok is false when none is set.
func EarliestAnchor(item *model.Item) (t time.Time, ok bool) {
	candidates := []time.Time{item.DateReported, item.CreatedAt}
	if fd := item.FoundDate(); fd != nil {
		candidates = append(candidates, *fd)
	}
	for _, c := range candidates {
		if c.IsZero() {
			continue
		}
		if !ok || c.Before(t) {
			t, ok = c, true
		}
	}
	return t, ok
}

// Eligible reports whether an in-custody item is older than the window.
func Eligible(item *model.Item, now time.Time) bool {
	if item.Status() != model.StatusInCustody {
		return false
	}
	anchor, ok := EarliestAnchor(item)
	if !ok {
		return false
	}
	return anchor.Before(now.Add(-EligibilityWindow))
}

// EligibleItems returns the in-custody items a scan at now would donate.
func (s *Scanner) EligibleItems(ctx context.Context) ([]model.Item, error) {
	items, err := s.Items.FindItems(ctx, model.ItemFilter{Status: model.StatusInCustody})
	if err != nil {
		return nil, fmt.Errorf("listing items in custody: %w", err)
	}
	now := s.now()
	eligible := make([]model.Item, 0)
	for i := range items {
		if Eligible(&items[i], now) {
			eligible = append(eligible, items[i])
		}
	}
	return eligible, nil
}

// Run donates every eligible item. A failed item is recorded and the scan
// moves on.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	var res Result

	items, err := s.Items.FindItems(ctx, model.ItemFilter{Status: model.StatusInCustody})
	if err != nil {
		return res, fmt.Errorf("listing items in custody: %w", err)
	}
	res.Scanned = len(items)

	now := s.now()
	for i := range items {
		item := &items[i]
		if !Eligible(item, now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// The item may have been claimed since it was listed.
		_, err := s.Lifecycle.Transition(ctx, item.ID, model.StatusDonated, model.SystemActor,
			lifecycle.Payload{Note: auditNote, DonationDate: &now, From: model.StatusInCustody})
		if err != nil {
			slog.Warn("donation failed", "item", item.ID, "error", err)
			res.Failures = append(res.Failures, Failure{ItemID: item.ID, Error: err.Error()})
			continue
		}
		res.Donated++
	}

	slog.Info("donation scan finished", "scanned", res.Scanned, "donated", res.Donated,
		"failed", len(res.Failures))
	return res, nil
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
