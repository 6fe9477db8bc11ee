package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// Items lists items for the sweep.
type Items interface {
	FindItems(ctx context.Context, filter model.ItemFilter) ([]model.Item, error)
}

// Publisher receives the candidate map computed by a sweep, keyed by lost
// item ID.
type Publisher interface {
	PublishMatches(ctx context.Context, candidates map[int64][]model.MatchCandidate, computedAt time.Time) error
}

// Sweep ranks found items for every missing item and publishes the result.
type Sweep struct {
	Items      Items
	Publishers []Publisher
	Weights    Weights
	Now        func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Lost       int `json:"lost"`
	Found      int `json:"found"`
	Candidates int `json:"candidates"`
}

// Compute returns the candidate map without publishing it.
func (s *Sweep) Compute(ctx context.Context) (map[int64][]model.MatchCandidate, Result, error) {
	var res Result

	lost, err := s.Items.FindItems(ctx, model.ItemFilter{Status: model.StatusMissing})
	if err != nil {
		return nil, res, fmt.Errorf("listing missing items: %w", err)
	}
	found, err := s.Items.FindItems(ctx, model.ItemFilter{Status: model.StatusInCustody})
	if err != nil {
		return nil, res, fmt.Errorf("listing items in custody: %w", err)
	}
	res.Lost, res.Found = len(lost), len(found)

	candidates := make(map[int64][]model.MatchCandidate, len(lost))
	for i := range lost {
		ranked := Rank(&lost[i], found, s.Weights)
		if len(ranked) == 0 {
			continue
		}
		candidates[lost[i].ID] = ranked
		res.Candidates += len(ranked)
	}
	return candidates, res, nil
}

// Run computes the candidate map and hands it to every publisher. A failing
// publisher does not stop the others; their errors are joined.
func (s *Sweep) Run(ctx context.Context) (Result, error) {
	candidates, res, err := s.Compute(ctx)
	if err != nil {
		return res, err
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	for lostID := range candidates {
		for j := range candidates[lostID] {
			candidates[lostID][j].ComputedAt = now
		}
	}

	var errs []error
	for _, p := range s.Publishers {
		if err := p.PublishMatches(ctx, candidates, now); err != nil {
			slog.Warn("publishing matches failed", "publisher", fmt.Sprintf("%T", p), "error", err)
			errs = append(errs, err)
		}
	}

	slog.Info("matching sweep finished", "lost", res.Lost, "found", res.Found,
		"candidates", res.Candidates)
	return res, errors.Join(errs...)
}
