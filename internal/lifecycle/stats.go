package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// statsMonths is the length of the dashboard's monthly series.
const statsMonths = 6

// Stats is the dashboard summary of the item store.
type Stats struct {
	Total      int                    `json:"total"`
	Missing    int                    `json:"missing"`
	Found      int                    `json:"found"`
	ByStatus   map[model.Status]int   `json:"by_status"`
	ByCategory map[model.Category]int `json:"by_category"`
	Monthly    []MonthlyCount         `json:"monthly"`
	ClaimRatio float64                `json:"claim_ratio"`
}

// MonthlyCount is one point of the found/missing series.
type MonthlyCount struct {
	Month   string `json:"month"`
	Found   int    `json:"found"`
	Missing int    `json:"missing"`
}

// DashboardStats aggregates every stored item.
func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	items, err := s.items.FindItems(ctx, model.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalDependency, err)
	}
	return ComputeStats(items, s.Now()), nil
}

// ComputeStats summarizes items as of now. Deleted items count only toward
// their own status. The monthly series covers the current month and the five
// before it: found counts items by found date, missing counts items still
// missing by report date. The claim ratio is claimed items over all
// non-deleted items.
func ComputeStats(items []model.Item, now time.Time) *Stats {
	st := &Stats{
		Total:      len(items),
		ByStatus:   make(map[model.Status]int, len(model.Statuses)),
		ByCategory: make(map[model.Category]int),
		Monthly:    make([]MonthlyCount, statsMonths),
	}
	for _, status := range model.Statuses {
		st.ByStatus[status] = 0
	}

	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(statsMonths - 1), 0)
	index := make(map[string]int, statsMonths)
	for i := range st.Monthly {
		key := start.AddDate(0, i, 0).Format("2006-01")
		st.Monthly[i].Month = key
		index[key] = i
	}

	active := 0
	for i := range items {
		item := &items[i]
		status := item.Status()
		st.ByStatus[status]++
		if status == model.StatusDeleted {
			continue
		}
		active++
		st.ByCategory[item.Category]++

		if fd := item.FoundDate(); fd != nil {
			if j, ok := index[fd.UTC().Format("2006-01")]; ok {
				st.Monthly[j].Found++
			}
		}
		if status == model.StatusMissing {
			if j, ok := index[item.DateReported.UTC().Format("2006-01")]; ok {
				st.Monthly[j].Missing++
			}
		}
	}

	st.Missing = st.ByStatus[model.StatusMissing]
	st.Found = st.ByStatus[model.StatusInCustody]
	if active > 0 {
		st.ClaimRatio = float64(st.ByStatus[model.StatusClaimed]) / float64(active)
	}
	return st
}
