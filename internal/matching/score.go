// Package matching scores found items against reported-lost items.
package matching

import (
	"sort"
	"strings"

	"github.com/erazemk/najdeno/internal/model"
)

// Weights are the score components. They were tuned by hand and are
// configurable.
type Weights struct {
	LocationExact   int `json:"location_exact"`
	LocationPartial int `json:"location_partial"`
	ColorExact      int `json:"color_exact"`
	ColorPartial    int `json:"color_partial"`
	BrandExact      int `json:"brand_exact"`
	BrandPartial    int `json:"brand_partial"`
	Category        int `json:"category"`
	Max             int `json:"max"`
	Threshold       int `json:"threshold"`
}

// DefaultWeights returns the standard weights.
func DefaultWeights() Weights {
	return Weights{
		LocationExact:   50,
		LocationPartial: 30,
		ColorExact:      30,
		ColorPartial:    15,
		BrandExact:      20,
		BrandPartial:    10,
		Category:        5,
		Max:             100,
		Threshold:       25,
	}
}

// Score rates how likely found is the item reported as lost. The lost item's
// reported location is compared with where the found item turned up.
func Score(lost, found *model.Item, w Weights) int {
	score := locationScore(norm(lost.Location), norm(found.FoundLocation()), w)
	score += tiered(norm(lost.Color), norm(found.Color), w.ColorExact, w.ColorPartial)
	score += tiered(norm(lost.Brand), norm(found.Brand), w.BrandExact, w.BrandPartial)
	if lost.Category != "" && lost.Category == found.Category {
		score += w.Category
	}
	if score > w.Max {
		score = w.Max
	}
	return score
}

// Rank scores every in-custody candidate against a missing item and returns
// those at or above the threshold, best first. Any other lost status yields
// no candidates.
func Rank(lost *model.Item, candidates []model.Item, w Weights) []model.MatchCandidate {
	if lost.Status() != model.StatusMissing {
		return nil
	}
	var out []model.MatchCandidate
	for i := range candidates {
		found := &candidates[i]
		if found.Status() != model.StatusInCustody {
			continue
		}
		score := Score(lost, found, w)
		if score < w.Threshold {
			continue
		}
		out = append(out, model.MatchCandidate{
			LostItemID:    lost.ID,
			FoundItemID:   found.ID,
			Score:         score,
			FoundItemName: found.Name,
			FoundItemCode: found.Code,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func locationScore(lost, found string, w Weights) int {
	if lost == "" || found == "" {
		return 0
	}
	if lost == found {
		return w.LocationExact
	}
	lostTokens := strings.Fields(lost)
	foundTokens := strings.Fields(found)
	hits := 0
	for _, lt := range lostTokens {
		for _, ft := range foundTokens {
			if strings.Contains(ft, lt) || strings.Contains(lt, ft) {
				hits++
				break
			}
		}
	}
	return hits * w.LocationPartial / len(lostTokens)
}

// tiered scores an exact match, then a substring match in either direction.
func tiered(a, b string, exact, partial int) int {
	switch {
	case a == "" || b == "":
		return 0
	case a == b:
		return exact
	case strings.Contains(a, b) || strings.Contains(b, a):
		return partial
	}
	return 0
}
