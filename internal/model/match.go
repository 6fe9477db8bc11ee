package model

import "time"

// MatchCandidate is a found item proposed as a match for a lost item.
type MatchCandidate struct {
	LostItemID  int64     `json:"lost_item_id"`
	FoundItemID int64     `json:"found_item_id"`
	Score       int       `json:"score"`
	ComputedAt  time.Time `json:"computed_at"`

	// Joined fields (not always populated).
	FoundItemName string `json:"found_item_name,omitempty"`
	FoundItemCode string `json:"found_item_code,omitempty"`
}
