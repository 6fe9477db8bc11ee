package model

import "time"

// ItemEvent records one applied status change of an item.
type ItemEvent struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	Actor      string    `json:"actor,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actor identifies who is performing an operation. It is used for
// provenance only.
type Actor struct {
	UserID   int64
	Username string
}

// SystemActor is the actor stamped on changes made by background jobs.
var SystemActor = Actor{Username: "system"}
