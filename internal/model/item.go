package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of an item.
type Status string

// Item statuses.
const (
	StatusMissing   Status = "missing"
	StatusInCustody Status = "in_custody"
	StatusClaimed   Status = "claimed"
	StatusDonated   Status = "donated"
	StatusDeleted   Status = "deleted"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusMissing, StatusInCustody, StatusClaimed, StatusDonated, StatusDeleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusMissing, StatusInCustody, StatusClaimed, StatusDonated, StatusDeleted:
		return true
	}
	return false
}

// Category is the closed set of item classifications.
type Category string

// Item categories.
const (
	CategoryBook        Category = "book"
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryAccessory   Category = "accessory"
	CategoryDocument    Category = "document"
	CategoryStationery  Category = "stationery"
	CategoryJewelry     Category = "jewelry"
	CategoryBag         Category = "bag"
	CategoryIDCard      Category = "id_card"
	CategoryKey         Category = "key"
	CategoryWallet      Category = "wallet"
	CategoryMoney       Category = "money"
	CategoryOther       Category = "other"
)

// Categories lists every category.
var Categories = []Category{
	CategoryBook, CategoryElectronics, CategoryClothing, CategoryAccessory,
	CategoryDocument, CategoryStationery, CategoryJewelry, CategoryBag,
	CategoryIDCard, CategoryKey, CategoryWallet, CategoryMoney, CategoryOther,
}

// ParseCategory returns the category named by s (case-insensitive).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Item is one physical object tracked through the lost-and-found lifecycle.
type Item struct {
	ID           int64        `json:"id"`
	Code         string       `json:"item_id"`
	Category     Category     `json:"category"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Color        string       `json:"color,omitempty"`
	Brand        string       `json:"brand,omitempty"`
	Location     string       `json:"location,omitempty"`
	DateReported time.Time    `json:"date_reported"`
	ReportedBy   *int64       `json:"reported_by,omitempty"`
	State        State        `json:"-"`
	LastRestore  *Restoration `json:"last_restore,omitempty"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// Resolved references (not always populated).
	Reporter *Person `json:"reporter,omitempty"`
	Finder   *Person `json:"finder,omitempty"`
	Claimant *Person `json:"claimant,omitempty"`
}

// Restoration records who brought an item back from deletion.
type Restoration struct {
	RestoredBy  string    `json:"restored_by"`
	RestoreDate time.Time `json:"restore_date"`
	DeletedBy   string    `json:"deleted_by,omitempty"`
	DeletedAt   time.Time `json:"deleted_at"`
}

// Status returns the item's current status.
func (i *Item) Status() Status {
	if i.State == nil {
		return ""
	}
	return i.State.Status()
}

// Custody returns the custody facts recorded for the item, if any. For a
// deleted item the facts of the state it was deleted from are returned.
func (i *Item) Custody() *Custody {
	return custodyOf(i.State)
}

func custodyOf(s State) *Custody {
	switch st := s.(type) {
	case InCustody:
		c := st.Custody
		return &c
	case Claimed:
		return st.Custody
	case Donated:
		return st.Custody
	case Deleted:
		return custodyOf(st.Envelope.Previous)
	}
	return nil
}

// FoundDate returns when the item came into custody.
func (i *Item) FoundDate() *time.Time {
	if c := i.Custody(); c != nil && !c.FoundDate.IsZero() {
		t := c.FoundDate
		return &t
	}
	return nil
}

// FoundLocation returns where the item was found, falling back to the
// reported location.
func (i *Item) FoundLocation() string {
	if c := i.Custody(); c != nil && c.FoundLocation != "" {
		return c.FoundLocation
	}
	return i.Location
}

// ClaimDate returns when the item was claimed.
func (i *Item) ClaimDate() *time.Time {
	if c, ok := i.State.(Claimed); ok {
		t := c.ClaimDate
		return &t
	}
	return nil
}

// DonationDate returns when the item was donated.
func (i *Item) DonationDate() *time.Time {
	if d, ok := i.State.(Donated); ok {
		t := d.Donation.Date
		return &t
	}
	return nil
}

// DeletedAt returns when the item was soft-deleted, if it currently is.
func (i *Item) DeletedAt() *time.Time {
	if d, ok := i.State.(Deleted); ok {
		t := d.Envelope.DeletedAt
		return &t
	}
	return nil
}

// NewItemCode builds the human-readable display code for an item:
// category prefix, report date, and a random suffix.
func NewItemCode(c Category, at time.Time) string {
	prefix := strings.ToUpper(string(c))
	prefix = strings.ReplaceAll(prefix, "_", "")
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), strings.ToUpper(suffix))
}

// ItemFilter selects items from the store. Zero fields match everything.
type ItemFilter struct {
	Status   Status
	Category Category
}
