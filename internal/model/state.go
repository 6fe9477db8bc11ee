package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the status-specific part of an item. Each variant carries only
// the fields valid for its status.
type State interface {
	Status() Status
	isState()
}

// Custody holds the facts recorded when an item is found and taken in.
type Custody struct {
	FoundDate       time.Time `json:"found_date"`
	FoundLocation   string    `json:"found_location"`
	StorageLocation string    `json:"storage_location,omitempty"`
	FoundBy         *int64    `json:"found_by,omitempty"`
}

// Donation records where a donated item went.
type Donation struct {
	Date         time.Time `json:"donation_date"`
	Organization string    `json:"organization,omitempty"`
	Contact      string    `json:"contact,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// DeletedEnvelope wraps the state an item held before it was soft-deleted.
type DeletedEnvelope struct {
	Previous  State     `json:"-"`
	DeletedAt time.Time `json:"deleted_at"`
	DeletedBy string    `json:"deleted_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Missing is the state of an item reported lost and not yet found.
type Missing struct{}

// InCustody is the state of an item held by the lost-and-found office.
type InCustody struct {
	Custody
}

// Claimed is the state of an item returned to its owner.
type Claimed struct {
	Custody   *Custody  `json:"custody,omitempty"`
	ClaimedBy int64     `json:"claimed_by"`
	ClaimDate time.Time `json:"claim_date"`
}

// Donated is the state of an item given away after going unclaimed.
type Donated struct {
	Custody  *Custody `json:"custody,omitempty"`
	Donation Donation `json:"donation"`
}

// Deleted is the state of a soft-deleted item.
type Deleted struct {
	Envelope DeletedEnvelope
}

func (Missing) Status() Status   { return StatusMissing }
func (InCustody) Status() Status { return StatusInCustody }
func (Claimed) Status() Status   { return StatusClaimed }
func (Donated) Status() Status   { return StatusDonated }
func (Deleted) Status() Status   { return StatusDeleted }

func (Missing) isState()   {}
func (InCustody) isState() {}
func (Claimed) isState()   {}
func (Donated) isState()   {}
func (Deleted) isState()   {}

// stateRecord is the persisted form of a State.
type stateRecord struct {
	Status    Status          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Previous  *stateRecord    `json:"previous,omitempty"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy string          `json:"deleted_by,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// MarshalState encodes a state with a status discriminator.
func MarshalState(s State) ([]byte, error) {
	rec, err := toRecord(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalState decodes a state written by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return fromRecord(&rec)
}

func toRecord(s State) (*stateRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("nil state")
	}
	if d, ok := s.(Deleted); ok {
		if d.Envelope.Previous == nil {
			return nil, fmt.Errorf("deleted state without previous state")
		}
		if _, nested := d.Envelope.Previous.(Deleted); nested {
			return nil, fmt.Errorf("deleted state cannot wrap a deleted state")
		}
		prev, err := toRecord(d.Envelope.Previous)
		if err != nil {
			return nil, err
		}
		at := d.Envelope.DeletedAt
		return &stateRecord{
			Status:    StatusDeleted,
			Previous:  prev,
			DeletedAt: &at,
			DeletedBy: d.Envelope.DeletedBy,
			Reason:    d.Envelope.Reason,
		}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding %s state: %w", s.Status(), err)
	}
	return &stateRecord{Status: s.Status(), Data: data}, nil
}

func fromRecord(rec *stateRecord) (State, error) {
	switch rec.Status {
	case StatusMissing:
		return Missing{}, nil
	case StatusInCustody:
		var st InCustody
		if err := decodeData(rec, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StatusClaimed:
		var st Claimed
		if err := decodeData(rec, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StatusDonated:
		var st Donated
		if err := decodeData(rec, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StatusDeleted:
		if rec.Previous == nil || rec.Previous.Status == StatusDeleted {
			return nil, fmt.Errorf("deleted state has no recoverable previous status")
		}
		prev, err := fromRecord(rec.Previous)
		if err != nil {
			return nil, err
		}
		env := DeletedEnvelope{Previous: prev, DeletedBy: rec.DeletedBy, Reason: rec.Reason}
		if rec.DeletedAt != nil {
			env.DeletedAt = *rec.DeletedAt
		}
		return Deleted{Envelope: env}, nil
	}
	return nil, fmt.Errorf("unknown status %q", rec.Status)
}

func decodeData(rec *stateRecord, dst any) error {
	if len(rec.Data) == 0 {
		return fmt.Errorf("%s state has no data", rec.Status)
	}
	if err := json.Unmarshal(rec.Data, dst); err != nil {
		return fmt.Errorf("decoding %s state: %w", rec.Status, err)
	}
	return nil
}

// additionalData is the display form of the recovery envelope.
type additionalData struct {
	PreviousStatus Status     `json:"previous_status,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedBy      string     `json:"deleted_by,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	RestoredBy     string     `json:"restored_by,omitempty"`
	RestoreDate    *time.Time `json:"restore_date,omitempty"`
}

// MarshalJSON flattens the state variant into display fields.
func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	out := struct {
		plain
		Status          Status          `json:"status"`
		FoundDate       *time.Time      `json:"found_date,omitempty"`
		FoundLocation   string          `json:"found_location,omitempty"`
		StorageLocation string          `json:"storage_location,omitempty"`
		FoundBy         *int64          `json:"found_by,omitempty"`
		ClaimedBy       *int64          `json:"claimed_by,omitempty"`
		ClaimDate       *time.Time      `json:"claim_date,omitempty"`
		DonationDate    *time.Time      `json:"donation_date,omitempty"`
		Donation        *Donation       `json:"donation,omitempty"`
		DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
		AdditionalData  *additionalData `json:"additional_data,omitempty"`
	}{plain: plain(i), Status: i.Status()}

	if c := i.Custody(); c != nil {
		out.FoundDate = i.FoundDate()
		out.FoundLocation = c.FoundLocation
		out.StorageLocation = c.StorageLocation
		out.FoundBy = c.FoundBy
	}
	switch st := i.State.(type) {
	case Claimed:
		id := st.ClaimedBy
		out.ClaimedBy = &id
		out.ClaimDate = i.ClaimDate()
	case Donated:
		d := st.Donation
		out.Donation = &d
		out.DonationDate = i.DonationDate()
	case Deleted:
		out.DeletedAt = i.DeletedAt()
		out.AdditionalData = &additionalData{
			PreviousStatus: st.Envelope.Previous.Status(),
			DeletedAt:      out.DeletedAt,
			DeletedBy:      st.Envelope.DeletedBy,
			Reason:         st.Envelope.Reason,
		}
	}
	if r := i.LastRestore; r != nil && out.AdditionalData == nil {
		date := r.RestoreDate
		out.AdditionalData = &additionalData{RestoredBy: r.RestoredBy, RestoreDate: &date}
	}
	return json.Marshal(out)
}
