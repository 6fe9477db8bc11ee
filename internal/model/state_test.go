package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStateRoundTripDeleted(t *testing.T) {
	found := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finder := int64(7)
	prev := InCustody{Custody{FoundDate: found, FoundLocation: "Library", StorageLocation: "Shelf B", FoundBy: &finder}}
	deleted := Deleted{Envelope: DeletedEnvelope{
		Previous:  prev,
		DeletedAt: found.Add(time.Hour),
		DeletedBy: "admin",
		Reason:    "duplicate",
	}}

	data, err := MarshalState(deleted)
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	got, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}

	d, ok := got.(Deleted)
	if !ok {
		t.Fatalf("expected Deleted, got %T", got)
	}
	if d.Envelope.DeletedBy != "admin" || d.Envelope.Reason != "duplicate" {
		t.Errorf("envelope provenance lost: %+v", d.Envelope)
	}
	p, ok := d.Envelope.Previous.(InCustody)
	if !ok {
		t.Fatalf("expected previous InCustody, got %T", d.Envelope.Previous)
	}
	if !p.FoundDate.Equal(found) || p.FoundLocation != "Library" || p.StorageLocation != "Shelf B" {
		t.Errorf("custody facts lost: %+v", p.Custody)
	}
	if p.FoundBy == nil || *p.FoundBy != 7 {
		t.Errorf("expected found_by 7, got %v", p.FoundBy)
	}
}

func TestMarshalStateRejectsNestedDelete(t *testing.T) {
	inner := Deleted{Envelope: DeletedEnvelope{Previous: Missing{}}}
	_, err := MarshalState(Deleted{Envelope: DeletedEnvelope{Previous: inner}})
	if err == nil {
		t.Error("expected error for deleted state wrapping a deleted state")
	}
}

func TestUnmarshalStateWithoutPrevious(t *testing.T) {
	tests := []string{
		`{"status":"deleted"}`,
		`{"status":"deleted","previous":{"status":"deleted"}}`,
		`{"status":"in_custody"}`,
		`{"status":"lost"}`,
		`not json`,
	}
	for _, in := range tests {
		if _, err := UnmarshalState([]byte(in)); err == nil {
			t.Errorf("UnmarshalState(%s): expected error", in)
		}
	}
}

func TestItemAccessors(t *testing.T) {
	found := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	claimed := found.AddDate(0, 0, 3)
	item := &Item{
		Location: "Cafeteria",
		State: Claimed{
			Custody:   &Custody{FoundDate: found, FoundLocation: "Gym"},
			ClaimedBy: 3,
			ClaimDate: claimed,
		},
	}

	if item.Status() != StatusClaimed {
		t.Errorf("expected claimed, got %q", item.Status())
	}
	if fd := item.FoundDate(); fd == nil || !fd.Equal(found) {
		t.Errorf("expected found date %v, got %v", found, fd)
	}
	if cd := item.ClaimDate(); cd == nil || !cd.Equal(claimed) {
		t.Errorf("expected claim date %v, got %v", claimed, cd)
	}
	if item.FoundLocation() != "Gym" {
		t.Errorf("expected found location Gym, got %q", item.FoundLocation())
	}
	if item.DonationDate() != nil || item.DeletedAt() != nil {
		t.Error("expected no donation or deletion dates")
	}

	missing := &Item{Location: "Cafeteria", State: Missing{}}
	if missing.FoundDate() != nil {
		t.Error("missing item should have no found date")
	}
	if missing.FoundLocation() != "Cafeteria" {
		t.Errorf("expected fallback to reported location, got %q", missing.FoundLocation())
	}
}

func TestItemJSONIncludesEnvelope(t *testing.T) {
	at := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	item := Item{
		ID:   1,
		Name: "Umbrella",
		State: Deleted{Envelope: DeletedEnvelope{
			Previous:  Missing{},
			DeletedAt: at,
			DeletedBy: "manager",
		}},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["status"] != "deleted" {
		t.Errorf("expected status deleted, got %v", out["status"])
	}
	env, ok := out["additional_data"].(map[string]any)
	if !ok {
		t.Fatalf("expected additional_data object, got %v", out["additional_data"])
	}
	if env["previous_status"] != "missing" {
		t.Errorf("expected previous_status missing, got %v", env["previous_status"])
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"book", CategoryBook, false},
		{" Electronics ", CategoryElectronics, false},
		{"ID_CARD", CategoryIDCard, false},
		{"umbrella", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewItemCode(t *testing.T) {
	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	code := NewItemCode(CategoryIDCard, at)
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %q", code)
	}
	if parts[0] != "IDC" || parts[1] != "20261018" || len(parts[2]) != 6 {
		t.Errorf("unexpected code %q", code)
	}
	if NewItemCode(CategoryIDCard, at) == code {
		t.Error("expected random suffix to differ between codes")
	}
}

func TestPersonNaturalKey(t *testing.T) {
	tests := []struct {
		in     PersonInput
		column string
	}{
		{PersonInput{Type: PersonTypeStudent, StudentID: "S1"}, "student_id"},
		{PersonInput{Type: PersonTypeFaculty, EmployeeID: "E1"}, "employee_id"},
		{PersonInput{Type: PersonTypeStaff, EmployeeID: "E2"}, "employee_id"},
		{PersonInput{Type: PersonTypeVisitor, StudentID: "S1"}, "student_id"},
		{PersonInput{Type: PersonTypeVisitor, EmployeeID: "E3"}, "employee_id"},
		{PersonInput{Type: PersonTypeStaff, StudentID: "S2", EmployeeID: "E4"}, "student_id"},
		{PersonInput{Type: PersonTypeVisitor}, ""},
		{PersonInput{Type: PersonTypeStudent}, ""},
	}
	for _, tt := range tests {
		col, _ := tt.in.NaturalKey()
		if col != tt.column {
			t.Errorf("NaturalKey(%+v) column = %q, want %q", tt.in, col, tt.column)
		}
	}
}
