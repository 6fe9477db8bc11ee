package model

import "time"

// Person is an identity referenced by an item as reporter, finder, or claimant.
type Person struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	StudentID  string    `json:"student_id,omitempty"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Person types.
const (
	PersonTypeStudent = "student"
	PersonTypeFaculty = "faculty"
	PersonTypeStaff   = "staff"
	PersonTypeVisitor = "visitor"
)

// PersonInput describes a person as supplied in a report or transition payload.
type PersonInput struct {
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=student faculty staff visitor"`
	StudentID  string `json:"student_id" validate:"required_if=Type student"`
	EmployeeID string `json:"employee_id" validate:"required_if=Type faculty,required_if=Type staff"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
}

// NaturalKey returns the identifier a person is deduplicated by: the
// student ID when present, otherwise the employee ID. The person's type does
// not matter. An empty column means the person cannot be deduplicated.
func (p PersonInput) NaturalKey() (column, value string) {
	if p.StudentID != "" {
		return "student_id", p.StudentID
	}
	if p.EmployeeID != "" {
		return "employee_id", p.EmployeeID
	}
	return "", ""
}
