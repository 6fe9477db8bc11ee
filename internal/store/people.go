package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/najdeno/internal/model"
)

const personColumns = `id, name, type, student_id, employee_id, email, phone, created_at`

// ResolvePerson returns the person identified by the input's student or
// employee ID, creating the record on first reference. Both IDs are stored
// when given, and a later lookup by either one finds the same record. Inputs
// without an ID always create a fresh record.
// Uses INSERT ... ON CONFLICT DO NOTHING + re-SELECT so concurrent first
// references agree on one row.
func ResolvePerson(ctx context.Context, db *sql.DB, in model.PersonInput) (*model.Person, error) {
	studentID := nullIfEmpty(in.StudentID)
	employeeID := nullIfEmpty(in.EmployeeID)

	if column, _ := in.NaturalKey(); column == "" {
		result, err := db.ExecContext(ctx,
			`INSERT INTO people (name, type, email, phone) VALUES (?, ?, ?, ?)`,
			in.Name, in.Type, in.Email, in.Phone,
		)
		if err != nil {
			return nil, fmt.Errorf("creating person: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting person id: %w", err)
		}
		return GetPerson(ctx, db, id)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO people (name, type, student_id, employee_id, email, phone)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		in.Name, in.Type, studentID, employeeID, in.Email, in.Phone,
	)
	if err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}

	// A NULL parameter never matches, so only the supplied IDs take part.
	p, err := scanPerson(db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people
		 WHERE student_id = ? OR employee_id = ?
		 ORDER BY id LIMIT 1`,
		studentID, employeeID,
	))
	if err != nil {
		return nil, fmt.Errorf("resolving person: %w", err)
	}
	return p, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetPerson returns a person by ID, or nil if it does not exist.
func GetPerson(ctx context.Context, db *sql.DB, id int64) (*model.Person, error) {
	p, err := scanPerson(db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}
	return p, nil
}

// ListPeople returns all people, optionally filtered by type.
func ListPeople(ctx context.Context, db *sql.DB, personType string) ([]model.Person, error) {
	var rows *sql.Rows
	var err error

	if personType != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+personColumns+` FROM people WHERE type = ? ORDER BY name`, personType)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+personColumns+` FROM people ORDER BY name`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

func scanPerson(row rowScanner) (*model.Person, error) {
	p := &model.Person{}
	var studentID, employeeID, email, phone sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &studentID, &employeeID, &email, &phone, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.StudentID = studentID.String
	p.EmployeeID = employeeID.String
	p.Email = email.String
	p.Phone = phone.String
	return p, nil
}
