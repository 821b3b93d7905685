package models

import "time"

// AcademicYear is a school year; at most one is active.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// Session is a grading period (term, semester) inside an academic year.
type Session struct {
	ID             string    `db:"id" json:"id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Label          string    `db:"label" json:"label"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	Closed         bool      `db:"closed" json:"closed"`
}

// SessionDetail adds the academic year label.
type SessionDetail struct {
	Session
	AcademicYearLabel string `db:"academic_year_label" json:"academic_year_label"`
}

type Level struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Class is a cohort of students of one level during one academic year.
type Class struct {
	ID              string  `db:"id" json:"id"`
	LevelID         string  `db:"level_id" json:"level_id"`
	AcademicYearID  string  `db:"academic_year_id" json:"academic_year_id"`
	Name            string  `db:"name" json:"name"`
	Capacity        int     `db:"capacity" json:"capacity"`
	HomeroomTeacher *string `db:"homeroom_teacher" json:"homeroom_teacher,omitempty"`
}

// ClassDetail is a class joined with its level and academic year.
type ClassDetail struct {
	Class
	LevelName         string `db:"level_name" json:"level_name"`
	AcademicYearLabel string `db:"academic_year_label" json:"academic_year_label"`
}

type Subject struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

type Student struct {
	ID                 string     `db:"id" json:"id"`
	RegistrationNumber string     `db:"registration_number" json:"registration_number"`
	LastName           string     `db:"last_name" json:"last_name"`
	FirstName          string     `db:"first_name" json:"first_name"`
	BirthDate          *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender             string     `db:"gender" json:"gender"`
	GuardianName       *string    `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianContact    *string    `db:"guardian_contact" json:"guardian_contact,omitempty"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}
