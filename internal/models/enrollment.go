package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusWithdrawn   EnrollmentStatus = "WITHDRAWN"
)

// Enrollment registers one student in one class for an academic year.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassID        string           `db:"class_id" json:"class_id"`
	AcademicYearID string           `db:"academic_year_id" json:"academic_year_id"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// IsActive reports whether the enrollment counts in class computations.
func (e Enrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	RegistrationNumber string     `db:"registration_number" json:"registration_number"`
	LastName           string     `db:"last_name" json:"last_name"`
	FirstName          string     `db:"first_name" json:"first_name"`
	BirthDate          *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	ClassName          string     `db:"class_name" json:"class_name"`
	LevelID            string     `db:"level_id" json:"level_id"`
	LevelName          string     `db:"level_name" json:"level_name"`
	AcademicYearLabel  string     `db:"academic_year_label" json:"academic_year_label"`
}

// StudentName returns "First Last".
func (d EnrollmentDetail) StudentName() string {
	return Student{FirstName: d.FirstName, LastName: d.LastName}.FullName()
}
