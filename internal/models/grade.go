package models

import "time"

const (
	MinGradeValue = 0.0
	MaxGradeValue = 20.0
)

// Grade is one mark of an enrollment in a subject for a session.
type Grade struct {
	ID             string    `db:"id" json:"id"`
	EnrollmentID   string    `db:"enrollment_id" json:"enrollment_id"`
	SubjectLevelID string    `db:"subject_level_id" json:"subject_level_id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	Value          float64   `db:"value" json:"value"`
	Remark         *string   `db:"remark" json:"remark,omitempty"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail adds subject and session context.
type GradeDetail struct {
	Grade
	SubjectID    string `db:"subject_id" json:"subject_id"`
	SubjectName  string `db:"subject_name" json:"subject_name"`
	Coefficient  int    `db:"coefficient" json:"coefficient"`
	SessionLabel string `db:"session_label" json:"session_label"`
}

type GradeFilter struct {
	EnrollmentID   string
	SubjectLevelID string
	SessionID      string
	PageRequest
}

// GradeStatistics summarises the grades of a class in one subject and session.
type GradeStatistics struct {
	ClassAverage float64 `db:"class_average" json:"class_average"`
	Min          float64 `db:"min" json:"min"`
	Max          float64 `db:"max" json:"max"`
	Count        int     `db:"count" json:"count"`
}

// GradeSheetRow is one student line of a class grade sheet; Grade is nil when not yet entered.
type GradeSheetRow struct {
	EnrollmentID       string `json:"enrollment_id"`
	StudentID          string `json:"student_id"`
	RegistrationNumber string `json:"registration_number"`
	LastName           string `json:"last_name"`
	FirstName          string `json:"first_name"`
	Grade              *Grade `json:"grade"`
}

type GradeSheet struct {
	Class        ClassDetail        `json:"class"`
	SubjectLevel SubjectLevelDetail `json:"subject_level"`
	Session      SessionDetail      `json:"session"`
	Rows         []GradeSheetRow    `json:"rows"`
}

// BulkGradeResult counts the rows written by a bulk upsert.
type BulkGradeResult struct {
	Created int     `json:"created"`
	Updated int     `json:"updated"`
	Grades  []Grade `json:"grades"`
}
