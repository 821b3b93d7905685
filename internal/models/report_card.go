package models

import "time"

// Decision is the end-of-period outcome written on a report card.
type Decision string

const (
	DecisionPromote Decision = "PROMOTE"
	DecisionRepeat  Decision = "REPEAT"
	DecisionPending Decision = "PENDING"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPromote, DecisionRepeat, DecisionPending:
		return true
	}
	return false
}

// ReportCard is the per-session summary of an enrollment.
type ReportCard struct {
	ID            string    `db:"id" json:"id"`
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	Average       float64   `db:"average" json:"average"`
	Rank          int       `db:"rank" json:"rank"`
	GeneralRemark *string   `db:"general_remark" json:"general_remark,omitempty"`
	EditionDate   time.Time `db:"edition_date" json:"edition_date"`
	Decision      Decision  `db:"decision" json:"decision"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ReportCardSummary is a report card with student, class and session labels.
type ReportCardSummary struct {
	ReportCard
	StudentID          string `db:"student_id" json:"student_id"`
	RegistrationNumber string `db:"registration_number" json:"registration_number"`
	LastName           string `db:"last_name" json:"last_name"`
	FirstName          string `db:"first_name" json:"first_name"`
	ClassID            string `db:"class_id" json:"class_id"`
	ClassName          string `db:"class_name" json:"class_name"`
	SessionLabel       string `db:"session_label" json:"session_label"`
}

// ReportCardOverride replaces the decision and/or remark of one enrollment during generation.
type ReportCardOverride struct {
	Decision      *Decision `json:"decision,omitempty"`
	GeneralRemark *string   `json:"general_remark,omitempty"`
}

// SubjectResult is one subject line of a report card detail.
type SubjectResult struct {
	SubjectLevelID string          `json:"subject_level_id"`
	SubjectID      string          `json:"subject_id"`
	SubjectName    string          `json:"subject_name"`
	Coefficient    int             `json:"coefficient"`
	Grade          *float64        `json:"grade"`
	Remark         *string         `json:"remark,omitempty"`
	Statistics     GradeStatistics `json:"statistics"`
}

// ReportCardDetail is everything needed to render a report card.
type ReportCardDetail struct {
	ReportCard ReportCard       `json:"report_card"`
	Enrollment EnrollmentDetail `json:"enrollment"`
	Session    SessionDetail    `json:"session"`
	CohortSize int              `json:"cohort_size"`
	Subjects   []SubjectResult  `json:"subjects"`
}

type ReportCardFilter struct {
	SessionID string
	ClassID   string
	Decision  Decision
	PageRequest
}
