package export

import "time"

// Letterhead is printed at the top of every generated document.
type Letterhead struct {
	Name    string
	Address string
	Phone   string
}

// ReportCardLine is one subject row of a report card.
type ReportCardLine struct {
	Subject      string
	Coefficient  int
	Grade        *float64
	ClassAverage float64
	Min          float64
	Max          float64
}

// ReportCardDocument carries everything printed on a student's report card.
type ReportCardDocument struct {
	StudentName        string
	RegistrationNumber string
	ClassName          string
	LevelName          string
	SessionLabel       string
	AcademicYear       string
	Lines              []ReportCardLine
	Average            float64
	Rank               int
	CohortSize         int
	Decision           string
	Remark             string
	EditionDate        time.Time
}

type PaymentLine struct {
	PaidAt    time.Time
	Method    string
	Reference string
	Amount    float64
}

type InvoiceDocument struct {
	Number      string
	StudentName string
	ClassName   string
	IssuedAt    time.Time
	Status      string
	Total       float64
	Paid        float64
	Remaining   float64
	Payments    []PaymentLine
}

type ReceiptDocument struct {
	ReceiptNumber string
	InvoiceNumber string
	StudentName   string
	ClassName     string
	PaidAt        time.Time
	Method        string
	Reference     string
	Period        string
	Description   string
	Amount        float64
}

// EnrollmentCertificateDocument certifies that a student is enrolled for an academic year.
type EnrollmentCertificateDocument struct {
	Reference          string
	StudentLastName    string
	StudentFirstName   string
	RegistrationNumber string
	BirthDate          *time.Time
	ClassName          string
	LevelName          string
	AcademicYear       string
	IssuedAt           time.Time
}
