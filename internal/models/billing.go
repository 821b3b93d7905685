package models

import "time"

type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
)

// StatusForPaid derives the invoice status from the amount paid so far.
func StatusForPaid(total, paid float64) InvoiceStatus {
	switch {
	case paid <= 0:
		return InvoiceStatusUnpaid
	case paid+0.005 >= total:
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCheque   PaymentMethod = "CHEQUE"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// Invoice is a bill issued to an enrollment. Amounts are in the school's currency with 2 decimals.
type Invoice struct {
	ID           string        `db:"id" json:"id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Number       string        `db:"number" json:"number"`
	IssuedAt     time.Time     `db:"issued_at" json:"issued_at"`
	TotalAmount  float64       `db:"total_amount" json:"total_amount"`
	Status       InvoiceStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// InvoiceBalance is an invoice with its payments summed.
type InvoiceBalance struct {
	Invoice
	PaidAmount      float64 `db:"paid_amount" json:"paid_amount"`
	RemainingAmount float64 `db:"remaining_amount" json:"remaining_amount"`
	PaymentCount    int     `db:"payment_count" json:"payment_count"`
}

type InvoiceFilter struct {
	Status       InvoiceStatus
	EnrollmentID string
	IssuedFrom   *time.Time
	IssuedTo     *time.Time
	PageRequest
}

// InvoiceStatusBreakdown aggregates invoices of one status.
type InvoiceStatusBreakdown struct {
	Status InvoiceStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
	Total  float64       `db:"total" json:"total"`
}

type InvoiceStatistics struct {
	AcademicYearID string                   `json:"academic_year_id"`
	InvoiceCount   int                      `json:"invoice_count"`
	TotalAmount    float64                  `json:"total_amount"`
	PaidAmount     float64                  `json:"paid_amount"`
	ByStatus       []InvoiceStatusBreakdown `json:"by_status"`
}

// Payment is money received for an enrollment, optionally settling an invoice.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	EnrollmentID  string        `db:"enrollment_id" json:"enrollment_id"`
	InvoiceID     *string       `db:"invoice_id" json:"invoice_id,omitempty"`
	Amount        float64       `db:"amount" json:"amount"`
	PaidAt        time.Time     `db:"paid_at" json:"paid_at"`
	Method        PaymentMethod `db:"method" json:"method"`
	Reference     *string       `db:"reference" json:"reference,omitempty"`
	Period        *string       `db:"period" json:"period,omitempty"`
	Description   *string       `db:"description" json:"description,omitempty"`
	ReceiptNumber string        `db:"receipt_number" json:"receipt_number"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

type PaymentFilter struct {
	EnrollmentID string
	InvoiceID    string
	Method       PaymentMethod
	PaidFrom     *time.Time
	PaidTo       *time.Time
	PageRequest
}
