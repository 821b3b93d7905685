package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/pkg/database"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

// amountTolerance absorbs float rounding when comparing money with 2 decimals.
const amountTolerance = 0.005

const maxNumberAttempts = 3

type invoiceStore interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceBalance, int, error)
	FindBalance(ctx context.Context, id string) (*models.InvoiceBalance, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.InvoiceBalance, error)
	CountWithPrefix(ctx context.Context, prefix string) (int, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
	UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context, academicYearID string) (*models.InvoiceStatistics, error)
}

type billingEnrollmentReader interface {
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type activeYearReader interface {
	FindActive(ctx context.Context) (*models.AcademicYear, error)
}

type invoicePaymentLister interface {
	ListByInvoice(ctx context.Context, invoiceID string) ([]models.Payment, error)
}

type invoiceRenderer interface {
	Invoice(doc export.InvoiceDocument) ([]byte, error)
}

type CreateInvoiceRequest struct {
	EnrollmentID string     `json:"enrollment_id" validate:"required"`
	Number       string     `json:"number" validate:"omitempty,max=50"`
	IssuedAt     *time.Time `json:"issued_at"`
	TotalAmount  float64    `json:"total_amount" validate:"gt=0"`
}

type UpdateInvoiceRequest struct {
	Number      *string    `json:"number" validate:"omitempty,min=1,max=50"`
	IssuedAt    *time.Time `json:"issued_at"`
	TotalAmount *float64   `json:"total_amount" validate:"omitempty,gt=0"`
}

// InvoiceService bills enrollments and tracks how much of each invoice is settled.
type InvoiceService struct {
	invoices    invoiceStore
	enrollments billingEnrollmentReader
	years       activeYearReader
	payments    invoicePaymentLister
	pdf         invoiceRenderer
	audit       AuditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func NewInvoiceService(invoices invoiceStore, enrollments billingEnrollmentReader, years activeYearReader, payments invoicePaymentLister, pdf invoiceRenderer, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *InvoiceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		invoices:    invoices,
		enrollments: enrollments,
		years:       years,
		payments:    payments,
		pdf:         pdf,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *InvoiceService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceBalance, *models.Pagination, error) {
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list invoices")
	}
	return invoices, filter.PageRequest.Pagination(total), nil
}

// Get returns the invoice with its paid and remaining amounts.
func (s *InvoiceService) Get(ctx context.Context, id string) (*models.InvoiceBalance, error) {
	invoice, err := s.invoices.FindBalance(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	return invoice, nil
}

func (s *InvoiceService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.InvoiceBalance, error) {
	if _, err := s.enrollments.FindDetail(ctx, enrollmentID); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	invoices, err := s.invoices.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to list invoices")
	}
	return invoices, nil
}

// Create bills an active enrollment. Without an explicit number one is
// generated as INV-YYYYMMDD-NNN from the invoices already issued that day.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*models.InvoiceBalance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice payload")
	}
	if err := requireActiveEnrollment(ctx, s.enrollments, req.EnrollmentID); err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		EnrollmentID: req.EnrollmentID,
		Number:       req.Number,
		IssuedAt:     s.now(),
		TotalAmount:  req.TotalAmount,
		Status:       models.InvoiceStatusUnpaid,
	}
	if req.IssuedAt != nil {
		invoice.IssuedAt = req.IssuedAt.UTC()
	}

	generated := req.Number == ""
	for attempt := 0; ; attempt++ {
		if generated {
			number, err := s.nextNumber(ctx)
			if err != nil {
				return nil, err
			}
			invoice.Number = number
		}
		err := s.invoices.Create(ctx, invoice)
		if err == nil {
			break
		}
		// Two requests may draw the same daily sequence; draw again.
		if generated && database.IsUniqueViolation(err) && attempt+1 < maxNumberAttempts {
			invoice.ID = ""
			continue
		}
		return nil, writeError(err, "invoice number already exists", "enrollment not found", "failed to create invoice")
	}
	return s.Get(ctx, invoice.ID)
}

func (s *InvoiceService) nextNumber(ctx context.Context) (string, error) {
	prefix := "INV-" + s.now().Format("20060102") + "-"
	count, err := s.invoices.CountWithPrefix(ctx, prefix)
	if err != nil {
		return "", internalError(err, "failed to number invoice")
	}
	return fmt.Sprintf("%s%03d", prefix, count+1), nil
}

// Update edits an invoice that no payment references yet.
func (s *InvoiceService) Update(ctx context.Context, id string, req UpdateInvoiceRequest) (*models.InvoiceBalance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PaymentCount > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice already has payments")
	}

	invoice := current.Invoice
	if req.Number != nil {
		invoice.Number = *req.Number
	}
	if req.IssuedAt != nil {
		invoice.IssuedAt = req.IssuedAt.UTC()
	}
	if req.TotalAmount != nil {
		invoice.TotalAmount = *req.TotalAmount
	}
	if err := s.invoices.Update(ctx, &invoice); err != nil {
		return nil, writeError(err, "invoice number already exists", "invoice not found", "failed to update invoice")
	}
	return s.Get(ctx, id)
}

func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.PaymentCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "invoice already has payments")
	}
	if err := s.invoices.Delete(ctx, id); err != nil {
		return lookupError(err, "invoice not found", "failed to delete invoice")
	}
	return nil
}

// MarkPaid forces the PAID status once the recorded payments cover the total.
func (s *InvoiceService) MarkPaid(ctx context.Context, id, actorID string) (*models.InvoiceBalance, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PaidAmount+amountTolerance < current.TotalAmount {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("payments cover %.2f of %.2f", current.PaidAmount, current.TotalAmount))
	}
	if err := s.invoices.UpdateStatus(ctx, id, models.InvoiceStatusPaid); err != nil {
		return nil, lookupError(err, "invoice not found", "failed to update invoice")
	}

	oldValues, _ := json.Marshal(map[string]models.InvoiceStatus{"status": current.Status})
	newValues, _ := json.Marshal(map[string]models.InvoiceStatus{"status": models.InvoiceStatusPaid})
	entry := &models.AuditLog{
		Action:     models.AuditActionInvoiceMarkPaid,
		Resource:   "invoice",
		ResourceID: &current.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
		CreatedAt:  s.now(),
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	recordAudit(ctx, s.audit, s.logger, entry)

	return s.Get(ctx, id)
}

// Statistics aggregates the invoices of an academic year, the active one when
// academicYearID is empty.
func (s *InvoiceService) Statistics(ctx context.Context, academicYearID string) (*models.InvoiceStatistics, error) {
	if academicYearID == "" {
		year, err := s.years.FindActive(ctx)
		if err != nil {
			return nil, lookupError(err, "no active academic year", "failed to load academic year")
		}
		academicYearID = year.ID
	}
	stats, err := s.invoices.Statistics(ctx, academicYearID)
	if err != nil {
		return nil, internalError(err, "failed to compute invoice statistics")
	}
	return stats, nil
}

// PDF renders the invoice with its payment history.
func (s *InvoiceService) PDF(ctx context.Context, id string) ([]byte, string, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	enrollment, err := s.enrollments.FindDetail(ctx, invoice.EnrollmentID)
	if err != nil {
		return nil, "", lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	payments, err := s.payments.ListByInvoice(ctx, id)
	if err != nil {
		return nil, "", internalError(err, "failed to load payments")
	}

	doc := export.InvoiceDocument{
		Number:      invoice.Number,
		StudentName: enrollment.StudentName(),
		ClassName:   enrollment.ClassName,
		IssuedAt:    invoice.IssuedAt,
		Status:      string(invoice.Status),
		Total:       invoice.TotalAmount,
		Paid:        invoice.PaidAmount,
		Remaining:   invoice.RemainingAmount,
	}
	for _, p := range payments {
		doc.Payments = append(doc.Payments, export.PaymentLine{
			PaidAt:    p.PaidAt,
			Method:    string(p.Method),
			Reference: deref(p.Reference),
			Amount:    p.Amount,
		})
	}
	content, err := s.pdf.Invoice(doc)
	if err != nil {
		return nil, "", internalError(err, "failed to render invoice")
	}
	return content, fmt.Sprintf("invoice-%s.pdf", invoice.Number), nil
}

func requireActiveEnrollment(ctx context.Context, enrollments billingEnrollmentReader, id string) error {
	enrollment, err := enrollments.FindDetail(ctx, id)
	if err != nil {
		return lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if !enrollment.IsActive() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment is %s", enrollment.Status))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
