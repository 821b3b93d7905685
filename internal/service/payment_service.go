package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/pkg/database"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

type paymentStore interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	CountWithPrefix(ctx context.Context, prefix string) (int, error)
	Create(ctx context.Context, payment *models.Payment) (models.InvoiceStatus, error)
	Delete(ctx context.Context, payment *models.Payment) error
}

type invoiceBalanceReader interface {
	FindBalance(ctx context.Context, id string) (*models.InvoiceBalance, error)
}

type receiptRenderer interface {
	Receipt(doc export.ReceiptDocument) ([]byte, error)
}

type CreatePaymentRequest struct {
	EnrollmentID string               `json:"enrollment_id" validate:"required"`
	InvoiceID    *string              `json:"invoice_id"`
	Amount       float64              `json:"amount" validate:"gt=0"`
	PaidAt       *time.Time           `json:"paid_at"`
	Method       models.PaymentMethod `json:"method" validate:"required,oneof=CASH CHEQUE TRANSFER"`
	Reference    *string              `json:"reference" validate:"omitempty,max=100"`
	Period       *string              `json:"period" validate:"omitempty,max=50"`
	Description  *string              `json:"description"`
}

// PaymentResult is a recorded payment with the status its invoice ended in.
type PaymentResult struct {
	Payment       models.Payment       `json:"payment"`
	InvoiceStatus models.InvoiceStatus `json:"invoice_status,omitempty"`
}

// PaymentService records payments and keeps the settled invoices reconciled.
type PaymentService struct {
	payments    paymentStore
	invoices    invoiceBalanceReader
	enrollments billingEnrollmentReader
	pdf         receiptRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func NewPaymentService(payments paymentStore, invoices invoiceBalanceReader, enrollments billingEnrollmentReader, pdf receiptRenderer, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:    payments,
		invoices:    invoices,
		enrollments: enrollments,
		pdf:         pdf,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list payments")
	}
	return payments, filter.PageRequest.Pagination(total), nil
}

func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "payment not found", "failed to load payment")
	}
	return payment, nil
}

func (s *PaymentService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	if _, err := s.enrollments.FindDetail(ctx, enrollmentID); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	payments, err := s.payments.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to list payments")
	}
	return payments, nil
}

// Create records a payment of an active enrollment. A linked invoice must
// belong to the same enrollment; its status is recomputed in the same
// transaction as the insert.
func (s *PaymentService) Create(ctx context.Context, req CreatePaymentRequest) (*PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	if err := requireActiveEnrollment(ctx, s.enrollments, req.EnrollmentID); err != nil {
		return nil, err
	}
	if req.InvoiceID != nil {
		invoice, err := s.invoices.FindBalance(ctx, *req.InvoiceID)
		if err != nil {
			return nil, lookupError(err, "invoice not found", "failed to load invoice")
		}
		if invoice.EnrollmentID != req.EnrollmentID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invoice belongs to another enrollment")
		}
	}

	payment := &models.Payment{
		EnrollmentID: req.EnrollmentID,
		InvoiceID:    req.InvoiceID,
		Amount:       req.Amount,
		PaidAt:       s.now(),
		Method:       req.Method,
		Reference:    req.Reference,
		Period:       req.Period,
		Description:  req.Description,
	}
	if req.PaidAt != nil {
		payment.PaidAt = req.PaidAt.UTC()
	}

	var status models.InvoiceStatus
	for attempt := 0; ; attempt++ {
		number, err := s.nextReceipt(ctx, payment.Method)
		if err != nil {
			return nil, err
		}
		payment.ReceiptNumber = number
		status, err = s.payments.Create(ctx, payment)
		if err == nil {
			break
		}
		if database.IsUniqueViolation(err) && attempt+1 < maxNumberAttempts {
			payment.ID = ""
			continue
		}
		return nil, writeError(err, "receipt number already exists", "invoice not found", "failed to record payment")
	}

	fields := []zap.Field{zap.String("payment_id", payment.ID), zap.String("receipt", payment.ReceiptNumber)}
	if status != "" {
		fields = append(fields, zap.String("invoice_status", string(status)))
	}
	s.logger.Info("payment recorded", fields...)
	return &PaymentResult{Payment: *payment, InvoiceStatus: status}, nil
}

// nextReceipt numbers receipts RCPT-YYYYMMDD-<daily sequence>-<method initial>.
func (s *PaymentService) nextReceipt(ctx context.Context, method models.PaymentMethod) (string, error) {
	prefix := "RCPT-" + s.now().Format("20060102") + "-"
	count, err := s.payments.CountWithPrefix(ctx, prefix)
	if err != nil {
		return "", internalError(err, "failed to number receipt")
	}
	return fmt.Sprintf("%s%04d-%s", prefix, count+1, string(method)[:1]), nil
}

// Delete removes the payment and reconciles its invoice.
func (s *PaymentService) Delete(ctx context.Context, id string) error {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.payments.Delete(ctx, payment); err != nil {
		return lookupError(err, "payment not found", "failed to delete payment")
	}
	return nil
}

// Receipt renders the payment receipt.
func (s *PaymentService) Receipt(ctx context.Context, id string) ([]byte, string, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	enrollment, err := s.enrollments.FindDetail(ctx, payment.EnrollmentID)
	if err != nil {
		return nil, "", lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	doc := export.ReceiptDocument{
		ReceiptNumber: payment.ReceiptNumber,
		StudentName:   enrollment.StudentName(),
		ClassName:     enrollment.ClassName,
		PaidAt:        payment.PaidAt,
		Method:        string(payment.Method),
		Reference:     deref(payment.Reference),
		Period:        deref(payment.Period),
		Description:   deref(payment.Description),
		Amount:        payment.Amount,
	}
	if payment.InvoiceID != nil {
		invoice, err := s.invoices.FindBalance(ctx, *payment.InvoiceID)
		if err != nil {
			return nil, "", lookupError(err, "invoice not found", "failed to load invoice")
		}
		doc.InvoiceNumber = invoice.Number
	}
	content, err := s.pdf.Receipt(doc)
	if err != nil {
		return nil, "", internalError(err, "failed to render receipt")
	}
	return content, fmt.Sprintf("receipt-%s.pdf", payment.ReceiptNumber), nil
}
