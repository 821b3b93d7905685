package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const invoiceBalanceSelect = `SELECT i.id, i.enrollment_id, i.number, i.issued_at, i.total_amount, i.status, i.created_at, i.updated_at,
       COALESCE(p.paid, 0) AS paid_amount,
       i.total_amount - COALESCE(p.paid, 0) AS remaining_amount,
       COALESCE(p.count, 0) AS payment_count
FROM invoices i
LEFT JOIN (SELECT invoice_id, SUM(amount) AS paid, COUNT(*) AS count FROM payments WHERE invoice_id IS NOT NULL GROUP BY invoice_id) p
    ON p.invoice_id = i.id`

// InvoiceRepository persists invoices and reports their balances.
type InvoiceRepository struct {
	db *sqlx.DB
}

func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceBalance, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)))
	}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("i.enrollment_id = $%d", len(args)))
	}
	if filter.IssuedFrom != nil {
		args = append(args, *filter.IssuedFrom)
		conditions = append(conditions, fmt.Sprintf("i.issued_at >= $%d", len(args)))
	}
	if filter.IssuedTo != nil {
		args = append(args, *filter.IssuedTo)
		conditions = append(conditions, fmt.Sprintf("i.issued_at <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	query := fmt.Sprintf("%s%s ORDER BY i.issued_at DESC, i.number DESC LIMIT %d OFFSET %d", invoiceBalanceSelect, where, page.PageSize, page.Offset())
	var invoices []models.InvoiceBalance
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM invoices i`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindBalance returns the invoice with paid and remaining amounts.
func (r *InvoiceRepository) FindBalance(ctx context.Context, id string) (*models.InvoiceBalance, error) {
	var invoice models.InvoiceBalance
	if err := r.db.GetContext(ctx, &invoice, invoiceBalanceSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return &invoice, nil
}

func (r *InvoiceRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.InvoiceBalance, error) {
	var invoices []models.InvoiceBalance
	if err := r.db.SelectContext(ctx, &invoices, invoiceBalanceSelect+` WHERE i.enrollment_id = $1 ORDER BY i.issued_at DESC`, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment invoices: %w", err)
	}
	return invoices, nil
}

// CountWithPrefix returns how many invoice numbers already use prefix (e.g. INV-20240901-).
func (r *InvoiceRepository) CountWithPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM invoices WHERE number LIKE $1`, prefix+"%"); err != nil {
		return 0, fmt.Errorf("count invoice numbers: %w", err)
	}
	return count, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	const query = `INSERT INTO invoices (id, enrollment_id, number, issued_at, total_amount, status, created_at, updated_at)
VALUES (:id, :enrollment_id, :number, :issued_at, :total_amount, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE invoices SET number = :number, issued_at = :issued_at, total_amount = :total_amount, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, invoice)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return expectAffected(res)
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return expectAffected(res)
}

func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return expectAffected(res)
}

// Statistics aggregates the invoices of enrollments in an academic year.
func (r *InvoiceRepository) Statistics(ctx context.Context, academicYearID string) (*models.InvoiceStatistics, error) {
	const byStatus = `SELECT i.status, COUNT(*) AS count, COALESCE(SUM(i.total_amount), 0) AS total
FROM invoices i
JOIN enrollments e ON e.id = i.enrollment_id
WHERE e.academic_year_id = $1
GROUP BY i.status
ORDER BY i.status`
	var breakdown []models.InvoiceStatusBreakdown
	if err := r.db.SelectContext(ctx, &breakdown, byStatus, academicYearID); err != nil {
		return nil, fmt.Errorf("invoice statistics by status: %w", err)
	}

	const paid = `SELECT COALESCE(SUM(p.amount), 0)
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN enrollments e ON e.id = i.enrollment_id
WHERE e.academic_year_id = $1`
	stats := &models.InvoiceStatistics{AcademicYearID: academicYearID, ByStatus: breakdown}
	if err := r.db.GetContext(ctx, &stats.PaidAmount, paid, academicYearID); err != nil {
		return nil, fmt.Errorf("invoice statistics paid amount: %w", err)
	}
	for _, b := range breakdown {
		stats.InvoiceCount += b.Count
		stats.TotalAmount += b.Total
	}
	return stats, nil
}
