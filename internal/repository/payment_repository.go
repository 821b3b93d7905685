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
	"github.com/noah-isme/school-admin-api/pkg/database"
)

const paymentColumns = `id, enrollment_id, invoice_id, amount, paid_at, method, reference, period, description, receipt_number, created_at`

// PaymentRepository persists payments and keeps the linked invoice status in step.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var conditions []string
	var args []interface{}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if filter.InvoiceID != "" {
		args = append(args, filter.InvoiceID)
		conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		conditions = append(conditions, fmt.Sprintf("method = $%d", len(args)))
	}
	if filter.PaidFrom != nil {
		args = append(args, *filter.PaidFrom)
		conditions = append(conditions, fmt.Sprintf("paid_at >= $%d", len(args)))
	}
	if filter.PaidTo != nil {
		args = append(args, *filter.PaidTo)
		conditions = append(conditions, fmt.Sprintf("paid_at <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	query := fmt.Sprintf("SELECT %s FROM payments%s ORDER BY paid_at DESC, receipt_number DESC LIMIT %d OFFSET %d", paymentColumns, where, page.PageSize, page.Offset())
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, `SELECT `+paymentColumns+` FROM payments WHERE enrollment_id = $1 ORDER BY paid_at DESC`, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, `SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 ORDER BY paid_at ASC`, invoiceID); err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	return payments, nil
}

// CountWithPrefix returns how many receipt numbers already use prefix.
func (r *PaymentRepository) CountWithPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM payments WHERE receipt_number LIKE $1`, prefix+"%"); err != nil {
		return 0, fmt.Errorf("count receipt numbers: %w", err)
	}
	return count, nil
}

// Create inserts the payment. When it settles an invoice, the invoice row is
// locked, its payments re-summed after the insert and its status updated in
// the same transaction. The new invoice status is returned ("" without invoice).
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) (models.InvoiceStatus, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()
	const insert = `INSERT INTO payments (` + paymentColumns + `)
VALUES (:id, :enrollment_id, :invoice_id, :amount, :paid_at, :method, :reference, :period, :description, :receipt_number, :created_at)`

	var status models.InvoiceStatus
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if payment.InvoiceID != nil {
			if err := lockInvoice(ctx, tx, *payment.InvoiceID); err != nil {
				return err
			}
		}
		if _, err := tx.NamedExecContext(ctx, insert, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if payment.InvoiceID == nil {
			return nil
		}
		var err error
		status, err = reconcileInvoice(ctx, tx, *payment.InvoiceID)
		return err
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// Delete removes the payment and reconciles its invoice in the same transaction.
func (r *PaymentRepository) Delete(ctx context.Context, payment *models.Payment) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if payment.InvoiceID != nil {
			if err := lockInvoice(ctx, tx, *payment.InvoiceID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, payment.ID)
		if err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		if payment.InvoiceID == nil {
			return nil
		}
		_, err = reconcileInvoice(ctx, tx, *payment.InvoiceID)
		return err
	})
}

func lockInvoice(ctx context.Context, tx *sqlx.Tx, invoiceID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock invoice: %w", err)
	}
	return nil
}

func reconcileInvoice(ctx context.Context, tx *sqlx.Tx, invoiceID string) (models.InvoiceStatus, error) {
	var totals struct {
		Total float64 `db:"total_amount"`
		Paid  float64 `db:"paid"`
	}
	const sums = `SELECT i.total_amount, COALESCE((SELECT SUM(amount) FROM payments WHERE invoice_id = i.id), 0) AS paid
FROM invoices i WHERE i.id = $1`
	if err := tx.GetContext(ctx, &totals, sums, invoiceID); err != nil {
		return "", fmt.Errorf("sum invoice payments: %w", err)
	}
	status := models.StatusForPaid(totals.Total, totals.Paid)
	if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`, invoiceID, status, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("update invoice status: %w", err)
	}
	return status, nil
}
