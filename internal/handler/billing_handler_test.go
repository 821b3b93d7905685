package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type invoiceServiceMock struct {
	filter      models.InvoiceFilter
	statsYear   string
	markActor   string
	markPaidErr error
}

func (m *invoiceServiceMock) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceBalance, *models.Pagination, error) {
	m.filter = filter
	return []models.InvoiceBalance{}, filter.Pagination(0), nil
}

func (m *invoiceServiceMock) Get(ctx context.Context, id string) (*models.InvoiceBalance, error) {
	return &models.InvoiceBalance{Invoice: models.Invoice{ID: id}}, nil
}

func (m *invoiceServiceMock) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.InvoiceBalance, error) {
	return nil, nil
}

func (m *invoiceServiceMock) Create(ctx context.Context, req service.CreateInvoiceRequest) (*models.InvoiceBalance, error) {
	return &models.InvoiceBalance{Invoice: models.Invoice{ID: "inv-1", Number: "INV-20240901-001"}}, nil
}

func (m *invoiceServiceMock) Update(ctx context.Context, id string, req service.UpdateInvoiceRequest) (*models.InvoiceBalance, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "invoice has payments")
}

func (m *invoiceServiceMock) Delete(ctx context.Context, id string) error { return nil }

func (m *invoiceServiceMock) MarkPaid(ctx context.Context, id, actorID string) (*models.InvoiceBalance, error) {
	m.markActor = actorID
	if m.markPaidErr != nil {
		return nil, m.markPaidErr
	}
	return &models.InvoiceBalance{Invoice: models.Invoice{ID: id, Status: models.InvoiceStatusPaid}}, nil
}

func (m *invoiceServiceMock) Statistics(ctx context.Context, academicYearID string) (*models.InvoiceStatistics, error) {
	m.statsYear = academicYearID
	return &models.InvoiceStatistics{AcademicYearID: academicYearID}, nil
}

func (m *invoiceServiceMock) PDF(ctx context.Context, id string) ([]byte, string, error) {
	return []byte("%PDF"), "invoice-INV-20240901-001.pdf", nil
}

type paymentServiceMock struct {
	created service.CreatePaymentRequest
}

func (m *paymentServiceMock) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	return nil, filter.Pagination(0), nil
}

func (m *paymentServiceMock) Get(ctx context.Context, id string) (*models.Payment, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
}

func (m *paymentServiceMock) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	return []models.Payment{}, nil
}

func (m *paymentServiceMock) Create(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentResult, error) {
	m.created = req
	return &service.PaymentResult{
		Payment:       models.Payment{ID: "pay-1", ReceiptNumber: "RCPT-20240901-0001-C"},
		InvoiceStatus: models.InvoiceStatusPartiallyPaid,
	}, nil
}

func (m *paymentServiceMock) Delete(ctx context.Context, id string) error { return nil }

func (m *paymentServiceMock) Receipt(ctx context.Context, id string) ([]byte, string, error) {
	return []byte("%PDF"), "receipt-RCPT-20240901-0001-C.pdf", nil
}

func TestInvoiceHandlerListParsesFilters(t *testing.T) {
	mock := &invoiceServiceMock{}
	h := NewInvoiceHandler(mock)

	c, w := newGinContext(http.MethodGet, "/invoices?status=UNPAID&from=2024-09-01&to=2024-09-30", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.InvoiceStatusUnpaid, mock.filter.Status)
	require.NotNil(t, mock.filter.IssuedFrom)
	require.Equal(t, 30, mock.filter.IssuedTo.Day())
}

func TestInvoiceHandlerListRejectsBadDate(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceMock{})

	c, w := newGinContext(http.MethodGet, "/invoices?from=01/09/2024", nil)
	h.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceHandlerStatisticsPassesYear(t *testing.T) {
	mock := &invoiceServiceMock{}
	h := NewInvoiceHandler(mock)

	c, w := newGinContext(http.MethodGet, "/invoices/statistics?academicYearId=ay-2024", nil)
	h.Statistics(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ay-2024", mock.statsYear)
}

func TestInvoiceHandlerMarkPaid(t *testing.T) {
	mock := &invoiceServiceMock{}
	h := NewInvoiceHandler(mock)

	c, w := newGinContext(http.MethodPost, "/invoices/inv-1/mark-paid", nil)
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	h.MarkPaid(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin-1", mock.markActor)
}

func TestInvoiceHandlerMarkPaidPrecondition(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceMock{markPaidErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "invoice not fully paid")})

	c, w := newGinContext(http.MethodPost, "/invoices/inv-1/mark-paid", nil)
	asUser(c, "admin-1", models.RoleAdmin)
	h.MarkPaid(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	require.Equal(t, "PRECONDITION_FAILED", decode(t, w).Error.Code)
}

func TestInvoiceHandlerUpdateConflict(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceMock{})

	c, w := newGinContext(http.MethodPut, "/invoices/inv-1", []byte(`{"total_amount": 50}`))
	h.Update(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentHandlerCreate(t *testing.T) {
	mock := &paymentServiceMock{}
	h := NewPaymentHandler(mock)

	body, _ := json.Marshal(map[string]interface{}{
		"enrollment_id": "E1",
		"amount":        40,
		"method":        "CASH",
	})
	c, w := newGinContext(http.MethodPost, "/payments", body)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, models.PaymentMethodCash, mock.created.Method)

	var result service.PaymentResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	require.Equal(t, "RCPT-20240901-0001-C", result.Payment.ReceiptNumber)
}

func TestPaymentHandlerGetNotFound(t *testing.T) {
	h := NewPaymentHandler(&paymentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/payments/missing", nil)
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandlerReceipt(t *testing.T) {
	h := NewPaymentHandler(&paymentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/payments/pay-1/receipt", nil)
	h.Receipt(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "receipt-RCPT-20240901-0001-C.pdf")
}
