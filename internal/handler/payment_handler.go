package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type paymentService interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Payment, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	Create(ctx context.Context, req service.CreatePaymentRequest) (*service.PaymentResult, error)
	Delete(ctx context.Context, id string) error
	Receipt(ctx context.Context, id string) ([]byte, string, error)
}

// PaymentHandler exposes payment endpoints.
type PaymentHandler struct {
	service paymentService
}

func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// List godoc
// @Summary List payments
// @Tags Billing
// @Produce json
// @Param enrollmentId query string false "Enrollment ID"
// @Param invoiceId query string false "Invoice ID"
// @Param method query string false "CASH, CHEQUE or TRANSFER"
// @Param from query string false "Paid from (YYYY-MM-DD)"
// @Param to query string false "Paid to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	from, err := dateQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	payments, pagination, err := h.service.List(c.Request.Context(), models.PaymentFilter{
		EnrollmentID: c.Query("enrollmentId"),
		InvoiceID:    c.Query("invoiceId"),
		Method:       models.PaymentMethod(c.Query("method")),
		PaidFrom:     from,
		PaidTo:       to,
		PageRequest:  pageRequest(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get payment
// @Tags Billing
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Create godoc
// @Summary Record a payment
// @Description Allocates a receipt number and refreshes the linked invoice status
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body service.CreatePaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete a payment
// @Tags Billing
// @Param id path string true "Payment ID"
// @Success 204
// @Security BearerAuth
// @Router /payments/{id} [delete]
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Receipt godoc
// @Summary Download a payment receipt
// @Tags Billing
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	data, filename, err := h.service.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypePDF, data)
}

// ByEnrollment godoc
// @Summary Payments of one enrollment
// @Tags Billing
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/enrollment/{enrollmentId} [get]
func (h *PaymentHandler) ByEnrollment(c *gin.Context) {
	payments, err := h.service.ListByEnrollment(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}
