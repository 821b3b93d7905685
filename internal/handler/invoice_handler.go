package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type invoiceService interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceBalance, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.InvoiceBalance, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.InvoiceBalance, error)
	Create(ctx context.Context, req service.CreateInvoiceRequest) (*models.InvoiceBalance, error)
	Update(ctx context.Context, id string, req service.UpdateInvoiceRequest) (*models.InvoiceBalance, error)
	Delete(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id, actorID string) (*models.InvoiceBalance, error)
	Statistics(ctx context.Context, academicYearID string) (*models.InvoiceStatistics, error)
	PDF(ctx context.Context, id string) ([]byte, string, error)
}

// InvoiceHandler exposes invoice endpoints.
type InvoiceHandler struct {
	service invoiceService
}

func NewInvoiceHandler(svc invoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: svc}
}

// List godoc
// @Summary List invoices
// @Tags Billing
// @Produce json
// @Param status query string false "UNPAID, PARTIALLY_PAID or PAID"
// @Param enrollmentId query string false "Enrollment ID"
// @Param from query string false "Issued from (YYYY-MM-DD)"
// @Param to query string false "Issued to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
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
	filter := models.InvoiceFilter{
		Status:       models.InvoiceStatus(c.Query("status")),
		EnrollmentID: c.Query("enrollmentId"),
		IssuedFrom:   from,
		IssuedTo:     to,
		PageRequest:  pageRequest(c),
	}
	invoices, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, pagination)
}

// Get godoc
// @Summary Get invoice with its balance
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Create godoc
// @Summary Issue an invoice
// @Description The number is generated as INV-YYYYMMDD-NNN when omitted
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body service.CreateInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	invoice, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Update godoc
// @Summary Update an invoice without payments
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payload body service.UpdateInvoiceRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	var req service.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	invoice, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Delete godoc
// @Summary Delete an invoice without payments
// @Tags Billing
// @Param id path string true "Invoice ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkPaid godoc
// @Summary Mark an invoice as paid
// @Description Fails with 412 while payments do not cover the total
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id}/mark-paid [post]
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	invoice, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Statistics godoc
// @Summary Invoice totals by status
// @Tags Billing
// @Produce json
// @Param academicYearId query string false "Academic year ID, defaults to the active year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/statistics [get]
func (h *InvoiceHandler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context(), c.Query("academicYearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// PDF godoc
// @Summary Download an invoice as PDF
// @Tags Billing
// @Produce application/pdf
// @Param id path string true "Invoice ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /invoices/{id}/pdf [get]
func (h *InvoiceHandler) PDF(c *gin.Context) {
	data, filename, err := h.service.PDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypePDF, data)
}

// ByEnrollment godoc
// @Summary Invoices of one enrollment
// @Tags Billing
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/enrollment/{enrollmentId} [get]
func (h *InvoiceHandler) ByEnrollment(c *gin.Context) {
	invoices, err := h.service.ListByEnrollment(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, nil)
}
