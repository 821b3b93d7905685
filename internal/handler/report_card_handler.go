package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/dto"
	"github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type reportCardService interface {
	List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, *models.Pagination, error)
	Detail(ctx context.Context, id string) (*models.ReportCardDetail, bool, error)
	Create(ctx context.Context, req service.CreateReportCardRequest) (*models.ReportCard, error)
	Update(ctx context.Context, id string, req service.UpdateReportCardRequest) (*models.ReportCard, error)
	Delete(ctx context.Context, id string) error
	PDF(ctx context.Context, id string) ([]byte, string, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error)
	ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error)
	ClassPDF(ctx context.Context, classID, sessionID string) ([]byte, string, error)
	Generate(ctx context.Context, classID, sessionID string, opts service.GenerateOptions) ([]models.ReportCard, error)
}

// ReportCardHandler serves report cards and triggers class generation.
type ReportCardHandler struct {
	service reportCardService
}

func NewReportCardHandler(svc reportCardService) *ReportCardHandler {
	return &ReportCardHandler{service: svc}
}

// List godoc
// @Summary List report cards
// @Tags ReportCards
// @Produce json
// @Param sessionId query string false "Session ID"
// @Param classId query string false "Class ID"
// @Param decision query string false "PROMOTE, REPEAT or PENDING"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards [get]
func (h *ReportCardHandler) List(c *gin.Context) {
	filter := models.ReportCardFilter{
		SessionID:   c.Query("sessionId"),
		ClassID:     c.Query("classId"),
		Decision:    models.Decision(c.Query("decision")),
		PageRequest: pageRequest(c),
	}
	cards, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, pagination)
}

// Get godoc
// @Summary Report card detail
// @Description Report card with per-subject grades and class statistics
// @Tags ReportCards
// @Produce json
// @Param id path string true "Report card ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards/{id} [get]
func (h *ReportCardHandler) Get(c *gin.Context) {
	detail, hit, err := h.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, detail, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create a report card manually
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body service.CreateReportCardRequest true "Report card"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards [post]
func (h *ReportCardHandler) Create(c *gin.Context) {
	var req service.CreateReportCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	card, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// Update godoc
// @Summary Update a report card
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param id path string true "Report card ID"
// @Param payload body service.UpdateReportCardRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards/{id} [put]
func (h *ReportCardHandler) Update(c *gin.Context) {
	var req service.UpdateReportCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	card, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Delete godoc
// @Summary Delete a report card
// @Tags ReportCards
// @Param id path string true "Report card ID"
// @Success 204
// @Security BearerAuth
// @Router /report-cards/{id} [delete]
func (h *ReportCardHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PDF godoc
// @Summary Download a report card as PDF
// @Tags ReportCards
// @Produce application/pdf
// @Param id path string true "Report card ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /report-cards/{id}/pdf [get]
func (h *ReportCardHandler) PDF(c *gin.Context) {
	data, filename, err := h.service.PDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypePDF, data)
}

// ByEnrollment godoc
// @Summary Report cards of one enrollment
// @Tags ReportCards
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards/enrollment/{enrollmentId} [get]
func (h *ReportCardHandler) ByEnrollment(c *gin.Context) {
	cards, err := h.service.ListByEnrollment(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// ByClassSession godoc
// @Summary Ranked report cards of a class
// @Tags ReportCards
// @Produce json
// @Param classId path string true "Class ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards/class/{classId}/session/{sessionId} [get]
func (h *ReportCardHandler) ByClassSession(c *gin.Context) {
	cards, err := h.service.ListByClassSession(c.Request.Context(), c.Param("classId"), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// ClassPDF godoc
// @Summary Class report cards as one PDF
// @Tags ReportCards
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /report-cards/class/{classId}/session/{sessionId}/pdf [get]
func (h *ReportCardHandler) ClassPDF(c *gin.Context) {
	data, filename, err := h.service.ClassPDF(c.Request.Context(), c.Param("classId"), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypePDF, data)
}

// Generate godoc
// @Summary Generate the report cards of a class
// @Description Computes weighted averages and ranks for every active enrollment and upserts them in one transaction
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param sessionId path string true "Session ID"
// @Param payload body dto.GenerateReportCardsRequest false "Edition date and per-enrollment overrides"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /report-cards/generate/class/{classId}/session/{sessionId} [post]
func (h *ReportCardHandler) Generate(c *gin.Context) {
	var req dto.GenerateReportCardsRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, bindError(err))
			return
		}
	}
	classID, sessionID := c.Param("classId"), c.Param("sessionId")
	cards, err := h.service.Generate(c.Request.Context(), classID, sessionID, service.GenerateOptions{
		EditionDate: req.EditionDate,
		Overrides:   req.Overrides,
		ActorID:     actorID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.GenerateReportCardsResponse{
		ClassID:     classID,
		SessionID:   sessionID,
		Generated:   len(cards),
		ReportCards: cards,
	}, nil)
}
