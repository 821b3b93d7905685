package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type gradeService interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, req service.CreateGradeRequest) (*models.Grade, error)
	Update(ctx context.Context, id string, req service.UpdateGradeRequest) (*models.Grade, error)
	Delete(ctx context.Context, id string) error
	BulkUpsert(ctx context.Context, req service.BulkGradeRequest) (*models.BulkGradeResult, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeDetail, error)
	Sheet(ctx context.Context, classID, subjectID, sessionID string) (*models.GradeSheet, error)
	Statistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, bool, error)
}

// GradeHandler exposes grade entry and class grade sheets.
type GradeHandler struct {
	service gradeService
}

func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param enrollmentId query string false "Enrollment ID"
// @Param subjectLevelId query string false "Subject level ID"
// @Param sessionId query string false "Session ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter := models.GradeFilter{
		EnrollmentID:   c.Query("enrollmentId"),
		SubjectLevelID: c.Query("subjectLevelId"),
		SessionID:      c.Query("sessionId"),
		PageRequest:    pageRequest(c),
	}
	grades, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, pagination)
}

// Get godoc
// @Summary Get grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Create godoc
// @Summary Record a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.CreateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	grade, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Bulk godoc
// @Summary Upsert many grades at once
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkGradeRequest true "Grades"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/bulk [post]
func (h *GradeHandler) Bulk(c *gin.Context) {
	var req service.BulkGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.service.BulkUpsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Update grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	grade, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete grade
// @Tags Grades
// @Param id path string true "Grade ID"
// @Success 204
// @Security BearerAuth
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ByEnrollment godoc
// @Summary Grades of one enrollment
// @Tags Grades
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/enrollment/{enrollmentId} [get]
func (h *GradeHandler) ByEnrollment(c *gin.Context) {
	grades, err := h.service.ListByEnrollment(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Sheet godoc
// @Summary Class grade sheet
// @Description Active students of the class with their grade in the subject, if any
// @Tags Grades
// @Produce json
// @Param classId path string true "Class ID"
// @Param subjectId path string true "Subject ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/class/{classId}/subject/{subjectId}/session/{sessionId} [get]
func (h *GradeHandler) Sheet(c *gin.Context) {
	sheet, err := h.service.Sheet(c.Request.Context(), c.Param("classId"), c.Param("subjectId"), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Statistics godoc
// @Summary Class statistics for a subject
// @Tags Grades
// @Produce json
// @Param classId path string true "Class ID"
// @Param subjectLevelId path string true "Subject level ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/class/{classId}/subject-level/{subjectLevelId}/session/{sessionId}/statistics [get]
func (h *GradeHandler) Statistics(c *gin.Context) {
	stats, hit, err := h.service.Statistics(c.Request.Context(), c.Param("classId"), c.Param("subjectLevelId"), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
