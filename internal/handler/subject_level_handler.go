package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type subjectLevelService interface {
	List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error)
	Get(ctx context.Context, id string) (*models.SubjectLevelDetail, error)
	Create(ctx context.Context, req service.CreateSubjectLevelRequest) (*models.SubjectLevelDetail, error)
	UpdateCoefficient(ctx context.Context, id string, req service.UpdateSubjectLevelRequest) (*models.SubjectLevelDetail, error)
	Delete(ctx context.Context, id string) error
}

// SubjectLevelHandler manages subject coefficients per level.
type SubjectLevelHandler struct {
	service subjectLevelService
}

func NewSubjectLevelHandler(svc subjectLevelService) *SubjectLevelHandler {
	return &SubjectLevelHandler{service: svc}
}

// List godoc
// @Summary List subject level configurations
// @Tags SubjectLevels
// @Produce json
// @Param levelId query string false "Level ID"
// @Param subjectId query string false "Subject ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subject-levels [get]
func (h *SubjectLevelHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), models.SubjectLevelFilter{
		LevelID:   c.Query("levelId"),
		SubjectID: c.Query("subjectId"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get subject level configuration
// @Tags SubjectLevels
// @Produce json
// @Param id path string true "Subject level ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subject-levels/{id} [get]
func (h *SubjectLevelHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Configure a subject for a level
// @Tags SubjectLevels
// @Accept json
// @Produce json
// @Param payload body service.CreateSubjectLevelRequest true "Subject level payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /subject-levels [post]
func (h *SubjectLevelHandler) Create(c *gin.Context) {
	var req service.CreateSubjectLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Change a subject coefficient
// @Tags SubjectLevels
// @Accept json
// @Produce json
// @Param id path string true "Subject level ID"
// @Param payload body service.UpdateSubjectLevelRequest true "Coefficient"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subject-levels/{id} [put]
func (h *SubjectLevelHandler) Update(c *gin.Context) {
	var req service.UpdateSubjectLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.UpdateCoefficient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Remove a subject level configuration
// @Tags SubjectLevels
// @Param id path string true "Subject level ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /subject-levels/{id} [delete]
func (h *SubjectLevelHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
