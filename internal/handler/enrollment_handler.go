package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/pkg/response"
)

type enrollmentService interface {
	Certificate(ctx context.Context, id string) ([]byte, string, error)
}

// EnrollmentHandler exposes enrollment documents.
type EnrollmentHandler struct {
	service enrollmentService
}

func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Certificate godoc
// @Summary Download an enrollment certificate
// @Tags Enrollments
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/certificate [get]
func (h *EnrollmentHandler) Certificate(c *gin.Context) {
	data, filename, err := h.service.Certificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypePDF, data)
}
