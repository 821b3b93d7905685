package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type subjectLevelServiceMock struct {
	filter models.SubjectLevelFilter
}

func (m *subjectLevelServiceMock) List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error) {
	m.filter = filter
	return []models.SubjectLevelDetail{}, nil
}

func (m *subjectLevelServiceMock) Get(ctx context.Context, id string) (*models.SubjectLevelDetail, error) {
	return &models.SubjectLevelDetail{}, nil
}

func (m *subjectLevelServiceMock) Create(ctx context.Context, req service.CreateSubjectLevelRequest) (*models.SubjectLevelDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "subject already configured for this level")
}

func (m *subjectLevelServiceMock) UpdateCoefficient(ctx context.Context, id string, req service.UpdateSubjectLevelRequest) (*models.SubjectLevelDetail, error) {
	detail := &models.SubjectLevelDetail{}
	detail.ID = id
	detail.Coefficient = req.Coefficient
	return detail, nil
}

func (m *subjectLevelServiceMock) Delete(ctx context.Context, id string) error {
	return appErrors.Clone(appErrors.ErrConflict, "grades exist for this subject level")
}

func TestSubjectLevelHandlerListFilters(t *testing.T) {
	mock := &subjectLevelServiceMock{}
	h := NewSubjectLevelHandler(mock)

	c, w := newGinContext(http.MethodGet, "/subject-levels?levelId=L1", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "L1", mock.filter.LevelID)
}

func TestSubjectLevelHandlerCreateConflict(t *testing.T) {
	h := NewSubjectLevelHandler(&subjectLevelServiceMock{})

	c, w := newGinContext(http.MethodPost, "/subject-levels", []byte(`{"subject_id":"math","level_id":"L1","coefficient":3}`))
	h.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSubjectLevelHandlerUpdate(t *testing.T) {
	h := NewSubjectLevelHandler(&subjectLevelServiceMock{})

	c, w := newGinContext(http.MethodPut, "/subject-levels/sl-1", []byte(`{"coefficient":4}`))
	c.Params = gin.Params{{Key: "id", Value: "sl-1"}}
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"coefficient":4`)
}

func TestSubjectLevelHandlerDeleteBlocked(t *testing.T) {
	h := NewSubjectLevelHandler(&subjectLevelServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/subject-levels/sl-1", nil)
	h.Delete(c)

	require.Equal(t, http.StatusConflict, w.Code)
}
