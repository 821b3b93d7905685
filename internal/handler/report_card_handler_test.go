package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/dto"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type reportCardServiceMock struct {
	generateOpts service.GenerateOptions
	generated    []models.ReportCard
	generateErr  error
	detail       *models.ReportCardDetail
	detailHit    bool
	filter       models.ReportCardFilter
}

func (m *reportCardServiceMock) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, *models.Pagination, error) {
	m.filter = filter
	return []models.ReportCardSummary{}, filter.Pagination(0), nil
}

func (m *reportCardServiceMock) Detail(ctx context.Context, id string) (*models.ReportCardDetail, bool, error) {
	if m.detail == nil {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
	}
	return m.detail, m.detailHit, nil
}

func (m *reportCardServiceMock) Create(ctx context.Context, req service.CreateReportCardRequest) (*models.ReportCard, error) {
	return &models.ReportCard{ID: "rc-1", EnrollmentID: req.EnrollmentID, SessionID: req.SessionID}, nil
}

func (m *reportCardServiceMock) Update(ctx context.Context, id string, req service.UpdateReportCardRequest) (*models.ReportCard, error) {
	return &models.ReportCard{ID: id}, nil
}

func (m *reportCardServiceMock) Delete(ctx context.Context, id string) error { return nil }

func (m *reportCardServiceMock) PDF(ctx context.Context, id string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "report-card.pdf", nil
}

func (m *reportCardServiceMock) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error) {
	return nil, nil
}

func (m *reportCardServiceMock) ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error) {
	return []models.ReportCardSummary{{ClassID: classID}}, nil
}

func (m *reportCardServiceMock) ClassPDF(ctx context.Context, classID, sessionID string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "report-cards.pdf", nil
}

func (m *reportCardServiceMock) Generate(ctx context.Context, classID, sessionID string, opts service.GenerateOptions) ([]models.ReportCard, error) {
	m.generateOpts = opts
	return m.generated, m.generateErr
}

func TestReportCardHandlerGenerateWithOverrides(t *testing.T) {
	mock := &reportCardServiceMock{generated: []models.ReportCard{{ID: "rc-1", Rank: 1}, {ID: "rc-2", Rank: 2}}}
	h := NewReportCardHandler(mock)

	repeat := models.DecisionRepeat
	body, _ := json.Marshal(dto.GenerateReportCardsRequest{
		Overrides: map[string]models.ReportCardOverride{"enr-1": {Decision: &repeat}},
	})
	c, w := newGinContext(http.MethodPost, "/report-cards/generate/class/c1/session/s1", body)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}, {Key: "sessionId", Value: "s1"}}
	asUser(c, "admin-1", models.RoleAdmin)

	h.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin-1", mock.generateOpts.ActorID)
	require.Equal(t, models.DecisionRepeat, *mock.generateOpts.Overrides["enr-1"].Decision)

	var resp dto.GenerateReportCardsResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	require.Equal(t, 2, resp.Generated)
	require.Equal(t, "c1", resp.ClassID)
}

func TestReportCardHandlerGenerateWithoutBody(t *testing.T) {
	mock := &reportCardServiceMock{}
	h := NewReportCardHandler(mock)

	c, w := newGinContext(http.MethodPost, "/report-cards/generate/class/c1/session/s1", nil)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}, {Key: "sessionId", Value: "s1"}}

	h.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, mock.generateOpts.Overrides)
}

func TestReportCardHandlerGenerateEmptyCohort(t *testing.T) {
	h := NewReportCardHandler(&reportCardServiceMock{generateErr: appErrors.ErrEmptyCohort})

	c, w := newGinContext(http.MethodPost, "/report-cards/generate/class/c1/session/s1", nil)
	h.Generate(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "EMPTY_COHORT", decode(t, w).Error.Code)
}

func TestReportCardHandlerGetReportsCacheHit(t *testing.T) {
	h := NewReportCardHandler(&reportCardServiceMock{
		detail:    &models.ReportCardDetail{CohortSize: 3},
		detailHit: true,
	})

	c, w := newGinContext(http.MethodGet, "/report-cards/rc-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w).Meta["cache_hit"])
}

func TestReportCardHandlerGetNotFound(t *testing.T) {
	h := NewReportCardHandler(&reportCardServiceMock{})

	c, w := newGinContext(http.MethodGet, "/report-cards/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportCardHandlerListPassesFilter(t *testing.T) {
	mock := &reportCardServiceMock{}
	h := NewReportCardHandler(mock)

	c, w := newGinContext(http.MethodGet, "/report-cards?classId=c1&decision=PROMOTE&page=2&limit=5", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "c1", mock.filter.ClassID)
	require.Equal(t, models.DecisionPromote, mock.filter.Decision)
	require.Equal(t, 2, mock.filter.Page)
	require.Equal(t, 5, mock.filter.PageSize)
}

func TestReportCardHandlerPDFAttachment(t *testing.T) {
	h := NewReportCardHandler(&reportCardServiceMock{})

	c, w := newGinContext(http.MethodGet, "/report-cards/rc-1/pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
	h.PDF(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "report-card.pdf")
}

func TestReportCardHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewReportCardHandler(&reportCardServiceMock{})

	c, w := newGinContext(http.MethodPost, "/report-cards", []byte("{"))
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
