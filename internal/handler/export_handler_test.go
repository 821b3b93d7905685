package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/dto"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type exportServiceMock struct {
	createResp  *dto.ExportJobResponse
	createErr   error
	createActor string
	statusResp  *dto.ExportStatusResponse
	statusErr   error
	download    *service.ExportDownload
	downloadErr error
}

func (m *exportServiceMock) CreateJob(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	m.createActor = actorID
	return m.createResp, m.createErr
}

func (m *exportServiceMock) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *exportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return m.download, m.downloadErr
}

func TestExportHandlerCreate(t *testing.T) {
	mock := &exportServiceMock{createResp: &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}}
	h := NewExportHandler(mock, nil)

	payload, _ := json.Marshal(dto.ExportRequest{ClassID: "c1", SessionID: "s1", Format: models.ExportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/report-cards/export", payload)
	asUser(c, "admin-1", models.RoleAdmin)

	h.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "admin-1", mock.createActor)
}

func TestExportHandlerCreateRequiresUser(t *testing.T) {
	h := NewExportHandler(&exportServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/report-cards/export", []byte(`{}`))
	h.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportHandlerStatus(t *testing.T) {
	url := "/api/v1/export/token"
	h := NewExportHandler(&exportServiceMock{
		statusResp: &dto.ExportStatusResponse{ID: "job-1", Status: models.ExportStatusFinished, Progress: 100, ResultURL: &url},
	}, nil)

	c, w := newGinContext(http.MethodGet, "/report-cards/export/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	asUser(c, "admin-1", models.RoleAdmin)

	h.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestExportHandlerStatusForbidden(t *testing.T) {
	h := NewExportHandler(&exportServiceMock{statusErr: appErrors.ErrForbidden}, nil)

	c, w := newGinContext(http.MethodGet, "/report-cards/export/job-1", nil)
	asUser(c, "teacher-2", models.RoleTeacher)

	h.Status(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report-cards.csv")
	require.NoError(t, os.WriteFile(path, []byte("Rank,Student\n1,Ada\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	h := NewExportHandler(&exportServiceMock{
		download: &service.ExportDownload{
			File:      file,
			Filename:  "report-cards.csv",
			Format:    models.ExportFormatCSV,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}, nil)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Rank,Student\n1,Ada\n", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "report-cards.csv")
}

func TestExportHandlerDownloadInvalidToken(t *testing.T) {
	h := NewExportHandler(&exportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")}, nil)

	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}

	h.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
