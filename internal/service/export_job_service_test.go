package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/dto"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
)

type exportJobRepoStub struct {
	mu   sync.Mutex
	jobs map[string]*models.ExportJob
}

func newExportJobRepoStub() *exportJobRepoStub {
	return &exportJobRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (r *exportJobRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	c := *job
	r.jobs[job.ID] = &c
	return nil
}

func (r *exportJobRepoStub) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *job
	return &c, nil
}

func (r *exportJobRepoStub) Update(ctx context.Context, id string, params repository.ExportJobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportJobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var finished []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type exportQueueStub struct {
	jobs []jobs.Job[ExportTask]
	err  error
}

func (q *exportQueueStub) Enqueue(job jobs.Job[ExportTask]) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type cardCountStub int

func (c cardCountStub) CountByClassSession(ctx context.Context, classID, sessionID string) (int, error) {
	return int(c), nil
}

type exportJobFixture struct {
	svc      *ExportJobService
	worker   *ExportWorker
	repo     *exportJobRepoStub
	queue    *exportQueueStub
	exporter *ExportService
	metrics  *MetricsService
}

func newExportJobFixture(t *testing.T, cards int) *exportJobFixture {
	t.Helper()
	repo := newExportJobRepoStub()
	queue := &exportQueueStub{}
	exporter, _ := newExportServiceForTest(t, documentsStub{docs: sampleDocuments()})
	metrics := NewMetricsService()
	svc := NewExportJobService(repo, cardCountStub(cards), queue, exporter, metrics, nil, zap.NewNop(), ExportJobConfig{ResultTTL: time.Hour})
	worker := NewExportWorker(repo, exporter, metrics, zap.NewNop())
	return &exportJobFixture{svc: svc, worker: worker, repo: repo, queue: queue, exporter: exporter, metrics: metrics}
}

func TestExportJobServiceCreateJob(t *testing.T) {
	f := newExportJobFixture(t, 2)

	resp, err := f.svc.CreateJob(context.Background(), dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, resp.ID, f.queue.jobs[0].ID)
	assert.Equal(t, "class-1", f.queue.jobs[0].Payload.ClassID)

	_, err = f.svc.CreateJob(context.Background(), dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: "xlsx"}, "admin-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportJobServiceCreateJobWithoutReportCards(t *testing.T) {
	f := newExportJobFixture(t, 0)
	_, err := f.svc.CreateJob(context.Background(), dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatPDF}, "admin-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.repo.jobs)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	f := newExportJobFixture(t, 1)
	f.queue.err = jobs.ErrQueueClosed

	_, err := f.svc.CreateJob(context.Background(), dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatPDF}, "admin-1")
	require.Error(t, err)
	require.Len(t, f.repo.jobs, 1)
	for _, job := range f.repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportJobServiceGetStatusOwnership(t *testing.T) {
	f := newExportJobFixture(t, 1)
	resp, err := f.svc.CreateJob(context.Background(), dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatCSV}, "teacher-1")
	require.NoError(t, err)

	status, err := f.svc.GetStatus(context.Background(), resp.ID, "teacher-1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, status.Status)

	_, err = f.svc.GetStatus(context.Background(), resp.ID, "teacher-2", models.RoleTeacher)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.GetStatus(context.Background(), resp.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = f.svc.GetStatus(context.Background(), "missing", "admin-1", models.RoleAdmin)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestExportWorkerHandleAndDownload(t *testing.T) {
	f := newExportJobFixture(t, 2)
	ctx := context.Background()
	resp, err := f.svc.CreateJob(ctx, dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, f.worker.Handle(ctx, f.queue.jobs[0]))

	status, err := f.svc.GetStatus(ctx, resp.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.ResultURL)
	assert.Nil(t, status.Error)

	token := (*status.ResultURL)[len("/api/v1/export/"):]
	download, err := f.svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ExportFormatCSV, download.Format)
	assert.Contains(t, download.Filename, ".csv")

	_, err = f.svc.ResolveDownload(ctx, token+"x")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestExportWorkerFailureRequeuesThenFails(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued}
	require.NoError(t, repo.Create(context.Background(), job))
	exporter, _ := newExportServiceForTest(t, documentsStub{err: errors.New("renderer down")})
	worker := NewExportWorker(repo, exporter, NewMetricsService(), zap.NewNop())
	queued := exportQueueJob(job)

	err := worker.Handle(context.Background(), queued)
	require.Error(t, err)
	stored, _ := repo.FindByID(context.Background(), job.ID)
	assert.Equal(t, models.ExportStatusQueued, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "renderer down", *stored.ErrorMessage)

	worker.Fail(context.Background(), queued, err)
	stored, _ = repo.FindByID(context.Background(), job.ID)
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	f := newExportJobFixture(t, 1)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.repo.Create(context.Background(), &models.ExportJob{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatPDF, Status: models.ExportStatusQueued}))
	}
	require.NoError(t, f.repo.Create(context.Background(), &models.ExportJob{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatPDF, Status: models.ExportStatusFinished}))

	f.svc.RecoverPendingJobs(context.Background())
	assert.Len(t, f.queue.jobs, 2)
}

func TestExportJobServiceCleanupExpired(t *testing.T) {
	f := newExportJobFixture(t, 1)
	ctx := context.Background()
	resp, err := f.svc.CreateJob(ctx, dto.ExportRequest{ClassID: "class-1", SessionID: "s1", Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, f.queue.jobs[0]))

	stale := time.Now().Add(-2 * time.Hour)
	f.repo.jobs[resp.ID].FinishedAt = &stale
	path := *f.repo.jobs[resp.ID].FilePath

	f.svc.CleanupExpired(ctx)
	_, err = f.exporter.Open(path)
	assert.Error(t, err)
}
