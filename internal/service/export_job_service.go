package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/dto"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.ExportJobUpdate) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

// ExportTask is the queue payload of an export job.
type ExportTask struct {
	ClassID   string
	SessionID string
	Format    models.ExportFormat
}

type exportDispatcher interface {
	Enqueue(job jobs.Job[ExportTask]) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

type exportFiles interface {
	ParseToken(token string, allowExpired bool) (storage.DownloadToken, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

type reportCardCounter interface {
	CountByClassSession(ctx context.Context, classID, sessionID string) (int, error)
}

// ExportJobConfig governs queue recovery and cleanup.
type ExportJobConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is an opened export file ready to stream.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobService manages the lifecycle of asynchronous class exports.
type ExportJobService struct {
	repo      exportJobStore
	cards     reportCardCounter
	queue     exportDispatcher
	files     exportFiles
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportJobConfig
}

func NewExportJobService(repo exportJobStore, cards reportCardCounter, queue exportDispatcher, files exportFiles, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		repo:      repo,
		cards:     cards,
		queue:     queue,
		files:     files,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob persists a QUEUED job for a class that already has report cards
// and hands it to the queue.
func (s *ExportJobService) CreateJob(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export request")
	}
	count, err := s.cards.CountByClassSession(ctx, req.ClassID, req.SessionID)
	if err != nil {
		return nil, internalError(err, "failed to count report cards")
	}
	if count == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no report card generated for this class and session")
	}

	job := &models.ExportJob{
		ClassID:   req.ClassID,
		SessionID: req.SessionID,
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, internalError(err, "failed to create export job")
	}
	if err := s.queue.Enqueue(exportQueueJob(job)); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		progress := 100
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.ExportJobUpdate{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		s.metrics.RecordExportJob(string(job.Format), string(failed))
		return nil, internalError(err, "failed to enqueue export job")
	}
	s.metrics.RecordExportJob(string(job.Format), string(job.Status))
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job progress. Teachers only see their own jobs.
func (s *ExportJobService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "export job not found", "failed to load export job")
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ExportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token against its job and opens the file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	parsed, err := s.files.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, parsed.JobID)
	if err != nil {
		return nil, lookupError(err, "export job not found", "failed to load export job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.files.Open(parsed.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, internalError(err, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(parsed.Path),
		Format:    job.Format,
		ExpiresAt: parsed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs left QUEUED by a previous process.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for i := range pending {
		if err := s.queue.Enqueue(exportQueueJob(&pending[i])); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", pending[i].ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered queued export jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup purges expired exports every CleanupInterval until ctx is done.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes the files of jobs finished before the result TTL,
// then sweeps any leftover file of the same age.
func (s *ExportJobService) CleanupExpired(ctx context.Context) {
	const batch = 100
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.FilePath == nil || *job.FilePath == "" {
			continue
		}
		if err := s.files.Delete(*job.FilePath); err != nil {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	removed, err := s.files.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
}

func exportQueueJob(job *models.ExportJob) jobs.Job[ExportTask] {
	return jobs.Job[ExportTask]{
		ID:      job.ID,
		Payload: ExportTask{ClassID: job.ClassID, SessionID: job.SessionID, Format: job.Format},
	}
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	repo     exportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
}

func NewExportWorker(repo exportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{repo: repo, exporter: exporter, metrics: metrics, logger: logger}
}

// Handle processes one queue job. A returned error lets the queue retry; the
// job goes back to QUEUED with the error recorded.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job[ExportTask]) error {
	record, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.ExportStatusFinished {
		return nil
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{Status: &queued, Progress: &reset, ErrorMessage: &msg}); updateErr != nil {
			w.logger.Warn("failed to mark export job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{
		Status:       &finished,
		Progress:     &progress,
		FilePath:     &result.RelativePath,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordExportJob(string(record.Format), string(finished))
	w.logger.Info("export job finished", zap.String("job_id", job.ID), zap.String("file", result.RelativePath))
	return nil
}

// Fail marks a job FAILED once the queue has exhausted its retries.
func (w *ExportWorker) Fail(ctx context.Context, job jobs.Job[ExportTask], cause error) {
	failed := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	msg := cause.Error()
	if err := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.RecordExportJob(string(job.Payload.Format), string(failed))
}
