package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const exportJobColumns = `id, class_id, session_id, format, status, progress, file_path, result_url, error_message, created_by, created_at, finished_at`

// ExportJobRepository persists asynchronous export job state.
type ExportJobRepository struct {
	db *sqlx.DB
}

func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_jobs (` + exportJobColumns + `)
VALUES (:id, :class_id, :session_id, :format, :status, :progress, :file_path, :result_url, :error_message, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

func (r *ExportJobRepository) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, `SELECT `+exportJobColumns+` FROM export_jobs WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find export job: %w", err)
	}
	return &job, nil
}

// ExportJobUpdate lists the mutable fields of a job; nil fields are left untouched.
type ExportJobUpdate struct {
	Status       *models.ExportStatus
	Progress     *int
	FilePath     *string
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (r *ExportJobRepository) Update(ctx context.Context, id string, params ExportJobUpdate) error {
	var set []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}

// ListQueued returns jobs left QUEUED, oldest first, so they can be re-enqueued after a restart.
func (r *ExportJobRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []models.ExportJob
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued export jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than cutoff whose files are due for cleanup.
func (r *ExportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.ExportJob
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs
WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1
ORDER BY finished_at ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished export jobs: %w", err)
	}
	return jobs, nil
}
