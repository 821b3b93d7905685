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

const subjectLevelDetailSelect = `SELECT sl.id, sl.subject_id, sl.level_id, sl.coefficient, sl.created_at, sl.updated_at,
       s.code AS subject_code, s.name AS subject_name, l.name AS level_name
FROM subject_levels sl
JOIN subjects s ON s.id = sl.subject_id
JOIN levels l ON l.id = sl.level_id`

// SubjectLevelRepository manages subject coefficients per level.
type SubjectLevelRepository struct {
	db *sqlx.DB
}

func NewSubjectLevelRepository(db *sqlx.DB) *SubjectLevelRepository {
	return &SubjectLevelRepository{db: db}
}

// List returns configurations ordered by subject name.
func (r *SubjectLevelRepository) List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error) {
	var conditions []string
	var args []interface{}
	if filter.LevelID != "" {
		args = append(args, filter.LevelID)
		conditions = append(conditions, fmt.Sprintf("sl.level_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("sl.subject_id = $%d", len(args)))
	}
	query := subjectLevelDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.name ASC, sl.id ASC"

	var configs []models.SubjectLevelDetail
	if err := r.db.SelectContext(ctx, &configs, query, args...); err != nil {
		return nil, fmt.Errorf("list subject levels: %w", err)
	}
	return configs, nil
}

// ListByLevel returns the configurations of one level.
func (r *SubjectLevelRepository) ListByLevel(ctx context.Context, levelID string) ([]models.SubjectLevelDetail, error) {
	return r.List(ctx, models.SubjectLevelFilter{LevelID: levelID})
}

func (r *SubjectLevelRepository) FindByID(ctx context.Context, id string) (*models.SubjectLevelDetail, error) {
	query := subjectLevelDetailSelect + ` WHERE sl.id = $1`
	var config models.SubjectLevelDetail
	if err := r.db.GetContext(ctx, &config, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subject level: %w", err)
	}
	return &config, nil
}

func (r *SubjectLevelRepository) FindBySubjectAndLevel(ctx context.Context, subjectID, levelID string) (*models.SubjectLevelDetail, error) {
	query := subjectLevelDetailSelect + ` WHERE sl.subject_id = $1 AND sl.level_id = $2`
	var config models.SubjectLevelDetail
	if err := r.db.GetContext(ctx, &config, query, subjectID, levelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subject level by scope: %w", err)
	}
	return &config, nil
}

// Create inserts the configuration; a duplicate (subject, level) surfaces as a pq unique violation.
func (r *SubjectLevelRepository) Create(ctx context.Context, config *models.SubjectLevelConfig) error {
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	config.CreatedAt = now
	config.UpdatedAt = now
	const query = `INSERT INTO subject_levels (id, subject_id, level_id, coefficient, created_at, updated_at)
VALUES (:id, :subject_id, :level_id, :coefficient, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, config); err != nil {
		return fmt.Errorf("create subject level: %w", err)
	}
	return nil
}

func (r *SubjectLevelRepository) UpdateCoefficient(ctx context.Context, id string, coefficient int) error {
	const query = `UPDATE subject_levels SET coefficient = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, coefficient, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update subject level: %w", err)
	}
	return expectAffected(res)
}

func (r *SubjectLevelRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subject_levels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subject level: %w", err)
	}
	return expectAffected(res)
}

// HasGrades reports whether grades reference the configuration.
func (r *SubjectLevelRepository) HasGrades(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM grades WHERE subject_level_id = $1)`, id); err != nil {
		return false, fmt.Errorf("check subject level grades: %w", err)
	}
	return exists, nil
}

// expectAffected maps a zero-row update or delete to sql.ErrNoRows.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
