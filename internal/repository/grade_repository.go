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
	"github.com/lib/pq"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/pkg/database"
)

const gradeColumns = `id, enrollment_id, subject_level_id, session_id, value, remark, recorded_at, created_at, updated_at`

// GradeRepository persists grades and computes class aggregates over them.
type GradeRepository struct {
	db *sqlx.DB
}

func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades matching filter, newest first, and the total count.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	var conditions []string
	var args []interface{}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if filter.SubjectLevelID != "" {
		args = append(args, filter.SubjectLevelID)
		conditions = append(conditions, fmt.Sprintf("subject_level_id = $%d", len(args)))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM grades%s ORDER BY recorded_at DESC, id ASC LIMIT %d OFFSET %d`,
		gradeColumns, where, page.PageSize, page.Offset())
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM grades`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, `SELECT `+gradeColumns+` FROM grades WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
	if grade.RecordedAt.IsZero() {
		grade.RecordedAt = now
	}
	const query = `INSERT INTO grades (` + gradeColumns + `)
VALUES (:id, :enrollment_id, :subject_level_id, :session_id, :value, :remark, :recorded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update overwrites value, remark and recorded_at.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET value = :value, remark = :remark, recorded_at = :recorded_at, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return expectAffected(res)
}

func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return expectAffected(res)
}

// BulkUpsert writes every grade in one transaction keyed on
// (enrollment_id, subject_level_id, session_id). Grades are updated in place
// with their stored id and timestamps.
func (r *GradeRepository) BulkUpsert(ctx context.Context, grades []models.Grade) (created, updated int, err error) {
	const query = `INSERT INTO grades (` + gradeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (enrollment_id, subject_level_id, session_id)
DO UPDATE SET value = EXCLUDED.value, remark = EXCLUDED.remark, recorded_at = EXCLUDED.recorded_at, updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	now := time.Now().UTC()
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range grades {
			g := &grades[i]
			if g.ID == "" {
				g.ID = uuid.NewString()
			}
			if g.RecordedAt.IsZero() {
				g.RecordedAt = now
			}
			var inserted bool
			row := tx.QueryRowxContext(ctx, query, g.ID, g.EnrollmentID, g.SubjectLevelID, g.SessionID, g.Value, g.Remark, g.RecordedAt, now)
			if err := row.Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt, &inserted); err != nil {
				return fmt.Errorf("upsert grade %d: %w", i, err)
			}
			if inserted {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// ListByEnrollment returns every grade of an enrollment with subject and session labels.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_id, g.subject_level_id, g.session_id, g.value, g.remark, g.recorded_at, g.created_at, g.updated_at,
       sl.subject_id, s.name AS subject_name, sl.coefficient, se.label AS session_label
FROM grades g
JOIN subject_levels sl ON sl.id = g.subject_level_id
JOIN subjects s ON s.id = sl.subject_id
JOIN sessions se ON se.id = g.session_id
WHERE g.enrollment_id = $1
ORDER BY se.start_date ASC, s.name ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment grades: %w", err)
	}
	return grades, nil
}

const gradesForEnrollmentsQuery = `SELECT ` + gradeColumns + ` FROM grades WHERE enrollment_id = ANY($1) AND session_id = $2`

// ListForEnrollments loads the grades of many enrollments for one session in a single query.
func (r *GradeRepository) ListForEnrollments(ctx context.Context, enrollmentIDs []string, sessionID string) ([]models.Grade, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, gradesForEnrollmentsQuery, pq.Array(enrollmentIDs), sessionID); err != nil {
		return nil, fmt.Errorf("list grades for enrollments: %w", err)
	}
	return grades, nil
}

// ListForSubjectLevel is ListForEnrollments restricted to one subject-level configuration.
func (r *GradeRepository) ListForSubjectLevel(ctx context.Context, enrollmentIDs []string, subjectLevelID, sessionID string) ([]models.Grade, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE enrollment_id = ANY($1) AND subject_level_id = $2 AND session_id = $3`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, pq.Array(enrollmentIDs), subjectLevelID, sessionID); err != nil {
		return nil, fmt.Errorf("list grades for subject level: %w", err)
	}
	return grades, nil
}

const classStatisticsFrom = `FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
WHERE e.class_id = $1 AND e.status = 'ACTIVE' AND g.session_id = $2`

// ClassStatistics aggregates the grades of active enrollments of a class; all
// fields are zero when no grade exists. The average is not rounded.
func (r *GradeRepository) ClassStatistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, error) {
	query := `SELECT COALESCE(AVG(g.value), 0) AS class_average, COALESCE(MIN(g.value), 0) AS min,
       COALESCE(MAX(g.value), 0) AS max, COUNT(g.id) AS count
` + classStatisticsFrom + ` AND g.subject_level_id = $3`
	var stats models.GradeStatistics
	if err := r.db.GetContext(ctx, &stats, query, classID, sessionID, subjectLevelID); err != nil {
		return models.GradeStatistics{}, fmt.Errorf("class grade statistics: %w", err)
	}
	return stats, nil
}

// ClassStatisticsBySubject returns ClassStatistics for every subject level graded in the session.
func (r *GradeRepository) ClassStatisticsBySubject(ctx context.Context, classID, sessionID string) (map[string]models.GradeStatistics, error) {
	query := `SELECT g.subject_level_id, AVG(g.value) AS class_average, MIN(g.value) AS min, MAX(g.value) AS max, COUNT(g.id) AS count
` + classStatisticsFrom + ` GROUP BY g.subject_level_id`
	var rows []struct {
		SubjectLevelID string `db:"subject_level_id"`
		models.GradeStatistics
	}
	if err := r.db.SelectContext(ctx, &rows, query, classID, sessionID); err != nil {
		return nil, fmt.Errorf("class grade statistics by subject: %w", err)
	}
	stats := make(map[string]models.GradeStatistics, len(rows))
	for _, row := range rows {
		stats[row.SubjectLevelID] = row.GradeStatistics
	}
	return stats, nil
}
