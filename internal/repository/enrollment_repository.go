package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.class_id, e.academic_year_id, e.enrolled_at, e.status,
       s.registration_number, s.last_name, s.first_name, s.birth_date,
       c.name AS class_name, c.level_id, l.name AS level_name, ay.label AS academic_year_label
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id
JOIN levels l ON l.id = c.level_id
JOIN academic_years ay ON ay.id = e.academic_year_id`

const activeEnrollmentsQuery = `SELECT id, student_id, class_id, academic_year_id, enrolled_at, status
FROM enrollments
WHERE class_id = $1 AND status = $2
ORDER BY enrolled_at ASC, id ASC`

// EnrollmentRepository reads enrollments. Cohort queries return rows in
// enrollment order (enrolled_at, then id) so callers can rely on it for ties.
type EnrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, academic_year_id, enrolled_at, status FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// ListActiveByClass returns the ACTIVE enrollments of a class in enrollment order.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, activeEnrollmentsQuery, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveDetailsByClass is ListActiveByClass with student and class context.
func (r *EnrollmentRepository) ListActiveDetailsByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.class_id = $1 AND e.status = $2 ORDER BY e.enrolled_at ASC, e.id ASC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollment details: %w", err)
	}
	return details, nil
}
