package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

// ClassRepository reads classes with their level and academic year.
type ClassRepository struct {
	db *sqlx.DB
}

func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindDetail returns the class joined with level and academic year.
func (r *ClassRepository) FindDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT c.id, c.level_id, c.academic_year_id, c.name, c.capacity, c.homeroom_teacher,
       l.name AS level_name, ay.label AS academic_year_label
FROM classes c
JOIN levels l ON l.id = c.level_id
JOIN academic_years ay ON ay.id = c.academic_year_id
WHERE c.id = $1`
	var class models.ClassDetail
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}
