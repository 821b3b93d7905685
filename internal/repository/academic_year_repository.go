package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

type AcademicYearRepository struct {
	db *sqlx.DB
}

func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// FindActive returns the academic year flagged active, or sql.ErrNoRows.
func (r *AcademicYearRepository) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	const query = `SELECT id, label, start_date, end_date, is_active FROM academic_years WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active academic year: %w", err)
	}
	return &year, nil
}

func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	const query = `SELECT id, label, start_date, end_date, is_active FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find academic year: %w", err)
	}
	return &year, nil
}
