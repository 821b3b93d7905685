package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

// SessionRepository reads grading sessions.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) FindDetail(ctx context.Context, id string) (*models.SessionDetail, error) {
	const query = `SELECT s.id, s.academic_year_id, s.label, s.start_date, s.end_date, s.closed, ay.label AS academic_year_label
FROM sessions s
JOIN academic_years ay ON ay.id = s.academic_year_id
WHERE s.id = $1`
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}
