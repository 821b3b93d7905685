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

const reportCardColumns = `id, enrollment_id, session_id, average, rank, general_remark, edition_date, decision, created_at, updated_at`

const reportCardSummarySelect = `SELECT rc.id, rc.enrollment_id, rc.session_id, rc.average, rc.rank, rc.general_remark, rc.edition_date, rc.decision,
       rc.created_at, rc.updated_at,
       e.student_id, s.registration_number, s.last_name, s.first_name, e.class_id, c.name AS class_name, se.label AS session_label
FROM report_cards rc
JOIN enrollments e ON e.id = rc.enrollment_id
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id
JOIN sessions se ON se.id = rc.session_id`

// CohortEntry is the computed result of one enrollment for GenerateCohort.
// Decision and GeneralRemark are written only when the matching Set flag is true;
// otherwise existing rows keep their values and new rows get PENDING and no remark.
type CohortEntry struct {
	EnrollmentID     string
	Average          float64
	Rank             int
	Decision         models.Decision
	SetDecision      bool
	GeneralRemark    *string
	SetGeneralRemark bool
}

// ReportCardRepository persists report cards.
type ReportCardRepository struct {
	db *sqlx.DB
}

func NewReportCardRepository(db *sqlx.DB) *ReportCardRepository {
	return &ReportCardRepository{db: db}
}

// CohortBuilder turns the locked cohort snapshot (ACTIVE enrollments in
// enrollment order and their grades for the session) into the rows to upsert.
// A returned error aborts the generation and is passed through unchanged.
type CohortBuilder func(enrollments []models.Enrollment, grades []models.Grade) ([]CohortEntry, error)

// GenerateCohort regenerates the report cards of a (class, session) cohort in
// one transaction. The cohort advisory lock is taken before the enrollments and
// grades are read, so concurrent generations rank from the snapshot left by the
// previous commit. Any failure rolls the whole cohort back.
func (r *ReportCardRepository) GenerateCohort(ctx context.Context, classID, sessionID string, editionDate time.Time, build CohortBuilder) ([]models.ReportCard, error) {
	var cards []models.ReportCard
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cohortLockKey(classID, sessionID)); err != nil {
			return fmt.Errorf("lock report card cohort: %w", err)
		}

		var enrollments []models.Enrollment
		if err := tx.SelectContext(ctx, &enrollments, activeEnrollmentsQuery, classID, models.EnrollmentStatusActive); err != nil {
			return fmt.Errorf("list cohort enrollments: %w", err)
		}
		var grades []models.Grade
		if len(enrollments) > 0 {
			ids := make([]string, len(enrollments))
			for i, e := range enrollments {
				ids[i] = e.ID
			}
			if err := tx.SelectContext(ctx, &grades, gradesForEnrollmentsQuery, pq.Array(ids), sessionID); err != nil {
				return fmt.Errorf("list cohort grades: %w", err)
			}
		}

		entries, err := build(enrollments, grades)
		if err != nil {
			return err
		}
		cards, err = upsertCohort(ctx, tx, sessionID, editionDate, entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func upsertCohort(ctx context.Context, tx *sqlx.Tx, sessionID string, editionDate time.Time, entries []CohortEntry) ([]models.ReportCard, error) {
	const upsert = `INSERT INTO report_cards (` + reportCardColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (enrollment_id, session_id) DO UPDATE SET
    average = EXCLUDED.average,
    rank = EXCLUDED.rank,
    edition_date = EXCLUDED.edition_date,
    decision = CASE WHEN $10 THEN EXCLUDED.decision ELSE report_cards.decision END,
    general_remark = CASE WHEN $11 THEN EXCLUDED.general_remark ELSE report_cards.general_remark END,
    updated_at = EXCLUDED.updated_at
RETURNING ` + reportCardColumns

	now := time.Now().UTC()
	cards := make([]models.ReportCard, 0, len(entries))
	for _, entry := range entries {
		decision := entry.Decision
		if !entry.SetDecision || decision == "" {
			decision = models.DecisionPending
		}
		var remark *string
		if entry.SetGeneralRemark {
			remark = entry.GeneralRemark
		}
		var card models.ReportCard
		if err := tx.QueryRowxContext(ctx, upsert,
			uuid.NewString(), entry.EnrollmentID, sessionID, entry.Average, entry.Rank, remark, editionDate, decision, now,
			entry.SetDecision, entry.SetGeneralRemark,
		).StructScan(&card); err != nil {
			return nil, fmt.Errorf("upsert report card for enrollment %s: %w", entry.EnrollmentID, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func cohortLockKey(classID, sessionID string) string {
	return "report_cards:" + classID + ":" + sessionID
}

// List returns report card summaries, newest edition first.
func (r *ReportCardRepository) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, int, error) {
	var conditions []string
	var args []interface{}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("rc.session_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)))
	}
	if filter.Decision != "" {
		args = append(args, filter.Decision)
		conditions = append(conditions, fmt.Sprintf("rc.decision = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	query := fmt.Sprintf("%s%s ORDER BY rc.edition_date DESC, rc.created_at DESC, rc.id ASC LIMIT %d OFFSET %d",
		reportCardSummarySelect, where, page.PageSize, page.Offset())
	var cards []models.ReportCardSummary
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list report cards: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM report_cards rc JOIN enrollments e ON e.id = rc.enrollment_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count report cards: %w", err)
	}
	return cards, total, nil
}

func (r *ReportCardRepository) FindByID(ctx context.Context, id string) (*models.ReportCard, error) {
	var card models.ReportCard
	if err := r.db.GetContext(ctx, &card, `SELECT `+reportCardColumns+` FROM report_cards WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find report card: %w", err)
	}
	return &card, nil
}

// ListByEnrollment returns the report cards of one enrollment in session order.
func (r *ReportCardRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error) {
	query := reportCardSummarySelect + ` WHERE rc.enrollment_id = $1 ORDER BY se.start_date ASC`
	var cards []models.ReportCardSummary
	if err := r.db.SelectContext(ctx, &cards, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment report cards: %w", err)
	}
	return cards, nil
}

// ListByClassSession returns a cohort's report cards ordered by rank. Rows of
// enrollments that left the class keep their last rank and are not part of the cohort.
func (r *ReportCardRepository) ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error) {
	query := reportCardSummarySelect + ` WHERE e.class_id = $1 AND rc.session_id = $2 AND e.status = 'ACTIVE' ORDER BY rc.rank ASC, s.last_name ASC`
	var cards []models.ReportCardSummary
	if err := r.db.SelectContext(ctx, &cards, query, classID, sessionID); err != nil {
		return nil, fmt.Errorf("list class report cards: %w", err)
	}
	return cards, nil
}

// CountByClassSession returns the number of report cards of the active cohort.
func (r *ReportCardRepository) CountByClassSession(ctx context.Context, classID, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM report_cards rc JOIN enrollments e ON e.id = rc.enrollment_id
WHERE e.class_id = $1 AND rc.session_id = $2 AND e.status = 'ACTIVE'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, sessionID); err != nil {
		return 0, fmt.Errorf("count class report cards: %w", err)
	}
	return count, nil
}

// Create inserts a single report card; a duplicate (enrollment, session) surfaces as a pq unique violation.
func (r *ReportCardRepository) Create(ctx context.Context, card *models.ReportCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now
	const query = `INSERT INTO report_cards (` + reportCardColumns + `)
VALUES (:id, :enrollment_id, :session_id, :average, :rank, :general_remark, :edition_date, :decision, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, card); err != nil {
		return fmt.Errorf("create report card: %w", err)
	}
	return nil
}

func (r *ReportCardRepository) Update(ctx context.Context, card *models.ReportCard) error {
	card.UpdatedAt = time.Now().UTC()
	const query = `UPDATE report_cards SET average = :average, rank = :rank, general_remark = :general_remark,
    edition_date = :edition_date, decision = :decision, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, card)
	if err != nil {
		return fmt.Errorf("update report card: %w", err)
	}
	return expectAffected(res)
}

func (r *ReportCardRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM report_cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report card: %w", err)
	}
	return expectAffected(res)
}
