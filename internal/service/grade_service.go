package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type gradeStore interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
	BulkUpsert(ctx context.Context, grades []models.Grade) (created, updated int, err error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeDetail, error)
	ListForSubjectLevel(ctx context.Context, enrollmentIDs []string, subjectLevelID, sessionID string) ([]models.Grade, error)
}

type gradeEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListActiveDetailsByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error)
}

type subjectLevelFinder interface {
	FindByID(ctx context.Context, id string) (*models.SubjectLevelDetail, error)
	FindBySubjectAndLevel(ctx context.Context, subjectID, levelID string) (*models.SubjectLevelDetail, error)
}

type subjectStatisticsReader interface {
	SubjectStatistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, bool, error)
}

// GradeRepositories groups the stores used by GradeService.
type GradeRepositories struct {
	Grades        gradeStore
	Enrollments   gradeEnrollmentReader
	SubjectLevels subjectLevelFinder
	Classes       classReader
	Sessions      sessionReader
}

type CreateGradeRequest struct {
	EnrollmentID   string     `json:"enrollment_id" validate:"required"`
	SubjectLevelID string     `json:"subject_level_id" validate:"required"`
	SessionID      string     `json:"session_id" validate:"required"`
	Value          float64    `json:"value" validate:"min=0,max=20"`
	Remark         *string    `json:"remark"`
	RecordedAt     *time.Time `json:"recorded_at"`
}

type UpdateGradeRequest struct {
	Value      *float64   `json:"value" validate:"omitempty,min=0,max=20"`
	Remark     *string    `json:"remark"`
	RecordedAt *time.Time `json:"recorded_at"`
}

type BulkGradeRequest struct {
	Grades []CreateGradeRequest `json:"grades" validate:"required,min=1,dive"`
}

// GradeService records grades and invalidates whatever was derived from them.
type GradeService struct {
	grades      gradeStore
	enrollments gradeEnrollmentReader
	subjects    subjectLevelFinder
	classes     classReader
	sessions    sessionReader
	statistics  subjectStatisticsReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewGradeService(repos GradeRepositories, statistics subjectStatisticsReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:      repos.Grades,
		enrollments: repos.Enrollments,
		subjects:    repos.SubjectLevels,
		classes:     repos.Classes,
		sessions:    repos.Sessions,
		statistics:  statistics,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error) {
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list grades")
	}
	return grades, filter.PageRequest.Pagination(total), nil
}

func (s *GradeService) Get(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "grade not found", "failed to load grade")
	}
	return grade, nil
}

func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	if err := s.checkReferences(ctx, req); err != nil {
		return nil, err
	}
	grade := req.toGrade()
	if err := s.grades.Create(ctx, &grade); err != nil {
		return nil, writeError(err, "grade already recorded for this subject and session", "grade not found", "failed to create grade")
	}
	s.invalidate(ctx, grade.SessionID)
	return &grade, nil
}

func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	grade, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Value != nil {
		grade.Value = *req.Value
	}
	if req.Remark != nil {
		grade.Remark = req.Remark
	}
	if req.RecordedAt != nil {
		grade.RecordedAt = req.RecordedAt.UTC()
	}
	if err := s.grades.Update(ctx, grade); err != nil {
		return nil, lookupError(err, "grade not found", "failed to update grade")
	}
	s.invalidate(ctx, grade.SessionID)
	return grade, nil
}

func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.grades.Delete(ctx, id); err != nil {
		return lookupError(err, "grade not found", "failed to delete grade")
	}
	s.invalidate(ctx, grade.SessionID)
	return nil
}

// BulkUpsert creates or updates every (enrollment, subject level, session)
// triple of the batch in a single transaction.
func (s *GradeService) BulkUpsert(ctx context.Context, req BulkGradeRequest) (*models.BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade batch")
	}
	seen := make(map[string]int, len(req.Grades))
	grades := make([]models.Grade, len(req.Grades))
	sessions := map[string]struct{}{}
	for i, item := range req.Grades {
		triple := item.EnrollmentID + "|" + item.SubjectLevelID + "|" + item.SessionID
		if first, ok := seen[triple]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grades %d and %d target the same subject and session", first, i))
		}
		seen[triple] = i
		grades[i] = item.toGrade()
		sessions[item.SessionID] = struct{}{}
	}

	created, updated, err := s.grades.BulkUpsert(ctx, grades)
	if err != nil {
		return nil, writeError(err, "grade batch conflicts with existing data", "referenced record not found", "failed to save grades")
	}
	for sessionID := range sessions {
		s.invalidate(ctx, sessionID)
	}
	s.logger.Info("grades upserted", zap.Int("created", created), zap.Int("updated", updated))
	return &models.BulkGradeResult{Created: created, Updated: updated, Grades: grades}, nil
}

func (s *GradeService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeDetail, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	grades, err := s.grades.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to list grades")
	}
	return grades, nil
}

// Sheet lists every active student of the class with their grade, if any, in
// the subject for the session.
func (s *GradeService) Sheet(ctx context.Context, classID, subjectID, sessionID string) (*models.GradeSheet, error) {
	var class *models.ClassDetail
	var session *models.SessionDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		class, err = s.classes.FindDetail(gctx, classID)
		return lookupError(err, "class not found", "failed to load class")
	})
	g.Go(func() error {
		var err error
		session, err = s.sessions.FindDetail(gctx, sessionID)
		return lookupError(err, "session not found", "failed to load session")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	config, err := s.subjects.FindBySubjectAndLevel(ctx, subjectID, class.LevelID)
	if err != nil {
		return nil, lookupError(err, "subject is not configured for the class level", "failed to load subject level")
	}
	enrollments, err := s.enrollments.ListActiveDetailsByClass(ctx, class.ID)
	if err != nil {
		return nil, internalError(err, "failed to load enrollments")
	}

	sheet := &models.GradeSheet{Class: *class, SubjectLevel: *config, Session: *session, Rows: make([]models.GradeSheetRow, 0, len(enrollments))}
	if len(enrollments) == 0 {
		return sheet, nil
	}
	ids := make([]string, len(enrollments))
	for i, e := range enrollments {
		ids[i] = e.ID
	}
	grades, err := s.grades.ListForSubjectLevel(ctx, ids, config.ID, session.ID)
	if err != nil {
		return nil, internalError(err, "failed to load grades")
	}
	byEnrollment := make(map[string]models.Grade, len(grades))
	for _, grade := range grades {
		byEnrollment[grade.EnrollmentID] = grade
	}
	for _, e := range enrollments {
		row := models.GradeSheetRow{
			EnrollmentID:       e.ID,
			StudentID:          e.StudentID,
			RegistrationNumber: e.RegistrationNumber,
			LastName:           e.LastName,
			FirstName:          e.FirstName,
		}
		if grade, ok := byEnrollment[e.ID]; ok {
			grade := grade
			row.Grade = &grade
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// Statistics returns class average, min, max and count of a subject; the
// boolean reports a cache hit.
func (s *GradeService) Statistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, bool, error) {
	return s.statistics.SubjectStatistics(ctx, classID, subjectLevelID, sessionID)
}

func (s *GradeService) checkReferences(ctx context.Context, req CreateGradeRequest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.enrollments.FindByID(gctx, req.EnrollmentID)
		return lookupError(err, "enrollment not found", "failed to load enrollment")
	})
	g.Go(func() error {
		_, err := s.subjects.FindByID(gctx, req.SubjectLevelID)
		return lookupError(err, "subject level not found", "failed to load subject level")
	})
	g.Go(func() error {
		_, err := s.sessions.FindDetail(gctx, req.SessionID)
		return lookupError(err, "session not found", "failed to load session")
	})
	return g.Wait()
}

// invalidate drops the statistics of every class for the session and the
// cached report card details, which embed per-subject grades.
func (s *GradeService) invalidate(ctx context.Context, sessionID string) {
	s.cache.Invalidate(ctx, sessionStatisticsPattern(sessionID), reportCardDetailPattern)
}

func (r CreateGradeRequest) toGrade() models.Grade {
	grade := models.Grade{
		EnrollmentID:   r.EnrollmentID,
		SubjectLevelID: r.SubjectLevelID,
		SessionID:      r.SessionID,
		Value:          r.Value,
		Remark:         r.Remark,
	}
	if r.RecordedAt != nil {
		grade.RecordedAt = r.RecordedAt.UTC()
	}
	return grade
}
