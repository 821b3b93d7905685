package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

type classReader interface {
	FindDetail(ctx context.Context, id string) (*models.ClassDetail, error)
}

type sessionReader interface {
	FindDetail(ctx context.Context, id string) (*models.SessionDetail, error)
}

type cohortEnrollmentReader interface {
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type subjectLevelLister interface {
	ListByLevel(ctx context.Context, levelID string) ([]models.SubjectLevelDetail, error)
}

type cohortGradeReader interface {
	ListForEnrollments(ctx context.Context, enrollmentIDs []string, sessionID string) ([]models.Grade, error)
	ClassStatistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, error)
	ClassStatisticsBySubject(ctx context.Context, classID, sessionID string) (map[string]models.GradeStatistics, error)
}

type reportCardStore interface {
	GenerateCohort(ctx context.Context, classID, sessionID string, editionDate time.Time, build repository.CohortBuilder) ([]models.ReportCard, error)
	List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.ReportCard, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error)
	ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error)
	CountByClassSession(ctx context.Context, classID, sessionID string) (int, error)
	Create(ctx context.Context, card *models.ReportCard) error
	Update(ctx context.Context, card *models.ReportCard) error
	Delete(ctx context.Context, id string) error
}

type reportCardRenderer interface {
	ReportCard(doc export.ReportCardDocument) ([]byte, error)
	ReportCards(docs []export.ReportCardDocument) ([]byte, error)
}

// ReportCardRepositories groups the stores read and written by ReportCardService.
type ReportCardRepositories struct {
	Classes       classReader
	Sessions      sessionReader
	Enrollments   cohortEnrollmentReader
	SubjectLevels subjectLevelLister
	Grades        cohortGradeReader
	ReportCards   reportCardStore
}

// GenerateOptions tunes a class generation. Overrides is keyed by enrollment id;
// enrollments without an override keep their stored decision and remark.
type GenerateOptions struct {
	EditionDate *time.Time
	Overrides   map[string]models.ReportCardOverride
	ActorID     string
}

// CreateReportCardRequest is the payload of a manual report card.
type CreateReportCardRequest struct {
	EnrollmentID  string          `json:"enrollment_id" validate:"required"`
	SessionID     string          `json:"session_id" validate:"required"`
	Average       float64         `json:"average" validate:"min=0,max=20"`
	Rank          int             `json:"rank" validate:"required,min=1"`
	GeneralRemark *string         `json:"general_remark"`
	EditionDate   *time.Time      `json:"edition_date"`
	Decision      models.Decision `json:"decision" validate:"omitempty,oneof=PROMOTE REPEAT PENDING"`
}

// UpdateReportCardRequest changes the provided fields only.
type UpdateReportCardRequest struct {
	Average       *float64         `json:"average" validate:"omitempty,min=0,max=20"`
	Rank          *int             `json:"rank" validate:"omitempty,min=1"`
	GeneralRemark *string          `json:"general_remark"`
	EditionDate   *time.Time       `json:"edition_date"`
	Decision      *models.Decision `json:"decision" validate:"omitempty,oneof=PROMOTE REPEAT PENDING"`
}

// ReportCardService aggregates grades into ranked report cards and serves them.
type ReportCardService struct {
	classes     classReader
	sessions    sessionReader
	enrollments cohortEnrollmentReader
	subjects    subjectLevelLister
	grades      cohortGradeReader
	cards       reportCardStore
	pdf         reportCardRenderer
	cache       *CacheService
	metrics     *MetricsService
	audit       AuditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func NewReportCardService(repos ReportCardRepositories, pdf reportCardRenderer, cache *CacheService, metrics *MetricsService, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *ReportCardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCardService{
		classes:     repos.Classes,
		sessions:    repos.Sessions,
		enrollments: repos.Enrollments,
		subjects:    repos.SubjectLevels,
		grades:      repos.Grades,
		cards:       repos.ReportCards,
		pdf:         pdf,
		cache:       cache,
		metrics:     metrics,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Generate computes the weighted average and rank of every active enrollment of
// the class for the session and upserts the whole cohort atomically.
func (s *ReportCardService) Generate(ctx context.Context, classID, sessionID string, opts GenerateOptions) (cards []models.ReportCard, err error) {
	start := time.Now()
	defer func() {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailure
		}
		s.metrics.ObserveReportCardGeneration(outcome, len(cards), time.Since(start))
	}()

	for enrollmentID, override := range opts.Overrides {
		if override.Decision != nil && !override.Decision.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid decision %q for enrollment %s", *override.Decision, enrollmentID))
		}
	}

	class, session, err := s.resolveCohort(ctx, classID, sessionID)
	if err != nil {
		return nil, err
	}

	// Coefficients do not depend on the cohort snapshot and are read before the lock.
	configs, err := s.subjects.ListByLevel(ctx, class.LevelID)
	if err != nil {
		return nil, internalError(err, "failed to load subject configuration")
	}

	build := func(enrollments []models.Enrollment, grades []models.Grade) ([]repository.CohortEntry, error) {
		if len(enrollments) == 0 {
			return nil, appErrors.Clone(appErrors.ErrEmptyCohort, fmt.Sprintf("class %s has no active enrollment", class.Name))
		}
		members := make(map[string]struct{}, len(enrollments))
		for _, e := range enrollments {
			members[e.ID] = struct{}{}
		}
		for enrollmentID := range opts.Overrides {
			if _, ok := members[enrollmentID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not an active member of the class", enrollmentID))
			}
		}
		if len(configs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrNoSubjectsConfigured, fmt.Sprintf("level %s has no subject configured", class.LevelName))
		}
		return cohortEntries(aggregateCohort(enrollments, configs, grades), opts.Overrides), nil
	}

	editionDate := s.now()
	if opts.EditionDate != nil {
		editionDate = opts.EditionDate.UTC()
	}

	saved, err := s.cards.GenerateCohort(ctx, class.ID, session.ID, editionDate, build)
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		s.logger.Error("report card generation rolled back",
			zap.String("class_id", class.ID), zap.String("session_id", session.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, appErrors.ErrPersistenceFailure.Message)
	}

	patterns := []string{statisticsPattern(class.ID, session.ID)}
	for _, card := range saved {
		patterns = append(patterns, reportCardDetailKey(card.ID))
	}
	s.cache.Invalidate(ctx, patterns...)

	s.recordGeneration(ctx, opts.ActorID, class.ID, session.ID, len(saved))
	s.logger.Info("report cards generated",
		zap.String("class_id", class.ID), zap.String("session_id", session.ID),
		zap.Int("count", len(saved)), zap.Duration("duration", time.Since(start)))
	return saved, nil
}

func cohortEntries(results []cohortResult, overrides map[string]models.ReportCardOverride) []repository.CohortEntry {
	entries := make([]repository.CohortEntry, 0, len(results))
	for _, r := range results {
		entry := repository.CohortEntry{EnrollmentID: r.EnrollmentID, Average: r.Average, Rank: r.Rank}
		if override, ok := overrides[r.EnrollmentID]; ok {
			if override.Decision != nil {
				entry.Decision = *override.Decision
				entry.SetDecision = true
			}
			if override.GeneralRemark != nil {
				entry.GeneralRemark = override.GeneralRemark
				entry.SetGeneralRemark = true
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *ReportCardService) recordGeneration(ctx context.Context, actorID, classID, sessionID string, count int) {
	payload, _ := json.Marshal(map[string]interface{}{"class_id": classID, "session_id": sessionID, "count": count})
	entry := &models.AuditLog{
		Action:     models.AuditActionReportCardGenerate,
		Resource:   "report_cards",
		ResourceID: &classID,
		NewValues:  payload,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	recordAudit(ctx, s.audit, s.logger, entry)
}

// resolveCohort loads the class and the session concurrently.
func (s *ReportCardService) resolveCohort(ctx context.Context, classID, sessionID string) (*models.ClassDetail, *models.SessionDetail, error) {
	var class *models.ClassDetail
	var session *models.SessionDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		class, err = s.classes.FindDetail(gctx, classID)
		if err != nil {
			return lookupError(err, "class not found", "failed to load class")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		session, err = s.sessions.FindDetail(gctx, sessionID)
		if err != nil {
			return lookupError(err, "session not found", "failed to load session")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return class, session, nil
}

// SubjectStatistics returns the class average, min and max of a subject for a
// session over active enrollments. The bool reports a cache hit.
func (s *ReportCardService) SubjectStatistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, bool, error) {
	key := statisticsKey(classID, sessionID, subjectLevelID)
	var cached models.GradeStatistics
	if s.cache.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	if _, _, err := s.resolveCohort(ctx, classID, sessionID); err != nil {
		return models.GradeStatistics{}, false, err
	}
	stats, err := s.grades.ClassStatistics(ctx, classID, subjectLevelID, sessionID)
	if err != nil {
		return models.GradeStatistics{}, false, internalError(err, "failed to compute statistics")
	}
	stats = roundStatistics(stats)
	s.cache.Set(ctx, key, stats)
	return stats, false, nil
}

func (s *ReportCardService) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, *models.Pagination, error) {
	if filter.Decision != "" && !filter.Decision.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid decision filter")
	}
	cards, total, err := s.cards.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list report cards")
	}
	return cards, filter.PageRequest.Pagination(total), nil
}

func (s *ReportCardService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error) {
	if _, err := s.enrollments.FindDetail(ctx, enrollmentID); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	cards, err := s.cards.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to list report cards")
	}
	return cards, nil
}

// ListByClassSession returns a cohort's report cards ordered by rank.
func (s *ReportCardService) ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error) {
	if _, _, err := s.resolveCohort(ctx, classID, sessionID); err != nil {
		return nil, err
	}
	cards, err := s.cards.ListByClassSession(ctx, classID, sessionID)
	if err != nil {
		return nil, internalError(err, "failed to list report cards")
	}
	return cards, nil
}

// Detail returns a report card with its student, session and subject lines.
// The bool reports a cache hit.
func (s *ReportCardService) Detail(ctx context.Context, id string) (*models.ReportCardDetail, bool, error) {
	key := reportCardDetailKey(id)
	var cached models.ReportCardDetail
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	card, err := s.cards.FindByID(ctx, id)
	if err != nil {
		return nil, false, lookupError(err, "report card not found", "failed to load report card")
	}

	var enrollment *models.EnrollmentDetail
	var session *models.SessionDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		enrollment, err = s.enrollments.FindDetail(gctx, card.EnrollmentID)
		return err
	})
	g.Go(func() error {
		var err error
		session, err = s.sessions.FindDetail(gctx, card.SessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, lookupError(err, "report card context not found", "failed to load report card context")
	}

	var configs []models.SubjectLevelDetail
	var grades []models.Grade
	var stats map[string]models.GradeStatistics
	var cohortSize int
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		configs, err = s.subjects.ListByLevel(gctx, enrollment.LevelID)
		return err
	})
	g.Go(func() error {
		var err error
		grades, err = s.grades.ListForEnrollments(gctx, []string{card.EnrollmentID}, card.SessionID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.grades.ClassStatisticsBySubject(gctx, enrollment.ClassID, card.SessionID)
		return err
	})
	g.Go(func() error {
		var err error
		cohortSize, err = s.cards.CountByClassSession(gctx, enrollment.ClassID, card.SessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, internalError(err, "failed to load report card detail")
	}

	detail := &models.ReportCardDetail{
		ReportCard: *card,
		Enrollment: *enrollment,
		Session:    *session,
		CohortSize: cohortSize,
		Subjects:   subjectResults(configs, grades, stats),
	}
	s.cache.Set(ctx, key, detail)
	return detail, false, nil
}

// subjectResults builds one line per configured subject, in configuration order.
func subjectResults(configs []models.SubjectLevelDetail, grades []models.Grade, stats map[string]models.GradeStatistics) []models.SubjectResult {
	bySubject := make(map[string]models.Grade, len(grades))
	for _, g := range grades {
		bySubject[g.SubjectLevelID] = g
	}
	results := make([]models.SubjectResult, 0, len(configs))
	for _, c := range configs {
		line := models.SubjectResult{
			SubjectLevelID: c.ID,
			SubjectID:      c.SubjectID,
			SubjectName:    c.SubjectName,
			Coefficient:    c.Coefficient,
			Statistics:     roundStatistics(stats[c.ID]),
		}
		if g, ok := bySubject[c.ID]; ok {
			value := g.Value
			line.Grade = &value
			line.Remark = g.Remark
		}
		results = append(results, line)
	}
	return results
}

func (s *ReportCardService) Create(ctx context.Context, req CreateReportCardRequest) (*models.ReportCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid report card payload")
	}
	if _, err := s.enrollments.FindDetail(ctx, req.EnrollmentID); err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if _, err := s.sessions.FindDetail(ctx, req.SessionID); err != nil {
		return nil, lookupError(err, "session not found", "failed to load session")
	}

	card := &models.ReportCard{
		EnrollmentID:  req.EnrollmentID,
		SessionID:     req.SessionID,
		Average:       roundHalfUp(req.Average),
		Rank:          req.Rank,
		GeneralRemark: req.GeneralRemark,
		EditionDate:   s.now(),
		Decision:      req.Decision,
	}
	if req.EditionDate != nil {
		card.EditionDate = req.EditionDate.UTC()
	}
	if card.Decision == "" {
		card.Decision = models.DecisionPending
	}
	if err := s.cards.Create(ctx, card); err != nil {
		return nil, writeError(err, "a report card already exists for this enrollment and session", "report card not found", "failed to create report card")
	}
	return card, nil
}

func (s *ReportCardService) Update(ctx context.Context, id string, req UpdateReportCardRequest) (*models.ReportCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid report card payload")
	}
	card, err := s.cards.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "report card not found", "failed to load report card")
	}
	if req.Average != nil {
		card.Average = roundHalfUp(*req.Average)
	}
	if req.Rank != nil {
		card.Rank = *req.Rank
	}
	if req.GeneralRemark != nil {
		remark := strings.TrimSpace(*req.GeneralRemark)
		card.GeneralRemark = &remark
	}
	if req.EditionDate != nil {
		card.EditionDate = req.EditionDate.UTC()
	}
	if req.Decision != nil {
		card.Decision = *req.Decision
	}
	if err := s.cards.Update(ctx, card); err != nil {
		return nil, lookupError(err, "report card not found", "failed to update report card")
	}
	s.cache.Invalidate(ctx, reportCardDetailKey(id))
	return card, nil
}

func (s *ReportCardService) Delete(ctx context.Context, id string) error {
	if err := s.cards.Delete(ctx, id); err != nil {
		return lookupError(err, "report card not found", "failed to delete report card")
	}
	s.cache.Invalidate(ctx, reportCardDetailKey(id))
	return nil
}

// PDF renders one report card and returns the file name to serve it under.
func (s *ReportCardService) PDF(ctx context.Context, id string) ([]byte, string, error) {
	detail, _, err := s.Detail(ctx, id)
	if err != nil {
		return nil, "", err
	}
	doc := reportCardDocument(detail.ReportCard, detail.Enrollment, detail.Session, detail.Subjects, detail.CohortSize)
	data, err := s.pdf.ReportCard(doc)
	if err != nil {
		return nil, "", internalError(err, "failed to render report card")
	}
	filename := fmt.Sprintf("report-card-%s-%s.pdf", detail.Enrollment.RegistrationNumber, slug(detail.Session.Label))
	return data, filename, nil
}

// ClassPDF renders every report card of a cohort, in rank order, into one file.
func (s *ReportCardService) ClassPDF(ctx context.Context, classID, sessionID string) ([]byte, string, error) {
	docs, err := s.ClassDocuments(ctx, classID, sessionID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.pdf.ReportCards(docs)
	if err != nil {
		return nil, "", internalError(err, "failed to render class report cards")
	}
	filename := fmt.Sprintf("report-cards-%s-%s.pdf", slug(docs[0].ClassName), slug(docs[0].SessionLabel))
	return data, filename, nil
}

// ClassDocuments loads the printable report cards of a cohort in rank order.
// It fails with NOT_FOUND when the cohort has no report card yet.
func (s *ReportCardService) ClassDocuments(ctx context.Context, classID, sessionID string) ([]export.ReportCardDocument, error) {
	class, session, err := s.resolveCohort(ctx, classID, sessionID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.cards.ListByClassSession(ctx, classID, sessionID)
	if err != nil {
		return nil, internalError(err, "failed to list report cards")
	}
	if len(summaries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no report card generated for this class and session")
	}
	enrollmentIDs := make([]string, len(summaries))
	for i, summary := range summaries {
		enrollmentIDs[i] = summary.EnrollmentID
	}

	var configs []models.SubjectLevelDetail
	var grades []models.Grade
	var stats map[string]models.GradeStatistics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		configs, err = s.subjects.ListByLevel(gctx, class.LevelID)
		return err
	})
	g.Go(func() error {
		var err error
		grades, err = s.grades.ListForEnrollments(gctx, enrollmentIDs, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.grades.ClassStatisticsBySubject(gctx, classID, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, internalError(err, "failed to load class report cards")
	}

	byEnrollment := make(map[string][]models.Grade, len(summaries))
	for _, grade := range grades {
		byEnrollment[grade.EnrollmentID] = append(byEnrollment[grade.EnrollmentID], grade)
	}
	docs := make([]export.ReportCardDocument, 0, len(summaries))
	for _, summary := range summaries {
		enrollment := models.EnrollmentDetail{
			Enrollment:         models.Enrollment{ID: summary.EnrollmentID, StudentID: summary.StudentID, ClassID: summary.ClassID},
			RegistrationNumber: summary.RegistrationNumber,
			LastName:           summary.LastName,
			FirstName:          summary.FirstName,
			ClassName:          summary.ClassName,
			LevelID:            class.LevelID,
			LevelName:          class.LevelName,
		}
		lines := subjectResults(configs, byEnrollment[summary.EnrollmentID], stats)
		docs = append(docs, reportCardDocument(summary.ReportCard, enrollment, *session, lines, len(summaries)))
	}
	return docs, nil
}

func reportCardDocument(card models.ReportCard, enrollment models.EnrollmentDetail, session models.SessionDetail, subjects []models.SubjectResult, cohortSize int) export.ReportCardDocument {
	lines := make([]export.ReportCardLine, 0, len(subjects))
	for _, subject := range subjects {
		lines = append(lines, export.ReportCardLine{
			Subject:      subject.SubjectName,
			Coefficient:  subject.Coefficient,
			Grade:        subject.Grade,
			ClassAverage: subject.Statistics.ClassAverage,
			Min:          subject.Statistics.Min,
			Max:          subject.Statistics.Max,
		})
	}
	doc := export.ReportCardDocument{
		StudentName:        enrollment.StudentName(),
		RegistrationNumber: enrollment.RegistrationNumber,
		ClassName:          enrollment.ClassName,
		LevelName:          enrollment.LevelName,
		SessionLabel:       session.Label,
		AcademicYear:       session.AcademicYearLabel,
		Lines:              lines,
		Average:            card.Average,
		Rank:               card.Rank,
		CohortSize:         cohortSize,
		Decision:           string(card.Decision),
		EditionDate:        card.EditionDate,
	}
	if card.GeneralRemark != nil {
		doc.Remark = *card.GeneralRemark
	}
	return doc
}

// slug turns a label into a file-name friendly token.
func slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
