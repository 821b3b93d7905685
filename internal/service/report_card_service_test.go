package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

type fakeClasses map[string]*models.ClassDetail

func (f fakeClasses) FindDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := f[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type fakeSessions map[string]*models.SessionDetail

func (f fakeSessions) FindDetail(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type fakeEnrollments struct {
	details []models.EnrollmentDetail
}

func (f *fakeEnrollments) FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	for i := range f.details {
		if f.details[i].ID == id {
			d := f.details[i]
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	d, err := f.FindDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &d.Enrollment, nil
}

func (f *fakeEnrollments) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, d := range f.details {
		if d.ClassID == classID && d.IsActive() {
			out = append(out, d.Enrollment)
		}
	}
	return out, nil
}

func (f *fakeEnrollments) ListActiveDetailsByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, d := range f.details {
		if d.ClassID == classID && d.IsActive() {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeSubjectLevels struct {
	configs []models.SubjectLevelDetail
}

func (f *fakeSubjectLevels) ListByLevel(ctx context.Context, levelID string) ([]models.SubjectLevelDetail, error) {
	var out []models.SubjectLevelDetail
	for _, c := range f.configs {
		if c.LevelID == levelID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeGrades is an in-memory grade table shared by the grade and report card fixtures.
type fakeGrades struct {
	mu          sync.Mutex
	grades      []models.Grade
	enrollments *fakeEnrollments
	batchLoads  int
}

func (f *fakeGrades) ListForEnrollments(ctx context.Context, ids []string, sessionID string) ([]models.Grade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchLoads++
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Grade
	for _, g := range f.grades {
		if wanted[g.EnrollmentID] && g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrades) activeValues(classID, subjectLevelID, sessionID string) []float64 {
	active := map[string]bool{}
	for _, d := range f.enrollments.details {
		if d.ClassID == classID && d.IsActive() {
			active[d.ID] = true
		}
	}
	var values []float64
	for _, g := range f.grades {
		if active[g.EnrollmentID] && g.SessionID == sessionID && (subjectLevelID == "" || g.SubjectLevelID == subjectLevelID) {
			values = append(values, g.Value)
		}
	}
	return values
}

func statsOf(values []float64) models.GradeStatistics {
	if len(values) == 0 {
		return models.GradeStatistics{}
	}
	stats := models.GradeStatistics{Min: values[0], Max: values[0], Count: len(values)}
	var sum float64
	for _, v := range values {
		sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.ClassAverage = sum / float64(len(values))
	return stats
}

func (f *fakeGrades) ClassStatistics(ctx context.Context, classID, subjectLevelID, sessionID string) (models.GradeStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return statsOf(f.activeValues(classID, subjectLevelID, sessionID)), nil
}

func (f *fakeGrades) ClassStatisticsBySubject(ctx context.Context, classID, sessionID string) (map[string]models.GradeStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subjects := map[string]bool{}
	for _, g := range f.grades {
		subjects[g.SubjectLevelID] = true
	}
	out := map[string]models.GradeStatistics{}
	for id := range subjects {
		if values := f.activeValues(classID, id, sessionID); len(values) > 0 {
			out[id] = statsOf(values)
		}
	}
	return out, nil
}

// fakeReportCards mimics the report_cards table. GenerateCohort reads the
// active cohort and its grades the way the locked transaction does.
type fakeReportCards struct {
	rows        map[string]*models.ReportCard
	enrollments *fakeEnrollments
	grades      *fakeGrades
	saveErr     error
	saveCalls   int
}

func newFakeReportCards(enrollments *fakeEnrollments, grades *fakeGrades) *fakeReportCards {
	return &fakeReportCards{rows: map[string]*models.ReportCard{}, enrollments: enrollments, grades: grades}
}

func (f *fakeReportCards) GenerateCohort(ctx context.Context, classID, sessionID string, editionDate time.Time, build repository.CohortBuilder) ([]models.ReportCard, error) {
	enrollments, err := f.enrollments.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	var grades []models.Grade
	if len(enrollments) > 0 {
		ids := make([]string, len(enrollments))
		for i, e := range enrollments {
			ids[i] = e.ID
		}
		if grades, err = f.grades.ListForEnrollments(ctx, ids, sessionID); err != nil {
			return nil, err
		}
	}
	entries, err := build(enrollments, grades)
	if err != nil {
		return nil, err
	}

	f.saveCalls++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	out := make([]models.ReportCard, 0, len(entries))
	for _, e := range entries {
		existing := f.find(e.EnrollmentID, sessionID)
		if existing == nil {
			existing = &models.ReportCard{ID: uuid.NewString(), EnrollmentID: e.EnrollmentID, SessionID: sessionID, Decision: models.DecisionPending}
			f.rows[existing.ID] = existing
		}
		existing.Average = e.Average
		existing.Rank = e.Rank
		existing.EditionDate = editionDate
		if e.SetDecision {
			existing.Decision = e.Decision
		}
		if e.SetGeneralRemark {
			existing.GeneralRemark = e.GeneralRemark
		}
		out = append(out, *existing)
	}
	return out, nil
}

func (f *fakeReportCards) find(enrollmentID, sessionID string) *models.ReportCard {
	for _, r := range f.rows {
		if r.EnrollmentID == enrollmentID && r.SessionID == sessionID {
			return r
		}
	}
	return nil
}

func (f *fakeReportCards) summary(card models.ReportCard) models.ReportCardSummary {
	d, _ := f.enrollments.FindDetail(context.Background(), card.EnrollmentID)
	return models.ReportCardSummary{
		ReportCard:         card,
		StudentID:          d.StudentID,
		RegistrationNumber: d.RegistrationNumber,
		LastName:           d.LastName,
		FirstName:          d.FirstName,
		ClassID:            d.ClassID,
		ClassName:          d.ClassName,
	}
}

func (f *fakeReportCards) cohort(classID, sessionID string) []models.ReportCardSummary {
	var out []models.ReportCardSummary
	for _, r := range f.rows {
		d, err := f.enrollments.FindDetail(context.Background(), r.EnrollmentID)
		if err != nil || !d.IsActive() {
			continue
		}
		s := f.summary(*r)
		if s.ClassID == classID && r.SessionID == sessionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func (f *fakeReportCards) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardSummary, int, error) {
	var out []models.ReportCardSummary
	for _, r := range f.rows {
		out = append(out, f.summary(*r))
	}
	return out, len(out), nil
}

func (f *fakeReportCards) FindByID(ctx context.Context, id string) (*models.ReportCard, error) {
	if r, ok := f.rows[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeReportCards) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.ReportCardSummary, error) {
	var out []models.ReportCardSummary
	for _, r := range f.rows {
		if r.EnrollmentID == enrollmentID {
			out = append(out, f.summary(*r))
		}
	}
	return out, nil
}

func (f *fakeReportCards) ListByClassSession(ctx context.Context, classID, sessionID string) ([]models.ReportCardSummary, error) {
	return f.cohort(classID, sessionID), nil
}

func (f *fakeReportCards) CountByClassSession(ctx context.Context, classID, sessionID string) (int, error) {
	return len(f.cohort(classID, sessionID)), nil
}

func (f *fakeReportCards) Create(ctx context.Context, card *models.ReportCard) error {
	if f.find(card.EnrollmentID, card.SessionID) != nil {
		return fmt.Errorf("create report card: %w", &pq.Error{Code: "23505"})
	}
	card.ID = uuid.NewString()
	c := *card
	f.rows[card.ID] = &c
	return nil
}

func (f *fakeReportCards) Update(ctx context.Context, card *models.ReportCard) error {
	if _, ok := f.rows[card.ID]; !ok {
		return sql.ErrNoRows
	}
	c := *card
	f.rows[card.ID] = &c
	return nil
}

func (f *fakeReportCards) Delete(ctx context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

// memoryCache is a CacheRepository over a map; patterns use path.Match globbing.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

type stubRenderer struct {
	docs []export.ReportCardDocument
}

func (s *stubRenderer) ReportCard(doc export.ReportCardDocument) ([]byte, error) {
	s.docs = []export.ReportCardDocument{doc}
	return []byte("%PDF-single"), nil
}

func (s *stubRenderer) ReportCards(docs []export.ReportCardDocument) ([]byte, error) {
	s.docs = docs
	return []byte("%PDF-class"), nil
}

type reportCardFixture struct {
	svc         *ReportCardService
	enrollments *fakeEnrollments
	subjects    *fakeSubjectLevels
	grades      *fakeGrades
	cards       *fakeReportCards
	cache       *memoryCache
	audit       *fakeAudit
	renderer    *stubRenderer
	metrics     *MetricsService
}

// newReportCardFixture builds class-1 (level L1) with students A, B and C enrolled
// in that order, math (coefficient 3) and french (coefficient 1) configured, and
// A = {10, 14}, B = {18, 20}, C without grades in session s1.
func newReportCardFixture(t *testing.T) *reportCardFixture {
	t.Helper()
	base := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	enrollment := func(id, last string, offset int) models.EnrollmentDetail {
		return models.EnrollmentDetail{
			Enrollment: models.Enrollment{
				ID: id, StudentID: "stu-" + id, ClassID: "class-1", AcademicYearID: "ay-1",
				EnrolledAt: base.Add(time.Duration(offset) * time.Hour), Status: models.EnrollmentStatusActive,
			},
			RegistrationNumber: "REG-" + id,
			LastName:           last,
			FirstName:          "Student",
			ClassName:          "6e A",
			LevelID:            "L1",
			LevelName:          "Sixth",
		}
	}
	enrollments := &fakeEnrollments{details: []models.EnrollmentDetail{
		enrollment("A", "Alpha", 0),
		enrollment("B", "Bravo", 1),
		enrollment("C", "Charlie", 2),
	}}
	subjects := &fakeSubjectLevels{configs: []models.SubjectLevelDetail{
		{SubjectLevelConfig: models.SubjectLevelConfig{ID: "math", SubjectID: "sub-math", LevelID: "L1", Coefficient: 3}, SubjectName: "Mathematics"},
		{SubjectLevelConfig: models.SubjectLevelConfig{ID: "french", SubjectID: "sub-fr", LevelID: "L1", Coefficient: 1}, SubjectName: "French"},
	}}
	grades := &fakeGrades{enrollments: enrollments, grades: []models.Grade{
		{ID: "g1", EnrollmentID: "A", SubjectLevelID: "math", SessionID: "s1", Value: 10},
		{ID: "g2", EnrollmentID: "A", SubjectLevelID: "french", SessionID: "s1", Value: 14},
		{ID: "g3", EnrollmentID: "B", SubjectLevelID: "math", SessionID: "s1", Value: 18},
		{ID: "g4", EnrollmentID: "B", SubjectLevelID: "french", SessionID: "s1", Value: 20},
	}}
	cards := newFakeReportCards(enrollments, grades)
	cache := newMemoryCache()
	audit := &fakeAudit{}
	renderer := &stubRenderer{}
	metrics := NewMetricsService()

	classes := fakeClasses{"class-1": {Class: models.Class{ID: "class-1", LevelID: "L1", Name: "6e A"}, LevelName: "Sixth"}}
	sessions := fakeSessions{"s1": {Session: models.Session{ID: "s1", AcademicYearID: "ay-1", Label: "Term 1"}, AcademicYearLabel: "2024-2025"}}

	svc := NewReportCardService(ReportCardRepositories{
		Classes:       classes,
		Sessions:      sessions,
		Enrollments:   enrollments,
		SubjectLevels: subjects,
		Grades:        grades,
		ReportCards:   cards,
	}, renderer, NewCacheService(cache, metrics, time.Minute, zap.NewNop(), true), metrics, audit, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC) }

	return &reportCardFixture{svc: svc, enrollments: enrollments, subjects: subjects, grades: grades, cards: cards, cache: cache, audit: audit, renderer: renderer, metrics: metrics}
}

func byEnrollment(cards []models.ReportCard) map[string]models.ReportCard {
	out := make(map[string]models.ReportCard, len(cards))
	for _, c := range cards {
		out[c.EnrollmentID] = c
	}
	return out
}

func TestReportCardServiceGenerateScenario(t *testing.T) {
	f := newReportCardFixture(t)

	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{ActorID: "admin"})
	require.NoError(t, err)
	require.Len(t, cards, 3)

	got := byEnrollment(cards)
	assert.Equal(t, 11.0, got["A"].Average)
	assert.Equal(t, 18.5, got["B"].Average)
	assert.Equal(t, 0.0, got["C"].Average)
	assert.Equal(t, 2, got["A"].Rank)
	assert.Equal(t, 1, got["B"].Rank)
	assert.Equal(t, 3, got["C"].Rank)
	for _, c := range cards {
		assert.Equal(t, models.DecisionPending, c.Decision)
		assert.Equal(t, f.svc.now(), c.EditionDate)
	}

	assert.Equal(t, 1, f.grades.batchLoads)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionReportCardGenerate, f.audit.entries[0].Action)
}

func TestReportCardServiceGenerateRoundsHalfUp(t *testing.T) {
	f := newReportCardFixture(t)
	f.subjects.configs[0].Coefficient = 2
	f.grades.grades = []models.Grade{
		{EnrollmentID: "A", SubjectLevelID: "math", SessionID: "s1", Value: 15},
		{EnrollmentID: "A", SubjectLevelID: "french", SessionID: "s1", Value: 17},
	}

	// (15*2 + 17*1) / 3 = 15.666...
	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 15.67, byEnrollment(cards)["A"].Average)
}

func TestReportCardServiceGenerateEmptyCohortWritesNothing(t *testing.T) {
	f := newReportCardFixture(t)
	for i := range f.enrollments.details {
		f.enrollments.details[i].Status = models.EnrollmentStatusWithdrawn
	}

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrEmptyCohort))
	assert.Equal(t, 0, f.cards.saveCalls)
	assert.Empty(t, f.cards.rows)
}

func TestReportCardServiceGenerateExcludesInactiveEnrollments(t *testing.T) {
	f := newReportCardFixture(t)
	f.enrollments.details[1].Status = models.EnrollmentStatusTransferred

	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	got := byEnrollment(cards)
	assert.Equal(t, 1, got["A"].Rank)
	assert.Equal(t, 2, got["C"].Rank)
}

func TestReportCardServiceGenerateNoSubjects(t *testing.T) {
	f := newReportCardFixture(t)
	f.subjects.configs = nil

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNoSubjectsConfigured))
	assert.Equal(t, 0, f.cards.saveCalls)
}

func TestReportCardServiceGenerateNotFound(t *testing.T) {
	f := newReportCardFixture(t)

	_, err := f.svc.Generate(context.Background(), "missing", "s1", GenerateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Generate(context.Background(), "class-1", "missing", GenerateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReportCardServiceGeneratePersistenceFailure(t *testing.T) {
	f := newReportCardFixture(t)
	cause := errors.New("deadlock detected")
	f.cards.saveErr = cause

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPersistenceFailure))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, f.audit.entries)
}

func TestReportCardServiceGenerateIsIdempotent(t *testing.T) {
	f := newReportCardFixture(t)

	first, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	second, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.cards.rows, 3)
}

func TestReportCardServiceRegenerationPreservesDecisions(t *testing.T) {
	f := newReportCardFixture(t)
	promote := models.DecisionPromote
	remark := "Excellent term"

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{
		Overrides: map[string]models.ReportCardOverride{"B": {Decision: &promote, GeneralRemark: &remark}},
	})
	require.NoError(t, err)

	// grade correction for C, then a plain regeneration
	f.grades.grades = append(f.grades.grades, models.Grade{EnrollmentID: "C", SubjectLevelID: "math", SessionID: "s1", Value: 19})
	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)

	got := byEnrollment(cards)
	assert.Equal(t, models.DecisionPromote, got["B"].Decision)
	require.NotNil(t, got["B"].GeneralRemark)
	assert.Equal(t, remark, *got["B"].GeneralRemark)
	assert.Equal(t, models.DecisionPending, got["A"].Decision)
	assert.Equal(t, 19.0, got["C"].Average)
	assert.Equal(t, 1, got["C"].Rank)
	assert.Equal(t, 2, got["B"].Rank)
}

func TestReportCardServiceGenerateRejectsBadOverrides(t *testing.T) {
	f := newReportCardFixture(t)
	bogus := models.Decision("EXPEL")

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{
		Overrides: map[string]models.ReportCardOverride{"A": {Decision: &bogus}},
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	promote := models.DecisionPromote
	_, err = f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{
		Overrides: map[string]models.ReportCardOverride{"stranger": {Decision: &promote}},
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, f.cards.saveCalls)
}

func TestReportCardServiceGenerateInvalidatesCohortCache(t *testing.T) {
	f := newReportCardFixture(t)
	ctx := context.Background()

	stats, hit, err := f.svc.SubjectStatistics(ctx, "class-1", "math", "s1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 14.0, stats.ClassAverage)

	_, hit, err = f.svc.SubjectStatistics(ctx, "class-1", "math", "s1")
	require.NoError(t, err)
	assert.True(t, hit)

	_, err = f.svc.Generate(ctx, "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	_, hit, err = f.svc.SubjectStatistics(ctx, "class-1", "math", "s1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestReportCardServiceSubjectStatistics(t *testing.T) {
	f := newReportCardFixture(t)
	f.grades.grades = append(f.grades.grades, models.Grade{EnrollmentID: "C", SubjectLevelID: "french", SessionID: "s1", Value: 13})

	stats, _, err := f.svc.SubjectStatistics(context.Background(), "class-1", "french", "s1")
	require.NoError(t, err)
	assert.Equal(t, 15.67, stats.ClassAverage)
	assert.Equal(t, 13.0, stats.Min)
	assert.Equal(t, 20.0, stats.Max)

	empty, _, err := f.svc.SubjectStatistics(context.Background(), "class-1", "history", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatistics{}, empty)
}

func TestReportCardServiceDetail(t *testing.T) {
	f := newReportCardFixture(t)
	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	cardA := byEnrollment(cards)["A"]

	detail, hit, err := f.svc.Detail(context.Background(), cardA.ID)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, detail.CohortSize)
	assert.Equal(t, "Term 1", detail.Session.Label)
	require.Len(t, detail.Subjects, 2)
	assert.Equal(t, "Mathematics", detail.Subjects[0].SubjectName)
	require.NotNil(t, detail.Subjects[0].Grade)
	assert.Equal(t, 10.0, *detail.Subjects[0].Grade)
	assert.Equal(t, 14.0, detail.Subjects[0].Statistics.ClassAverage)

	_, hit, err = f.svc.Detail(context.Background(), cardA.ID)
	require.NoError(t, err)
	assert.True(t, hit)

	_, _, err = f.svc.Detail(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReportCardServicePDFs(t *testing.T) {
	f := newReportCardFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.ClassPDF(ctx, "class-1", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	cards, err := f.svc.Generate(ctx, "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)

	data, filename, err := f.svc.ClassPDF(ctx, "class-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-class", string(data))
	assert.Equal(t, "report-cards-6e-a-term-1.pdf", filename)
	require.Len(t, f.renderer.docs, 3)
	assert.Equal(t, "REG-B", f.renderer.docs[0].RegistrationNumber)
	assert.Equal(t, 1, f.renderer.docs[0].Rank)
	assert.Nil(t, f.renderer.docs[2].Lines[0].Grade)

	_, filename, err = f.svc.PDF(ctx, byEnrollment(cards)["A"].ID)
	require.NoError(t, err)
	assert.Equal(t, "report-card-REG-A-term-1.pdf", filename)
	assert.Equal(t, "Student Alpha", f.renderer.docs[0].StudentName)
	assert.Equal(t, 3, f.renderer.docs[0].CohortSize)
}

func TestReportCardServiceManualCRUD(t *testing.T) {
	f := newReportCardFixture(t)
	ctx := context.Background()

	card, err := f.svc.Create(ctx, CreateReportCardRequest{EnrollmentID: "A", SessionID: "s1", Average: 12.345, Rank: 2})
	require.NoError(t, err)
	assert.Equal(t, 12.35, card.Average)
	assert.Equal(t, models.DecisionPending, card.Decision)

	_, err = f.svc.Create(ctx, CreateReportCardRequest{EnrollmentID: "A", SessionID: "s1", Average: 10, Rank: 1})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Create(ctx, CreateReportCardRequest{EnrollmentID: "A", SessionID: "s1", Average: 25, Rank: 1})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	repeat := models.DecisionRepeat
	updated, err := f.svc.Update(ctx, card.ID, UpdateReportCardRequest{Decision: &repeat})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRepeat, updated.Decision)
	assert.Equal(t, 12.35, updated.Average)

	require.NoError(t, f.svc.Delete(ctx, card.ID))
	assert.True(t, appErrors.Is(f.svc.Delete(ctx, card.ID), appErrors.ErrNotFound))
}

// lockedSnapshotStore applies a concurrent change right before the cohort is locked and read.
type lockedSnapshotStore struct {
	*fakeReportCards
	beforeLock func()
}

func (s *lockedSnapshotStore) GenerateCohort(ctx context.Context, classID, sessionID string, editionDate time.Time, build repository.CohortBuilder) ([]models.ReportCard, error) {
	if s.beforeLock != nil {
		s.beforeLock()
	}
	return s.fakeReportCards.GenerateCohort(ctx, classID, sessionID, editionDate, build)
}

func TestReportCardServiceGenerateRanksFromLockedSnapshot(t *testing.T) {
	f := newReportCardFixture(t)
	store := &lockedSnapshotStore{fakeReportCards: f.cards, beforeLock: func() {
		// grade correction committed while the class and configuration were being resolved
		f.grades.grades = append(f.grades.grades, models.Grade{EnrollmentID: "C", SubjectLevelID: "math", SessionID: "s1", Value: 20})
	}}
	f.svc.cards = store

	cards, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)

	got := byEnrollment(cards)
	assert.Equal(t, 20.0, got["C"].Average)
	assert.Equal(t, 1, got["C"].Rank)
	assert.Equal(t, 2, got["B"].Rank)
	assert.Equal(t, 3, got["A"].Rank)
}

func TestReportCardServiceGenerateSnapshotWithdrawalEmptiesCohort(t *testing.T) {
	f := newReportCardFixture(t)
	f.svc.cards = &lockedSnapshotStore{fakeReportCards: f.cards, beforeLock: func() {
		for i := range f.enrollments.details {
			f.enrollments.details[i].Status = models.EnrollmentStatusWithdrawn
		}
	}}

	_, err := f.svc.Generate(context.Background(), "class-1", "s1", GenerateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrEmptyCohort))
	assert.Equal(t, 0, f.cards.saveCalls)
}

func TestReportCardServiceWithdrawnEnrollmentLeavesCohort(t *testing.T) {
	f := newReportCardFixture(t)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, byEnrollment(first)["B"].Rank)

	f.enrollments.details[1].Status = models.EnrollmentStatusWithdrawn
	second, err := f.svc.Generate(ctx, "class-1", "s1", GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, second, 2)

	summaries, err := f.svc.ListByClassSession(ctx, "class-1", "s1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "A", summaries[0].EnrollmentID)
	assert.Equal(t, 1, summaries[0].Rank)
	assert.Equal(t, 2, summaries[1].Rank)

	detail, _, err := f.svc.Detail(ctx, byEnrollment(second)["A"].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.CohortSize)

	_, _, err = f.svc.ClassPDF(ctx, "class-1", "s1")
	require.NoError(t, err)
	require.Len(t, f.renderer.docs, 2)
	assert.Equal(t, 2, f.renderer.docs[0].CohortSize)
}
