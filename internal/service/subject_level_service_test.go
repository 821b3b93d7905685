package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type fakeSubjectLevelRepo struct {
	configs map[string]*models.SubjectLevelDetail
	graded  map[string]bool
}

func (f *fakeSubjectLevelRepo) List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error) {
	var out []models.SubjectLevelDetail
	for _, c := range f.configs {
		if filter.LevelID == "" || c.LevelID == filter.LevelID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeSubjectLevelRepo) FindByID(ctx context.Context, id string) (*models.SubjectLevelDetail, error) {
	if c, ok := f.configs[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubjectLevelRepo) Create(ctx context.Context, config *models.SubjectLevelConfig) error {
	for _, c := range f.configs {
		if c.SubjectID == config.SubjectID && c.LevelID == config.LevelID {
			return fmt.Errorf("create subject level: %w", &pq.Error{Code: "23505"})
		}
	}
	config.ID = fmt.Sprintf("sl-%d", len(f.configs)+1)
	f.configs[config.ID] = &models.SubjectLevelDetail{SubjectLevelConfig: *config}
	return nil
}

func (f *fakeSubjectLevelRepo) UpdateCoefficient(ctx context.Context, id string, coefficient int) error {
	c, ok := f.configs[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Coefficient = coefficient
	return nil
}

func (f *fakeSubjectLevelRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.configs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.configs, id)
	return nil
}

func (f *fakeSubjectLevelRepo) HasGrades(ctx context.Context, id string) (bool, error) {
	return f.graded[id], nil
}

type fakeCatalog struct{}

func (fakeCatalog) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if id == "math" {
		return &models.Subject{ID: "math", Code: "MATH", Name: "Mathematics"}, nil
	}
	return nil, sql.ErrNoRows
}

func (fakeCatalog) LevelExists(ctx context.Context, id string) (bool, error) {
	return id == "L1", nil
}

func TestSubjectLevelServiceCreate(t *testing.T) {
	repo := &fakeSubjectLevelRepo{configs: map[string]*models.SubjectLevelDetail{}}
	svc := NewSubjectLevelService(repo, fakeCatalog{}, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateSubjectLevelRequest{SubjectID: "math", LevelID: "L1", Coefficient: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, created.Coefficient)

	_, err = svc.Create(ctx, CreateSubjectLevelRequest{SubjectID: "math", LevelID: "L1", Coefficient: 2})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(ctx, CreateSubjectLevelRequest{SubjectID: "math", LevelID: "L1", Coefficient: 0})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, CreateSubjectLevelRequest{SubjectID: "art", LevelID: "L1", Coefficient: 1})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Create(ctx, CreateSubjectLevelRequest{SubjectID: "math", LevelID: "L9", Coefficient: 1})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSubjectLevelServiceUpdateAndDelete(t *testing.T) {
	repo := &fakeSubjectLevelRepo{
		configs: map[string]*models.SubjectLevelDetail{
			"sl-1": {SubjectLevelConfig: models.SubjectLevelConfig{ID: "sl-1", SubjectID: "math", LevelID: "L1", Coefficient: 2}},
			"sl-2": {SubjectLevelConfig: models.SubjectLevelConfig{ID: "sl-2", SubjectID: "fr", LevelID: "L1", Coefficient: 1}},
		},
		graded: map[string]bool{"sl-2": true},
	}
	svc := NewSubjectLevelService(repo, fakeCatalog{}, nil, nil)
	ctx := context.Background()

	updated, err := svc.UpdateCoefficient(ctx, "sl-1", UpdateSubjectLevelRequest{Coefficient: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Coefficient)

	_, err = svc.UpdateCoefficient(ctx, "missing", UpdateSubjectLevelRequest{Coefficient: 5})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	assert.True(t, appErrors.Is(svc.Delete(ctx, "sl-2"), appErrors.ErrConflict))
	require.NoError(t, svc.Delete(ctx, "sl-1"))
	assert.True(t, appErrors.Is(svc.Delete(ctx, "sl-1"), appErrors.ErrNotFound))
}
