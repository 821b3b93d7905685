package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type subjectLevelRepository interface {
	List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error)
	FindByID(ctx context.Context, id string) (*models.SubjectLevelDetail, error)
	Create(ctx context.Context, config *models.SubjectLevelConfig) error
	UpdateCoefficient(ctx context.Context, id string, coefficient int) error
	Delete(ctx context.Context, id string) error
	HasGrades(ctx context.Context, id string) (bool, error)
}

type subjectCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	LevelExists(ctx context.Context, id string) (bool, error)
}

// CreateSubjectLevelRequest assigns a subject to a level with a coefficient.
type CreateSubjectLevelRequest struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	LevelID     string `json:"level_id" validate:"required"`
	Coefficient int    `json:"coefficient" validate:"required,min=1"`
}

type UpdateSubjectLevelRequest struct {
	Coefficient int `json:"coefficient" validate:"required,min=1"`
}

// SubjectLevelService manages the coefficients used by report card generation.
type SubjectLevelService struct {
	repo      subjectLevelRepository
	catalog   subjectCatalog
	validator *validator.Validate
	logger    *zap.Logger
}

func NewSubjectLevelService(repo subjectLevelRepository, catalog subjectCatalog, validate *validator.Validate, logger *zap.Logger) *SubjectLevelService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectLevelService{repo: repo, catalog: catalog, validator: validate, logger: logger}
}

func (s *SubjectLevelService) List(ctx context.Context, filter models.SubjectLevelFilter) ([]models.SubjectLevelDetail, error) {
	configs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list subject levels")
	}
	return configs, nil
}

func (s *SubjectLevelService) Get(ctx context.Context, id string) (*models.SubjectLevelDetail, error) {
	config, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "subject level not found", "failed to load subject level")
	}
	return config, nil
}

func (s *SubjectLevelService) Create(ctx context.Context, req CreateSubjectLevelRequest) (*models.SubjectLevelDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid subject level payload")
	}
	if _, err := s.catalog.FindByID(ctx, req.SubjectID); err != nil {
		return nil, lookupError(err, "subject not found", "failed to load subject")
	}
	exists, err := s.catalog.LevelExists(ctx, req.LevelID)
	if err != nil {
		return nil, internalError(err, "failed to load level")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "level not found")
	}

	config := &models.SubjectLevelConfig{SubjectID: req.SubjectID, LevelID: req.LevelID, Coefficient: req.Coefficient}
	if err := s.repo.Create(ctx, config); err != nil {
		return nil, writeError(err, "subject is already configured for this level", "subject level not found", "failed to create subject level")
	}
	return s.Get(ctx, config.ID)
}

func (s *SubjectLevelService) UpdateCoefficient(ctx context.Context, id string, req UpdateSubjectLevelRequest) (*models.SubjectLevelDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid subject level payload")
	}
	if err := s.repo.UpdateCoefficient(ctx, id, req.Coefficient); err != nil {
		return nil, lookupError(err, "subject level not found", "failed to update subject level")
	}
	s.logger.Info("subject coefficient changed", zap.String("subject_level_id", id), zap.Int("coefficient", req.Coefficient))
	return s.Get(ctx, id)
}

// Delete removes a configuration that no grade references yet.
func (s *SubjectLevelService) Delete(ctx context.Context, id string) error {
	graded, err := s.repo.HasGrades(ctx, id)
	if err != nil {
		return internalError(err, "failed to check subject level grades")
	}
	if graded {
		return appErrors.Clone(appErrors.ErrConflict, "subject level has recorded grades")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "subject level not found", "failed to delete subject level")
	}
	return nil
}
