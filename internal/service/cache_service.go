package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

// CacheRepository abstracts the key/value store behind the cache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// Cache key helpers. Every key of a (class, session) pair shares the cohortPattern prefix.
func statisticsKey(classID, sessionID, subjectLevelID string) string {
	return fmt.Sprintf("stats:%s:%s:%s", classID, sessionID, subjectLevelID)
}

func reportCardDetailKey(reportCardID string) string {
	return "report-card:" + reportCardID
}

func statisticsPattern(classID, sessionID string) string {
	return fmt.Sprintf("stats:%s:%s:*", classID, sessionID)
}

func sessionStatisticsPattern(sessionID string) string {
	return fmt.Sprintf("stats:*:%s:*", sessionID)
}

const reportCardDetailPattern = "report-card:*"

// CacheService wraps the cache repository with metrics and a kill switch.
// Cache failures never fail the caller; they are logged and reported as misses.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every key matching the patterns.
func (s *CacheService) Invalidate(ctx context.Context, patterns ...string) {
	if !s.Enabled() {
		return
	}
	for _, pattern := range patterns {
		removed, err := s.repo.DeleteByPattern(ctx, pattern)
		if err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if removed > 0 {
			s.logger.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("keys", removed))
		}
	}
}
