package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
)

const auditCachePrefix = "audit:"

type auditChangeStore interface {
	ListByItem(ctx context.Context, itemID string) ([]models.ChangeLog, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.ChangeLog, error)
}

type auditCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AuditService serves the per-item and per-batch change history. Histories
// are immutable between merges, so reads go through Redis when a cache is
// configured and the whole prefix is dropped after every merge.
type AuditService struct {
	changes auditChangeStore
	cache   auditCache
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewAuditService constructs the service. cache may be nil to disable
// caching entirely.
func NewAuditService(changes auditChangeStore, cache auditCache, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AuditService{changes: changes, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

// ItemHistory returns every field change ever applied to one item, oldest
// first.
func (s *AuditService) ItemHistory(ctx context.Context, itemID string) ([]models.ChangeLog, error) {
	return s.cached(ctx, auditCachePrefix+"item:"+itemID, func() ([]models.ChangeLog, error) {
		return s.changes.ListByItem(ctx, itemID)
	})
}

// BatchHistory returns every field change one merge produced.
func (s *AuditService) BatchHistory(ctx context.Context, batchID string) ([]models.ChangeLog, error) {
	return s.cached(ctx, auditCachePrefix+"batch:"+batchID, func() ([]models.ChangeLog, error) {
		return s.changes.ListByBatch(ctx, batchID)
	})
}

// InvalidateAll drops every cached history. Called after a merge commits.
func (s *AuditService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, auditCachePrefix+"*"); err != nil {
		s.logger.Warn("audit cache invalidation failed", zap.Error(err))
	}
}

func (s *AuditService) cached(ctx context.Context, key string, load func() ([]models.ChangeLog, error)) ([]models.ChangeLog, error) {
	if s.cache != nil {
		var entries []models.ChangeLog
		err := s.cache.Get(ctx, key, &entries)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return entries, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("audit cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	entries, err := load()
	if err != nil {
		return nil, fmt.Errorf("load change history: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, entries, s.ttl); err != nil {
			s.logger.Warn("audit cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entries, nil
}
