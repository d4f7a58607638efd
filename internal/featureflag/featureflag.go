// Package featureflag serves named boolean toggles through a short-TTL cache.
package featureflag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultTTL is how long a snapshot is served before reloading.
	DefaultTTL = 60 * time.Second
	// cacheTimeout bounds a single cache round trip.
	cacheTimeout = 300 * time.Millisecond
)

// Service reads and toggles feature flags.
type Service struct {
	db    *gorm.DB
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewService constructs a Service. A nil cache uses a MemoryCache.
func NewService(db *gorm.DB, cache Cache, ttl time.Duration) *Service {
	if cache == nil {
		cache = NewMemoryCache(nil)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{db: db, cache: cache, ttl: ttl, now: time.Now}
}

// IsEnabled reports whether key is enabled. Unknown keys are disabled.
func (s *Service) IsEnabled(ctx context.Context, key string) (bool, error) {
	flags, errAll := s.All(ctx)
	if errAll != nil {
		return false, errAll
	}
	return flags[key], nil
}

// All returns the flag snapshot, populating the cache on miss.
func (s *Service) All(ctx context.Context) (map[string]bool, error) {
	ctxCache, cancel := context.WithTimeout(ctx, cacheTimeout)
	cached, ok, errGet := s.cache.Get(ctxCache)
	cancel()
	if errGet != nil {
		log.WithError(errGet).Warn("feature flags: cache read failed")
	}
	if ok {
		return cached, nil
	}

	var rows []models.FeatureFlag
	if errFind := s.db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("feature flags: load: %w", errFind)
	}
	flags := make(map[string]bool, len(rows))
	for _, row := range rows {
		flags[row.Key] = row.Enabled
	}

	ctxCache, cancel = context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if errSet := s.cache.Set(ctxCache, flags, s.ttl); errSet != nil {
		log.WithError(errSet).Warn("feature flags: cache write failed")
	}
	return flags, nil
}

// List returns the stored flags ordered by key.
func (s *Service) List(ctx context.Context) ([]models.FeatureFlag, error) {
	var rows []models.FeatureFlag
	if errFind := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("feature flags: list: %w", errFind)
	}
	return rows, nil
}

// Set toggles a flag, records the admin action and invalidates the cache.
func (s *Service) Set(ctx context.Context, adminID uint64, key string, enabled bool) (*models.FeatureFlag, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	now := s.now().UTC()
	var flag models.FeatureFlag
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("key = ?", key).First(&flag).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("feature flag not found")
			}
			return fmt.Errorf("feature flags: load %s: %w", key, errFind)
		}
		previous := flag.Enabled
		if errUpdate := tx.Model(&flag).Updates(map[string]any{
			"enabled":    enabled,
			"updated_at": now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("feature flags: update %s: %w", key, errUpdate)
		}
		flag.Enabled = enabled
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "FEATURE_FLAG_SET",
			TargetType: models.AuditTargetFeatureFlag,
			TargetID:   key,
			Metadata:   map[string]any{"previous": previous, "enabled": enabled},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	s.Invalidate(ctx)
	return &flag, nil
}

// Invalidate drops the cached snapshot so the next read reloads it.
func (s *Service) Invalidate(ctx context.Context) {
	ctxCache, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if errInvalidate := s.cache.Invalidate(ctxCache); errInvalidate != nil {
		log.WithError(errInvalidate).Warn("feature flags: cache invalidate failed")
	}
}

// Require returns Forbidden when key is disabled.
func (s *Service) Require(ctx context.Context, key, message string) error {
	enabled, errEnabled := s.IsEnabled(ctx, key)
	if errEnabled != nil {
		return errEnabled
	}
	if !enabled {
		return apperr.Forbidden(message)
	}
	return nil
}
