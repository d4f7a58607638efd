package listing

import (
	"context"
	"fmt"

	"github.com/router-for-me/marketplace-core/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const expireBatchSize = 500

// ExpireDue moves every ACTIVE listing past its expiry to EXPIRED and notifies affected buyers.
// Running it again finds nothing to do.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.nowFn().UTC()
	total := 0
	for {
		if errCtx := ctx.Err(); errCtx != nil {
			return total, errCtx
		}
		var ids []uint64
		if errFind := s.db.WithContext(ctx).Model(&models.Listing{}).
			Where("status = ? AND expires_at <= ?", models.ListingStatusActive, now).
			Order("id ASC").
			Limit(expireBatchSize).
			Pluck("id", &ids).Error; errFind != nil {
			return total, fmt.Errorf("listing: find expired: %w", errFind)
		}
		if len(ids) == 0 {
			break
		}
		var exit Exit
		errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var errExit error
			exit, errExit = ExitActive(tx, ids, models.ListingStatusExpired, now)
			return errExit
		})
		if errTx != nil {
			return total, errTx
		}
		total += len(exit.Listings)
		s.notifyExit(ctx, exit, exit.Buyers(), "expired", "Listing deactivated", "A listing you were chatting on has expired.")
		if len(ids) < expireBatchSize {
			break
		}
	}
	if total > 0 {
		log.WithField("count", total).Info("listing: expired listings")
	}
	return total, nil
}
