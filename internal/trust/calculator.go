package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sweepBatchSize = 200

// Calculator recomputes and caches trust scores.
type Calculator struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewCalculator constructs a Calculator.
func NewCalculator(db *gorm.DB) *Calculator {
	return &Calculator{db: db, nowFn: time.Now}
}

// SetClock replaces the time source.
func (c *Calculator) SetClock(now func() time.Time) {
	if now != nil {
		c.nowFn = now
	}
}

// Inputs loads the formula inputs for userID from the base tables.
func (c *Calculator) Inputs(ctx context.Context, userID uint64) (Inputs, error) {
	var user models.User
	if errFind := c.db.WithContext(ctx).Select("id", "created_at").First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Inputs{}, apperr.NotFound("user not found")
		}
		return Inputs{}, fmt.Errorf("trust: load user: %w", errFind)
	}
	conn := c.db.WithContext(ctx)
	var in Inputs
	if errCount := conn.Model(&models.ChatThread{}).Where("seller_id = ?", userID).Count(&in.SellerThreads).Error; errCount != nil {
		return Inputs{}, fmt.Errorf("trust: count seller threads: %w", errCount)
	}
	if errCount := conn.Model(&models.ChatThread{}).
		Where("seller_id = ?", userID).
		Where("EXISTS (SELECT 1 FROM chat_messages WHERE chat_messages.thread_id = chat_threads.id AND chat_messages.sender_id = ?)", userID).
		Count(&in.RespondedThreads).Error; errCount != nil {
		return Inputs{}, fmt.Errorf("trust: count responded threads: %w", errCount)
	}
	if errCount := conn.Model(&models.Listing{}).
		Where("user_id = ? AND status IN ?", userID, []models.ListingStatus{models.ListingStatusActive, models.ListingStatusSold, models.ListingStatusExpired}).
		Count(&in.RelevantListings).Error; errCount != nil {
		return Inputs{}, fmt.Errorf("trust: count listings: %w", errCount)
	}
	if errCount := conn.Model(&models.Listing{}).
		Where("user_id = ? AND status = ?", userID, models.ListingStatusSold).
		Count(&in.SoldListings).Error; errCount != nil {
		return Inputs{}, fmt.Errorf("trust: count sold listings: %w", errCount)
	}
	if errCount := conn.Model(&models.Report{}).
		Where("target_user_id = ? AND status IN ?", userID, []models.ReportStatus{models.ReportStatusOpen, models.ReportStatusInReview, models.ReportStatusResolved}).
		Count(&in.Reports).Error; errCount != nil {
		return Inputs{}, fmt.Errorf("trust: count reports: %w", errCount)
	}
	in.AccountAgeDays = AccountAgeDays(user.CreatedAt, c.nowFn().UTC())
	return in, nil
}

// Recalculate recomputes the score for userID and stores it.
func (c *Calculator) Recalculate(ctx context.Context, userID uint64) (*models.TrustScore, error) {
	in, errInputs := c.Inputs(ctx, userID)
	if errInputs != nil {
		return nil, errInputs
	}
	result := Compute(in)
	breakdown, errMarshal := json.Marshal(result.Breakdown)
	if errMarshal != nil {
		return nil, fmt.Errorf("trust: marshal breakdown: %w", errMarshal)
	}
	now := c.nowFn().UTC()
	row := models.TrustScore{
		UserID:     userID,
		Score:      result.Score,
		Breakdown:  datatypes.JSON(breakdown),
		ComputedAt: now,
		UpdatedAt:  now,
	}
	if errUpsert := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "breakdown", "computed_at", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return nil, fmt.Errorf("trust: upsert score: %w", errUpsert)
	}
	return &row, nil
}

// RecalculateQuietly recomputes the score and logs failures.
func (c *Calculator) RecalculateQuietly(ctx context.Context, userIDs ...uint64) {
	seen := make(map[uint64]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		if _, errRecalc := c.Recalculate(ctx, userID); errRecalc != nil {
			log.WithError(errRecalc).WithField("user_id", userID).Warn("trust: recalculate failed")
		}
	}
}

// RecalculateAll recomputes every user's score in id order.
func (c *Calculator) RecalculateAll(ctx context.Context) (int, error) {
	total := 0
	var batch []models.User
	result := c.db.WithContext(ctx).Model(&models.User{}).Select("id").
		FindInBatches(&batch, sweepBatchSize, func(_ *gorm.DB, _ int) error {
			ids := make([]uint64, 0, len(batch))
			for _, user := range batch {
				ids = append(ids, user.ID)
			}
			for _, id := range ids {
				if errCtx := ctx.Err(); errCtx != nil {
					return errCtx
				}
				if _, errRecalc := c.Recalculate(ctx, id); errRecalc != nil {
					log.WithError(errRecalc).WithField("user_id", id).Warn("trust: sweep recalculate failed")
					continue
				}
				total++
			}
			return nil
		})
	if result.Error != nil {
		return total, fmt.Errorf("trust: sweep: %w", result.Error)
	}
	return total, nil
}

// Get returns the stored score, computing it when missing.
func (c *Calculator) Get(ctx context.Context, userID uint64) (*models.TrustScore, error) {
	var row models.TrustScore
	errFind := c.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errFind == nil {
		return &row, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trust: load score: %w", errFind)
	}
	return c.Recalculate(ctx, userID)
}

// Scores returns stored scores for userIDs. Missing users score zero.
func (c *Calculator) Scores(ctx context.Context, userIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.TrustScore
	if errFind := c.db.WithContext(ctx).Select("user_id", "score").Where("user_id IN ?", userIDs).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("trust: load scores: %w", errFind)
	}
	for _, row := range rows {
		out[row.UserID] = row.Score
	}
	return out, nil
}
