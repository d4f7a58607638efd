package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"gorm.io/gorm"
)

// ToggleInput switches an account action on or off.
type ToggleInput struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// Suspend blocks or unblocks a user.
func (s *Service) Suspend(ctx context.Context, adminID, userID uint64, enabled bool) (*models.User, error) {
	user, errToggle := s.toggleUser(ctx, adminID, userID, "is_blocked", "SUSPEND_USER", enabled, nil)
	if errToggle != nil {
		return nil, errToggle
	}
	if s.notifier != nil {
		body := "Your account has been suspended."
		if !enabled {
			body = "Your account has been reinstated."
		}
		s.notifier.Notify(ctx, notify.Message{
			UserIDs: []uint64{userID},
			Type:    models.NotificationAccountAction,
			Title:   "Account update",
			Body:    body,
			Data:    map[string]any{"action": "suspend", "enabled": enabled},
		})
	}
	return user, nil
}

// ShadowBan hides or restores a user's listings in ranked results.
// Their ACTIVE listings are re-ranked to 0 on enable and back to 1 on disable.
func (s *Service) ShadowBan(ctx context.Context, adminID, userID uint64, enabled bool) (*models.User, error) {
	rank := 1.0
	if enabled {
		rank = 0
	}
	return s.toggleUser(ctx, adminID, userID, "shadow_banned", "SHADOW_BAN_USER", enabled, func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.Listing{}).
			Where("user_id = ? AND status = ?", userID, models.ListingStatusActive).
			Updates(map[string]any{"ranking_score": rank, "updated_at": s.now()}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: rerank listings: %w", errUpdate)
		}
		return nil
	})
}

func (s *Service) toggleUser(ctx context.Context, adminID, userID uint64, column, action string, enabled bool, extra func(tx *gorm.DB) error) (*models.User, error) {
	now := s.now()
	var user models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&user, userID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user not found")
			}
			return fmt.Errorf("moderation: load user: %w", errFind)
		}
		if errUpdate := tx.Model(&user).Updates(map[string]any{column: enabled, "updated_at": now}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: update user: %w", errUpdate)
		}
		if extra != nil {
			if errExtra := extra(tx); errExtra != nil {
				return errExtra
			}
		}
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     action,
			TargetType: models.AuditTargetUser,
			TargetID:   strconv.FormatUint(userID, 10),
			Metadata:   map[string]any{"enabled": enabled},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	if errReload := s.db.WithContext(ctx).First(&user, userID).Error; errReload != nil {
		return nil, fmt.Errorf("moderation: reload user: %w", errReload)
	}
	return &user, nil
}

// DeactivateListing pauses an ACTIVE listing through the standard cascade.
func (s *Service) DeactivateListing(ctx context.Context, adminID, listingID uint64) (*models.Listing, error) {
	now := s.now()
	var exit listing.Exit
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Listing
		if errFind := tx.Select("id", "status").First(&current, listingID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("listing not found")
			}
			return fmt.Errorf("moderation: load listing: %w", errFind)
		}
		var errPause error
		exit, errPause = listing.Pause(tx, listingID, now)
		if errors.Is(errPause, listing.ErrNotActive) {
			return apperr.BadRequest("only active listings can be deactivated")
		}
		if errPause != nil {
			return errPause
		}
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "DEACTIVATE_LISTING",
			TargetType: models.AuditTargetListing,
			TargetID:   strconv.FormatUint(listingID, 10),
			Metadata:   map[string]any{"reason": "admin_action", "closedThreads": len(exit.Threads)},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	s.notifyExit(ctx, exit, "A listing was deactivated by moderation.", map[string]any{"reason": "admin_action"})
	return &exit.Listings[0], nil
}

// CloseThread closes a chat thread on behalf of an admin.
func (s *Service) CloseThread(ctx context.Context, adminID, threadID uint64) (*models.ChatThread, error) {
	now := s.now()
	var thread *models.ChatThread
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errClose error
		thread, errClose = s.threads.CloseThread(ctx, tx, threadID)
		if errClose != nil {
			return errClose
		}
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "CLOSE_THREAD",
			TargetType: models.AuditTargetChatThread,
			TargetID:   strconv.FormatUint(threadID, 10),
			Metadata:   map[string]any{"listingId": thread.ListingID},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	return thread, nil
}

// UserSummary is a user row with its cached trust score.
type UserSummary struct {
	models.User
	TrustScore *int
}

// Users lists accounts, newest first.
func (s *Service) Users(ctx context.Context, limit int) ([]UserSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var users []models.User
	if errFind := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&users).Error; errFind != nil {
		return nil, fmt.Errorf("moderation: list users: %w", errFind)
	}
	ids := make([]uint64, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	var scores []models.TrustScore
	if len(ids) > 0 {
		if errScores := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&scores).Error; errScores != nil {
			return nil, fmt.Errorf("moderation: load trust scores: %w", errScores)
		}
	}
	byUser := make(map[uint64]int, len(scores))
	for _, score := range scores {
		byUser[score.UserID] = score.Score
	}
	out := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summary := UserSummary{User: user}
		if score, ok := byUser[user.ID]; ok {
			summary.TrustScore = &score
		}
		out = append(out, summary)
	}
	return out, nil
}

// Listings lists listings of any owner, optionally filtered by status, newest first.
func (s *Service) Listings(ctx context.Context, status models.ListingStatus, limit int) ([]models.Listing, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.Listing{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.Listing
	if errFind := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("moderation: list listings: %w", errFind)
	}
	return rows, nil
}
