package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/chat"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"gorm.io/gorm"
)

// CodeCategoryLocked is returned when the category lock is already held.
const CodeCategoryLocked = "CATEGORY_LOCKED"

// ErrNotActive indicates the listing left ACTIVE before the transition ran.
var ErrNotActive = errors.New("listing: not active")

func errCategoryLocked() *apperr.Error {
	return apperr.New(apperr.KindConflict, CodeCategoryLocked, "an active listing already exists for this category")
}

// Exit records what a departure from ACTIVE changed.
type Exit struct {
	Listings []models.Listing    // Listings moved out of ACTIVE.
	Threads  []models.ChatThread // Threads closed by the cascade.
}

// Buyers returns the distinct buyers whose threads were closed.
func (e Exit) Buyers() []uint64 {
	ids := make([]uint64, 0, len(e.Threads))
	for _, thread := range e.Threads {
		ids = append(ids, thread.BuyerID)
	}
	return notify.Dedupe(ids)
}

// Sellers returns the distinct owners of the moved listings.
func (e Exit) Sellers() []uint64 {
	ids := make([]uint64, 0, len(e.Listings))
	for _, listing := range e.Listings {
		ids = append(ids, listing.UserID)
	}
	return notify.Dedupe(ids)
}

// IDs returns the moved listing ids.
func (e Exit) IDs() []uint64 {
	ids := make([]uint64, 0, len(e.Listings))
	for _, listing := range e.Listings {
		ids = append(ids, listing.ID)
	}
	return ids
}

// ExitActive moves the still-ACTIVE listings among ids to status using tx.
// It releases their category locks, zeroes their ranking and closes their open threads.
// Listings that already left ACTIVE are skipped.
func ExitActive(tx *gorm.DB, ids []uint64, status models.ListingStatus, now time.Time) (Exit, error) {
	if len(ids) == 0 {
		return Exit{}, nil
	}
	if status == models.ListingStatusActive || status == models.ListingStatusDraft {
		return Exit{}, fmt.Errorf("listing: invalid exit status %s", status)
	}
	var listings []models.Listing
	if errFind := db.ForUpdate(tx).
		Where("id IN ? AND status = ?", ids, models.ListingStatusActive).
		Find(&listings).Error; errFind != nil {
		return Exit{}, fmt.Errorf("listing: load active listings: %w", errFind)
	}
	if len(listings) == 0 {
		return Exit{}, nil
	}
	exit := Exit{Listings: listings}
	moved := exit.IDs()

	if errUpdate := tx.Model(&models.Listing{}).
		Where("id IN ? AND status = ?", moved, models.ListingStatusActive).
		Updates(map[string]any{
			"status":        status,
			"ranking_score": 0,
			"updated_at":    now,
		}).Error; errUpdate != nil {
		return Exit{}, fmt.Errorf("listing: update status: %w", errUpdate)
	}
	if errDelete := tx.Where("listing_id IN ?", moved).Delete(&models.UserCategoryActiveListing{}).Error; errDelete != nil {
		return Exit{}, fmt.Errorf("listing: release category locks: %w", errDelete)
	}
	threads, errClose := chat.CloseOpenThreads(tx, moved, now)
	if errClose != nil {
		return Exit{}, errClose
	}
	exit.Threads = threads
	for i := range exit.Listings {
		exit.Listings[i].Status = status
		exit.Listings[i].RankingScore = 0
		exit.Listings[i].UpdatedAt = now
	}
	return exit, nil
}

// Activate moves a DRAFT or PAUSED listing to ACTIVE and takes its category lock.
func (s *Service) Activate(ctx context.Context, userID, listingID uint64) (*models.Listing, error) {
	now := s.nowFn().UTC()
	var listing models.Listing
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.ForUpdate(tx).First(&listing, listingID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("listing not found")
			}
			return fmt.Errorf("listing: load: %w", errFind)
		}
		if listing.UserID != userID {
			return apperr.Forbidden("you can only activate your own listing")
		}
		switch listing.Status {
		case models.ListingStatusSold, models.ListingStatusExpired, models.ListingStatusRemoved:
			return apperr.BadRequest("this listing cannot be activated")
		}

		var owner models.User
		if errOwner := tx.Select("id", "is_blocked", "shadow_banned").First(&owner, userID).Error; errOwner != nil {
			return fmt.Errorf("listing: load owner: %w", errOwner)
		}
		if owner.IsBlocked {
			return apperr.Forbidden("account is suspended")
		}

		var held int64
		if errCount := tx.Model(&models.UserCategoryActiveListing{}).
			Where("user_id = ? AND category_id = ?", userID, listing.CategoryID).
			Count(&held).Error; errCount != nil {
			return fmt.Errorf("listing: check category lock: %w", errCount)
		}
		if held > 0 {
			return errCategoryLocked()
		}
		if listing.Status != models.ListingStatusDraft && listing.Status != models.ListingStatusPaused {
			return apperr.BadRequest("only draft or paused listings can be activated")
		}

		lock := models.UserCategoryActiveListing{
			UserID:     userID,
			CategoryID: listing.CategoryID,
			ListingID:  listing.ID,
			CreatedAt:  now,
		}
		if errCreate := tx.Create(&lock).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return errCategoryLocked()
			}
			return fmt.Errorf("listing: create category lock: %w", errCreate)
		}

		rank := 1.0
		if owner.ShadowBanned {
			rank = 0
		}
		expiresAt := now.Add(s.activeDuration)
		if errUpdate := tx.Model(&listing).Updates(map[string]any{
			"status":        models.ListingStatusActive,
			"published_at":  now,
			"expires_at":    expiresAt,
			"ranking_score": rank,
			"updated_at":    now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("listing: activate: %w", errUpdate)
		}
		listing.Status = models.ListingStatusActive
		listing.PublishedAt = &now
		listing.ExpiresAt = &expiresAt
		listing.RankingScore = rank
		listing.UpdatedAt = now
		return nil
	})
	if errTx != nil {
		if db.IsUniqueViolation(errTx) {
			return nil, errCategoryLocked()
		}
		return nil, errTx
	}
	return &listing, nil
}

// MarkSold closes an ACTIVE listing as SOLD.
func (s *Service) MarkSold(ctx context.Context, userID, listingID uint64) (*models.Listing, error) {
	exit, errExit := s.ownerExit(ctx, userID, listingID, models.ListingStatusSold, "marked as sold")
	if errExit != nil {
		return nil, errExit
	}
	if s.trust != nil {
		s.trust.RecalculateQuietly(ctx, userID)
	}
	s.notifyExit(ctx, exit, exit.Buyers(), "sold", "Listing sold", "A listing you were chatting on has been sold.")
	return &exit.Listings[0], nil
}

// Deactivate pauses an ACTIVE listing at its owner's request.
func (s *Service) Deactivate(ctx context.Context, userID, listingID uint64) (*models.Listing, error) {
	exit, errExit := s.ownerExit(ctx, userID, listingID, models.ListingStatusPaused, "deactivated")
	if errExit != nil {
		return nil, errExit
	}
	s.notifyExit(ctx, exit, exit.Buyers(), "deactivated", "Listing deactivated", "A listing you were chatting on has been deactivated.")
	return &exit.Listings[0], nil
}

func (s *Service) ownerExit(ctx context.Context, userID, listingID uint64, status models.ListingStatus, verb string) (Exit, error) {
	now := s.nowFn().UTC()
	var exit Exit
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if errFind := tx.Select("id", "user_id", "status").First(&listing, listingID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("listing not found")
			}
			return fmt.Errorf("listing: load: %w", errFind)
		}
		if listing.UserID != userID {
			return apperr.Forbidden("only the owner can change this listing")
		}
		if listing.Status != models.ListingStatusActive {
			return apperr.BadRequest(fmt.Sprintf("only active listings can be %s", verb))
		}
		var errExit error
		exit, errExit = ExitActive(tx, []uint64{listingID}, status, now)
		if errExit != nil {
			return errExit
		}
		if len(exit.Listings) == 0 {
			return apperr.BadRequest(fmt.Sprintf("only active listings can be %s", verb))
		}
		return nil
	})
	if errTx != nil {
		return Exit{}, errTx
	}
	return exit, nil
}

// Pause moves an ACTIVE listing to PAUSED using tx. It returns ErrNotActive when the listing already left ACTIVE.
func Pause(tx *gorm.DB, listingID uint64, now time.Time) (Exit, error) {
	exit, errExit := ExitActive(tx, []uint64{listingID}, models.ListingStatusPaused, now)
	if errExit != nil {
		return Exit{}, errExit
	}
	if len(exit.Listings) == 0 {
		return Exit{}, ErrNotActive
	}
	return exit, nil
}

// Remove moves a listing to REMOVED on behalf of an admin.
func (s *Service) Remove(ctx context.Context, adminID, listingID uint64, reason string) (*models.Listing, error) {
	now := s.nowFn().UTC()
	var listing models.Listing
	var exit Exit
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.ForUpdate(tx).First(&listing, listingID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("listing not found")
			}
			return fmt.Errorf("listing: load: %w", errFind)
		}
		previous := listing.Status
		switch previous {
		case models.ListingStatusSold, models.ListingStatusExpired, models.ListingStatusRemoved:
			return apperr.BadRequest("listing is already in a terminal state")
		case models.ListingStatusActive:
			var errExit error
			exit, errExit = ExitActive(tx, []uint64{listingID}, models.ListingStatusRemoved, now)
			if errExit != nil {
				return errExit
			}
		default:
			if errUpdate := tx.Model(&listing).Updates(map[string]any{
				"status":        models.ListingStatusRemoved,
				"ranking_score": 0,
				"updated_at":    now,
			}).Error; errUpdate != nil {
				return fmt.Errorf("listing: remove: %w", errUpdate)
			}
		}
		listing.Status = models.ListingStatusRemoved
		listing.RankingScore = 0
		listing.UpdatedAt = now
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "LISTING_REMOVED",
			TargetType: models.AuditTargetListing,
			TargetID:   strconv.FormatUint(listingID, 10),
			Metadata:   map[string]any{"previousStatus": previous, "reason": reason},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	recipients := append([]uint64{listing.UserID}, exit.Buyers()...)
	s.notifyExit(ctx, Exit{Listings: []models.Listing{listing}, Threads: exit.Threads}, recipients, "removed", "Listing removed", "A listing was removed by moderation.")
	return &listing, nil
}

// Notify sends the LISTING_DEACTIVATED alert for exit to recipients.
func (s *Service) Notify(ctx context.Context, exit Exit, recipients []uint64, reason, title, body string) {
	s.notifyExit(ctx, exit, recipients, reason, title, body)
}

func (s *Service) notifyExit(ctx context.Context, exit Exit, recipients []uint64, reason, title, body string) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	s.notifier.Notify(ctx, notify.Message{
		UserIDs: recipients,
		Type:    models.NotificationListingDeactivated,
		Title:   title,
		Body:    body,
		Data:    map[string]any{"reason": reason, "listingIds": exit.IDs()},
	})
}
