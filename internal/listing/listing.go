// Package listing owns the listing state machine and the per-category activation lock.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"github.com/router-for-me/marketplace-core/internal/validation"
	"gorm.io/gorm"
)

// DefaultActiveDuration is how long one activation lasts.
const DefaultActiveDuration = 30 * 24 * time.Hour

// Flags reports whether a feature flag is enabled.
type Flags interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

// TrustScorer recomputes and reads cached trust scores.
type TrustScorer interface {
	RecalculateQuietly(ctx context.Context, userIDs ...uint64)
}

// Service runs listing creation, transitions and ranked reads.
type Service struct {
	db             *gorm.DB
	notifier       notify.Notifier
	trust          TrustScorer
	flags          Flags
	activeDuration time.Duration
	nowFn          func() time.Time
}

// NewService constructs a Service. Nil trust and flags disable those hooks.
func NewService(db *gorm.DB, notifier notify.Notifier, trust TrustScorer, flags Flags, activeDuration time.Duration) *Service {
	if activeDuration <= 0 {
		activeDuration = DefaultActiveDuration
	}
	return &Service{
		db:             db,
		notifier:       notifier,
		trust:          trust,
		flags:          flags,
		activeDuration: activeDuration,
		nowFn:          time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// MediaInput is one media item on a new listing.
type MediaInput struct {
	Type        models.MediaType `json:"type" validate:"required,oneof=IMAGE VIDEO"`
	URL         string           `json:"url" validate:"required,url"`
	DurationSec *int             `json:"durationSec" validate:"omitempty,min=1"`
}

// CreateInput describes a new DRAFT listing.
type CreateInput struct {
	CategoryID  uint64       `json:"categoryId" validate:"required"`
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description" validate:"required,max=5000"`
	Price       float64      `json:"price" validate:"gte=0"`
	Currency    string       `json:"currency" validate:"omitempty,len=3"`
	ShowPhone   bool         `json:"showPhone"`
	AllowChat   bool         `json:"allowChat"`
	AllowCall   bool         `json:"allowCall"`
	AllowSMS    bool         `json:"allowSMS"`
	Media       []MediaInput `json:"media" validate:"max=7,dive"`
}

// Create stores a DRAFT listing with its media.
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*models.Listing, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	if errMedia := ValidateMedia(in.Media); errMedia != nil {
		return nil, errMedia
	}
	if errVideo := s.checkVideoAllowed(ctx, in.Media); errVideo != nil {
		return nil, errVideo
	}
	if in.Currency == "" {
		in.Currency = internalsettings.DefaultCurrency
	}

	listing := models.Listing{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Currency:    in.Currency,
		ShowPhone:   in.ShowPhone,
		AllowChat:   in.AllowChat,
		AllowCall:   in.AllowCall,
		AllowSMS:    in.AllowSMS,
		Status:      models.ListingStatusDraft,
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Category{}).Where("id = ?", in.CategoryID).Count(&count).Error; errCount != nil {
			return fmt.Errorf("listing: check category: %w", errCount)
		}
		if count == 0 {
			return apperr.NotFound("category not found")
		}
		if errCreate := tx.Omit("Media").Create(&listing).Error; errCreate != nil {
			return fmt.Errorf("listing: create: %w", errCreate)
		}
		if len(in.Media) == 0 {
			return nil
		}
		media := make([]models.ListingMedia, 0, len(in.Media))
		for i, item := range in.Media {
			media = append(media, models.ListingMedia{
				ListingID:   listing.ID,
				Type:        item.Type,
				URL:         strings.TrimSpace(item.URL),
				DurationSec: item.DurationSec,
				SortOrder:   i,
			})
		}
		if errCreate := tx.Create(&media).Error; errCreate != nil {
			return fmt.Errorf("listing: create media: %w", errCreate)
		}
		listing.Media = media
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &listing, nil
}

// ValidateMedia enforces the per-listing media limits.
func ValidateMedia(items []MediaInput) error {
	images, videos := 0, 0
	for _, item := range items {
		switch item.Type {
		case models.MediaTypeImage:
			images++
		case models.MediaTypeVideo:
			videos++
			if item.DurationSec != nil && *item.DurationSec > internalsettings.MaxVideoDurationSeconds {
				return apperr.UnprocessableContent(fmt.Sprintf("video duration must be %d seconds or less", internalsettings.MaxVideoDurationSeconds))
			}
		}
	}
	if images > internalsettings.MaxListingImages {
		return apperr.UnprocessableContent(fmt.Sprintf("maximum %d images are allowed", internalsettings.MaxListingImages))
	}
	if videos > internalsettings.MaxListingVideos {
		return apperr.UnprocessableContent(fmt.Sprintf("only %d video is allowed", internalsettings.MaxListingVideos))
	}
	return nil
}

func (s *Service) checkVideoAllowed(ctx context.Context, items []MediaInput) error {
	if s.flags == nil {
		return nil
	}
	hasVideo := false
	for _, item := range items {
		if item.Type == models.MediaTypeVideo {
			hasVideo = true
			break
		}
	}
	if !hasVideo {
		return nil
	}
	enabled, errFlag := s.flags.IsEnabled(ctx, internalsettings.FlagVideoFeed)
	if errFlag != nil {
		return errFlag
	}
	if !enabled {
		return apperr.UnprocessableContent("video uploads are currently disabled")
	}
	return nil
}

// Get returns a listing. Non-ACTIVE and shadow-banned listings are visible to the owner only.
func (s *Service) Get(ctx context.Context, viewerID, listingID uint64) (*models.Listing, error) {
	var listing models.Listing
	errFind := s.db.WithContext(ctx).
		Preload("Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC") }).
		First(&listing, listingID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, fmt.Errorf("listing: load: %w", errFind)
	}
	if listing.UserID == viewerID {
		return &listing, nil
	}
	if listing.Status != models.ListingStatusActive {
		return nil, apperr.NotFound("listing not found")
	}
	var owner models.User
	if errOwner := s.db.WithContext(ctx).Select("id", "shadow_banned", "is_blocked").First(&owner, listing.UserID).Error; errOwner != nil {
		return nil, fmt.Errorf("listing: load owner: %w", errOwner)
	}
	if owner.ShadowBanned || owner.IsBlocked {
		return nil, apperr.NotFound("listing not found")
	}
	return &listing, nil
}

// Mine returns every listing owned by userID, newest first.
func (s *Service) Mine(ctx context.Context, userID uint64) ([]models.Listing, error) {
	var listings []models.Listing
	errFind := s.db.WithContext(ctx).
		Preload("Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&listings).Error
	if errFind != nil {
		return nil, fmt.Errorf("listing: list mine: %w", errFind)
	}
	return listings, nil
}
