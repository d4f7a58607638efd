package models

import "time"

// ListingStatus represents the lifecycle state of a listing.
type ListingStatus string

// ListingStatus constants define listing lifecycle states.
const (
	// ListingStatusDraft marks a listing that was never published.
	ListingStatusDraft ListingStatus = "DRAFT"
	// ListingStatusActive marks a published listing holding its category lock.
	ListingStatusActive ListingStatus = "ACTIVE"
	// ListingStatusPaused marks a listing taken down by its owner or moderation.
	ListingStatusPaused ListingStatus = "PAUSED"
	// ListingStatusSold marks a sold listing. Terminal.
	ListingStatusSold ListingStatus = "SOLD"
	// ListingStatusExpired marks a listing past its expiry. Terminal.
	ListingStatusExpired ListingStatus = "EXPIRED"
	// ListingStatusRemoved marks a listing removed by an admin. Terminal.
	ListingStatusRemoved ListingStatus = "REMOVED"
)

// MediaType identifies a listing media kind.
type MediaType string

// MediaType constants.
const (
	// MediaTypeImage is a still image.
	MediaTypeImage MediaType = "IMAGE"
	// MediaTypeVideo is a short video clip.
	MediaTypeVideo MediaType = "VIDEO"
)

// Category is a taxonomy node listings are filed under.
type Category struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string  `gorm:"type:text;not null"`                     // Display name.
	Slug     string  `gorm:"type:varchar(128);not null;uniqueIndex"` // Lower-cased unique slug.
	ParentID *uint64 `gorm:"index"`                                  // Parent node.
	Depth    int     `gorm:"not null;default:0"`                     // Distance from the root.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Listing is a sellable item published by a user.
type Listing struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;index"` // Seller.
	CategoryID uint64 `gorm:"not null;index"` // Category the listing is filed under.

	Title       string  `gorm:"type:text;not null"`                    // Listing title.
	Description string  `gorm:"type:text;not null"`                    // Listing body.
	Price       float64 `gorm:"type:decimal(14,2);not null;default:0"` // Asking price.
	Currency    string  `gorm:"type:varchar(8);not null;default:'PKR'"` // ISO currency code.

	ShowPhone bool `gorm:"not null;default:false"` // Expose the seller phone.
	AllowChat bool `gorm:"not null;default:false"` // Accept chat threads.
	AllowCall bool `gorm:"not null;default:false"` // Accept calls.
	AllowSMS  bool `gorm:"not null;default:false"` // Accept SMS.

	Status       ListingStatus `gorm:"type:varchar(16);not null;default:'DRAFT';index:idx_listings_status_expires,priority:1"` // Lifecycle state.
	RankingScore float64       `gorm:"not null;default:0"`                                                                  // Base ranking weight.
	ExpiresAt    *time.Time    `gorm:"index:idx_listings_status_expires,priority:2"`                                       // Expiry of the current activation.
	PublishedAt  *time.Time    // Start of the current activation.

	Media []ListingMedia `gorm:"foreignKey:ListingID"` // Attached media.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ListingMedia is one image or video attached to a listing.
type ListingMedia struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ListingID   uint64    `gorm:"not null;index"`            // Owning listing.
	Type        MediaType `gorm:"type:varchar(8);not null"`  // Image or video.
	URL         string    `gorm:"type:text;not null"`        // Public media url.
	DurationSec *int      // Video duration in seconds.
	SortOrder   int       `gorm:"not null;default:0"` // Display order.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// UserCategoryActiveListing is the category lock: one ACTIVE listing per user and category.
type UserCategoryActiveListing struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;uniqueIndex:idx_user_category_active,priority:1"` // Lock owner.
	CategoryID uint64 `gorm:"not null;uniqueIndex:idx_user_category_active,priority:2"` // Locked category.
	ListingID  uint64 `gorm:"not null;uniqueIndex"`                                     // The ACTIVE listing holding the lock.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Lock acquisition time.
}
