package models

import "time"

// ThreadStatus represents whether a chat thread accepts messages.
type ThreadStatus string

// ThreadStatus constants.
const (
	// ThreadStatusOpen accepts new messages.
	ThreadStatusOpen ThreadStatus = "OPEN"
	// ThreadStatusClosed rejects new messages.
	ThreadStatusClosed ThreadStatus = "CLOSED"
)

// ChatThread is a buyer and seller conversation about one listing.
type ChatThread struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ListingID uint64 `gorm:"not null;uniqueIndex:idx_chat_threads_participants,priority:1"` // Listing discussed.
	BuyerID   uint64 `gorm:"not null;index;uniqueIndex:idx_chat_threads_participants,priority:2"` // Buyer.
	SellerID  uint64 `gorm:"not null;index;uniqueIndex:idx_chat_threads_participants,priority:3"` // Seller.

	Status        ThreadStatus `gorm:"type:varchar(8);not null;default:'OPEN';index"` // Open or closed.
	LastMessageAt *time.Time   `gorm:"index"`                                         // Latest message time.
	ClosedAt      *time.Time   // Last close time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ChatMessage is one message inside a thread.
type ChatMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ThreadID uint64 `gorm:"not null;index"`     // Owning thread.
	SenderID uint64 `gorm:"not null;index"`     // Author.
	Content  string `gorm:"type:text;not null"` // Message body.

	CreatedAt time.Time `gorm:"not null;index"` // Send time.
}
