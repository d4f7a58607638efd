package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies a user-facing alert.
type NotificationType string

// NotificationType constants.
const (
	// NotificationListingDeactivated tells a user a listing left ACTIVE.
	NotificationListingDeactivated NotificationType = "LISTING_DEACTIVATED"
	// NotificationChatMessage tells a user about a new chat message.
	NotificationChatMessage NotificationType = "CHAT_MESSAGE"
	// NotificationReportAction tells a reporter their report was handled.
	NotificationReportAction NotificationType = "REPORT_ACTION"
	// NotificationAccountAction tells a user about a moderation action on their account.
	NotificationAccountAction NotificationType = "ACCOUNT_ACTION"
)

// DevicePlatform identifies a push target platform.
type DevicePlatform string

// DevicePlatform constants.
const (
	DevicePlatformIOS     DevicePlatform = "IOS"
	DevicePlatformAndroid DevicePlatform = "ANDROID"
	DevicePlatformWeb     DevicePlatform = "WEB"
)

// Notification is a persisted in-app alert.
type Notification struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64           `gorm:"not null;index"`            // Recipient.
	Type   NotificationType `gorm:"type:varchar(32);not null"` // Alert kind.
	Title  string           `gorm:"type:text;not null"`        // Short title.
	Body   string           `gorm:"type:text;not null"`        // Body text.
	Data   datatypes.JSON   // Client routing payload.
	ReadAt *time.Time       // Set when the user opened it.

	CreatedAt time.Time `gorm:"not null;index"` // Creation timestamp.
}

// DeviceToken is a registered push token.
type DeviceToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64         `gorm:"not null;index"`                        // Owner.
	Token    string         `gorm:"type:varchar(512);not null;uniqueIndex"` // Provider token.
	Platform DevicePlatform `gorm:"type:varchar(16);not null"`             // Target platform.

	LastSeenAt time.Time `gorm:"not null"`                // Latest registration.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
