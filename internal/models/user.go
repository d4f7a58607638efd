package models

import (
	"time"

	"gorm.io/datatypes"
)

// Gender captures the self-declared gender on a user profile.
type Gender string

// Gender constants accepted at signup.
const (
	// GenderMale marks a male profile.
	GenderMale Gender = "MALE"
	// GenderFemale marks a female profile.
	GenderFemale Gender = "FEMALE"
	// GenderOther marks any other declaration.
	GenderOther Gender = "OTHER"
)

// User represents a registered marketplace account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FullName        string    `gorm:"type:text;not null"`                     // Legal full name.
	FatherName      string    `gorm:"type:text;not null"`                     // Father's name as on CNIC.
	CNIC            string    `gorm:"type:varchar(32);not null;uniqueIndex"`  // National identity number.
	Phone           string    `gorm:"type:varchar(32);not null;uniqueIndex"`  // Verified phone number.
	Email           string    `gorm:"type:varchar(255);not null;uniqueIndex"` // Lower-cased email address.
	PasswordHash    string    `gorm:"type:text;not null"`                     // Bcrypt password hash.
	City            string    `gorm:"type:text;not null"`                     // Home city.
	DateOfBirth     time.Time `gorm:"not null"`                               // Date of birth.
	Gender          Gender    `gorm:"type:varchar(16);not null"`              // Declared gender.
	ProfilePhotoURL string    `gorm:"type:text"`                              // Optional avatar url.

	PhoneVerifiedAt *time.Time // Set when the signup OTP was consumed.

	IsBlocked    bool `gorm:"not null;default:false"` // Suspended by moderation.
	ShadowBanned bool `gorm:"not null;default:false"` // Hidden from ranked results.

	RiskSignals datatypes.JSON // Latest device sighting summary.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DeviceFingerprint records a (user, device) sighting.
type DeviceFingerprint struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_device_fingerprints_user_hash,priority:1"` // Owning user.
	Hash   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_device_fingerprints_user_hash,priority:2"` // Salted device hash.

	IP        string `gorm:"type:varchar(64)"` // Last seen client IP.
	UserAgent string `gorm:"type:text"`        // Last seen user agent.

	FirstSeenAt time.Time `gorm:"not null"` // First sighting.
	LastSeenAt  time.Time `gorm:"not null"` // Latest sighting.
}
