package models

import "time"

// OtpPurpose identifies the flow an OTP challenge belongs to.
type OtpPurpose string

// OtpPurpose constants.
const (
	// OtpPurposeLogin authenticates an existing account.
	OtpPurposeLogin OtpPurpose = "LOGIN"
	// OtpPurposeSignup proves phone ownership before account creation.
	OtpPurposeSignup OtpPurpose = "SIGNUP"
)

// OtpCode stores one OTP challenge. The plain code is never persisted.
type OtpCode struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque request id.

	UserID  *uint64    `gorm:"index"`                                                           // Account the code was redeemed for.
	Phone   string     `gorm:"type:varchar(32);not null;index:idx_otp_codes_phone_purpose,priority:1"` // Target phone.
	Purpose OtpPurpose `gorm:"type:varchar(16);not null;index:idx_otp_codes_phone_purpose,priority:2"` // Flow purpose.

	OtpHash         string `gorm:"type:varchar(64);not null"` // Salted code hash.
	FingerprintHash string `gorm:"type:varchar(64);not null"` // Requesting device hash.
	IP              string `gorm:"type:varchar(64)"`          // Requesting client IP.
	UserAgent       string `gorm:"type:text"`                 // Requesting user agent.

	ExpiresAt   time.Time `gorm:"not null"`           // Verification deadline.
	Attempts    int       `gorm:"not null;default:0"` // Wrong guesses so far.
	MaxAttempts int       `gorm:"not null;default:5"` // Guess budget.

	VerifiedAt *time.Time // Set on a correct verify.
	ConsumedAt *time.Time // Set when a verified token is redeemed.

	CreatedAt time.Time `gorm:"not null;index:idx_otp_codes_phone_purpose,priority:3"` // Request timestamp.
}
