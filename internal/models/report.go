package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReportStatus represents the review state of a report.
type ReportStatus string

// ReportStatus constants.
const (
	// ReportStatusOpen is a freshly filed report.
	ReportStatusOpen ReportStatus = "OPEN"
	// ReportStatusInReview is being looked at by an admin.
	ReportStatusInReview ReportStatus = "IN_REVIEW"
	// ReportStatusResolved was acted upon.
	ReportStatusResolved ReportStatus = "RESOLVED"
	// ReportStatusRejected was dismissed.
	ReportStatusRejected ReportStatus = "REJECTED"
)

// Report is a moderation complaint against exactly one target.
type Report struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ReporterID      uint64  `gorm:"not null;index"` // Filing user.
	TargetUserID    *uint64 `gorm:"index"`          // Reported user.
	TargetListingID *uint64 `gorm:"index"`          // Reported listing.
	TargetThreadID  *uint64 `gorm:"index"`          // Reported chat thread.

	Status     ReportStatus `gorm:"type:varchar(16);not null;default:'OPEN';index"` // Review state.
	Reason     string       `gorm:"type:text;not null"`                              // Reporter's reason.
	ResolvedAt *time.Time   // Set when resolved or rejected.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TrustScore caches the derived reputation of a user.
type TrustScore struct {
	UserID uint64 `gorm:"primaryKey"` // Scored user.

	Score      int            `gorm:"not null;default:0"` // 0 to 100.
	Breakdown  datatypes.JSON // Formula inputs and component scores.
	ComputedAt time.Time      `gorm:"not null"` // Computation time.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// FeatureFlag is a named boolean toggle.
type FeatureFlag struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key         string `gorm:"type:varchar(64);not null;uniqueIndex"` // Flag key.
	Enabled     bool   `gorm:"not null;default:false"`                // Current state.
	Description string `gorm:"type:text"`                             // Human description.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AuditTargetType names the kind of entity an admin action touched.
type AuditTargetType string

// AuditTargetType constants.
const (
	AuditTargetUser        AuditTargetType = "USER"
	AuditTargetListing     AuditTargetType = "LISTING"
	AuditTargetChatThread  AuditTargetType = "CHAT_THREAD"
	AuditTargetReport      AuditTargetType = "REPORT"
	AuditTargetCategory    AuditTargetType = "CATEGORY"
	AuditTargetFeatureFlag AuditTargetType = "FEATURE_FLAG"
)

// AuditLog is an append-only record of an admin action.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminID    uint64          `gorm:"not null;index"`             // Acting admin.
	Action     string          `gorm:"type:varchar(64);not null"`  // Action name.
	TargetType AuditTargetType `gorm:"type:varchar(32);not null;index:idx_audit_logs_target,priority:1"` // Target kind.
	TargetID   string          `gorm:"type:varchar(64);not null;index:idx_audit_logs_target,priority:2"` // Target identifier.
	Metadata   datatypes.JSON  // Action details.

	CreatedAt time.Time `gorm:"not null;index"` // Action time.
}
