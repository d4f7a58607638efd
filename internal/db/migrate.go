package db

import (
	"fmt"

	"github.com/router-for-me/marketplace-core/internal/models"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.DeviceFingerprint{},
		&models.OtpCode{},
		&models.Category{},
		&models.Listing{},
		&models.ListingMedia{},
		&models.UserCategoryActiveListing{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Report{},
		&models.TrustScore{},
		&models.FeatureFlag{},
		&models.AuditLog{},
		&models.Notification{},
		&models.DeviceToken{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultFlags(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureDefaultFlags inserts missing feature flags without touching existing values.
func ensureDefaultFlags(conn *gorm.DB) error {
	for _, flag := range internalsettings.DefaultFlags {
		row := models.FeatureFlag{
			Key:         flag.Key,
			Enabled:     flag.Enabled,
			Description: flag.Description,
		}
		if errCreate := conn.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed flag %s: %w", flag.Key, errCreate)
		}
	}
	return nil
}
