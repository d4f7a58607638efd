package db

import (
	"path/filepath"
	"testing"

	"github.com/router-for-me/marketplace-core/internal/models"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
)

func TestMigrateSeedsFlagsIdempotently(t *testing.T) {
	conn, errOpen := Open("file:" + filepath.Join(t.TempDir(), "seed.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errUpdate := conn.Model(&models.FeatureFlag{}).
		Where("key = ?", internalsettings.FlagAutoHideReports).
		Update("enabled", true).Error; errUpdate != nil {
		t.Fatalf("update flag: %v", errUpdate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}

	var count int64
	if errCount := conn.Model(&models.FeatureFlag{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count flags: %v", errCount)
	}
	if int(count) != len(internalsettings.DefaultFlags) {
		t.Fatalf("expected %d flags, got %d", len(internalsettings.DefaultFlags), count)
	}
	var flag models.FeatureFlag
	if errFind := conn.Where("key = ?", internalsettings.FlagAutoHideReports).First(&flag).Error; errFind != nil {
		t.Fatalf("load flag: %v", errFind)
	}
	if !flag.Enabled {
		t.Fatalf("expected migrate to keep the admin-set flag value")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn, errOpen := Open("file:" + filepath.Join(t.TempDir(), "unique.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	first := models.UserCategoryActiveListing{UserID: 1, CategoryID: 2, ListingID: 10}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create lock: %v", errCreate)
	}
	second := models.UserCategoryActiveListing{UserID: 1, CategoryID: 2, ListingID: 11}
	errCreate := conn.Create(&second).Error
	if errCreate == nil {
		t.Fatalf("expected duplicate lock to fail")
	}
	if !IsUniqueViolation(errCreate) {
		t.Fatalf("expected unique violation, got %v", errCreate)
	}
	if IsUniqueViolation(nil) {
		t.Fatalf("nil must not be a unique violation")
	}
}
