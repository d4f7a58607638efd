package featureflag

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "flags.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestServeFromCacheUntilInvalidated(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn, NewMemoryCache(nil), time.Minute)
	ctx := context.Background()

	enabled, err := svc.IsEnabled(ctx, internalsettings.FlagAutoHideReports)
	if err != nil || enabled {
		t.Fatalf("expected seeded flag disabled, got %v err=%v", enabled, err)
	}

	// A write that bypasses the service is invisible until the cache is dropped.
	if errUpdate := conn.Model(&models.FeatureFlag{}).Where("key = ?", internalsettings.FlagAutoHideReports).Update("enabled", true).Error; errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	enabled, _ = svc.IsEnabled(ctx, internalsettings.FlagAutoHideReports)
	if enabled {
		t.Fatalf("expected cached value to be served")
	}
	svc.Invalidate(ctx)
	enabled, _ = svc.IsEnabled(ctx, internalsettings.FlagAutoHideReports)
	if !enabled {
		t.Fatalf("expected reload after invalidate")
	}
}

func TestSetInvalidatesAndAudits(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn, nil, time.Minute)
	ctx := context.Background()

	if _, err := svc.IsEnabled(ctx, internalsettings.FlagShadowBan); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	flag, err := svc.Set(ctx, 42, internalsettings.FlagShadowBan, true)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !flag.Enabled {
		t.Fatalf("expected flag enabled")
	}
	enabled, _ := svc.IsEnabled(ctx, internalsettings.FlagShadowBan)
	if !enabled {
		t.Fatalf("expected set to be visible immediately")
	}
	var logs []models.AuditLog
	if errFind := conn.Where("target_type = ?", models.AuditTargetFeatureFlag).Find(&logs).Error; errFind != nil {
		t.Fatalf("load audit: %v", errFind)
	}
	if len(logs) != 1 || logs[0].AdminID != 42 || logs[0].TargetID != internalsettings.FlagShadowBan {
		t.Fatalf("unexpected audit rows %+v", logs)
	}

	if _, err := svc.Set(ctx, 42, "NOPE", true); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown flag, got %v", err)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()
	_ = cache.Set(ctx, map[string]bool{"A": true}, time.Minute)
	if _, ok, _ := cache.Get(ctx); !ok {
		t.Fatalf("expected hit")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := cache.Get(ctx); ok {
		t.Fatalf("expected miss after ttl")
	}
}
