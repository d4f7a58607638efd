package fingerprint

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "::ffff:203.0.113.9, 10.0.0.2")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}
	req.Header.Del("X-Forwarded-For")
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote ip, got %q", got)
	}
}

func TestHashDependsOnSaltAndDevice(t *testing.T) {
	a := Hash("salt", "1.1.1.1", "ua")
	if a != Hash("salt", "1.1.1.1", "ua") {
		t.Fatalf("hash must be stable")
	}
	if a == Hash("other", "1.1.1.1", "ua") || a == Hash("salt", "1.1.1.2", "ua") || a == Hash("salt", "1.1.1.1", "ua2") {
		t.Fatalf("hash must change with salt, ip and user agent")
	}
}

func TestRecordUpsertsSighting(t *testing.T) {
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "fp.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	user := models.User{FullName: "A", FatherName: "B", CNIC: "1", Phone: "+923001234567", Email: "a@example.com", PasswordHash: "x", City: "Lahore", Gender: models.GenderMale}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}

	store := NewStore(conn)
	device := Device{IP: "1.1.1.1", UserAgent: "ua", Hash: Hash("salt", "1.1.1.1", "ua")}
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := store.Record(ctx, nil, user.ID, device, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, nil, user.ID, device, first.Add(time.Hour)); err != nil {
		t.Fatalf("record again: %v", err)
	}
	rows, err := store.List(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one device row, got %d", len(rows))
	}
	if !rows[0].LastSeenAt.Equal(first.Add(time.Hour)) {
		t.Fatalf("expected last seen to advance, got %s", rows[0].LastSeenAt)
	}
	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if len(reloaded.RiskSignals) == 0 {
		t.Fatalf("expected risk signals to be recorded")
	}
}
