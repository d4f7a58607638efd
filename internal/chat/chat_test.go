package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"gorm.io/gorm"
)

type staticFlags map[string]bool

func (f staticFlags) IsEnabled(_ context.Context, key string) (bool, error) {
	return f[key], nil
}

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	notifier *notify.Recorder
	now      time.Time
	seller   models.User
	buyer    models.User
	other    models.User
	category models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "chat.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	f := &fixture{
		conn:     conn,
		notifier: &notify.Recorder{},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(conn, nil, f.notifier)
	f.svc.SetClock(func() time.Time { return f.now })
	f.seller = f.createUser(t, 1)
	f.buyer = f.createUser(t, 2)
	f.other = f.createUser(t, 3)
	f.category = models.Category{Name: "Mobiles", Slug: "mobiles"}
	if errCreate := conn.Create(&f.category).Error; errCreate != nil {
		t.Fatalf("create category: %v", errCreate)
	}
	return f
}

func (f *fixture) createUser(t *testing.T, n int) models.User {
	t.Helper()
	user := models.User{
		FullName:     fmt.Sprintf("User %d", n),
		FatherName:   "Father",
		CNIC:         fmt.Sprintf("35202-000000%d-1", n),
		Phone:        fmt.Sprintf("+92300000000%d", n),
		Email:        fmt.Sprintf("user%d@example.pk", n),
		PasswordHash: "x",
		City:         "Karachi",
		DateOfBirth:  time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:       models.GenderMale,
	}
	if errCreate := f.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func (f *fixture) createListing(t *testing.T, status models.ListingStatus, allowChat bool) models.Listing {
	t.Helper()
	published := f.now.Add(-time.Hour)
	listing := models.Listing{
		UserID:      f.seller.ID,
		CategoryID:  f.category.ID,
		Title:       "iPhone 13",
		Description: "Lightly used",
		Price:       150000,
		AllowChat:   allowChat,
		Status:      status,
		PublishedAt: &published,
	}
	if errCreate := f.conn.Create(&listing).Error; errCreate != nil {
		t.Fatalf("create listing: %v", errCreate)
	}
	return listing
}

func TestUpsertThreadRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.createListing(t, models.ListingStatusActive, true)
	paused := f.createListing(t, models.ListingStatusPaused, true)
	silent := f.createListing(t, models.ListingStatusActive, false)

	if _, err := f.svc.UpsertThread(ctx, f.seller.ID, active.ID); !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for own listing, got %v", err)
	}
	if _, err := f.svc.UpsertThread(ctx, f.buyer.ID, paused.ID); !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for paused listing, got %v", err)
	}
	if _, err := f.svc.UpsertThread(ctx, f.buyer.ID, silent.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden when chat disabled, got %v", err)
	}
	if _, err := f.svc.UpsertThread(ctx, f.buyer.ID, 999); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	first, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID || first.SellerID != f.seller.ID {
		t.Fatalf("expected idempotent thread, got %d and %d", first.ID, second.ID)
	}
}

func TestUpsertThreadHonorsChatFlag(t *testing.T) {
	f := newFixture(t)
	f.svc.flags = staticFlags{}
	active := f.createListing(t, models.ListingStatusActive, true)
	if _, err := f.svc.UpsertThread(context.Background(), f.buyer.ID, active.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden with chat flag off, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.createListing(t, models.ListingStatusActive, true)
	thread, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := f.svc.SendMessage(ctx, f.other.ID, thread.ID, "hi"); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, f.buyer.ID, thread.ID, "   "); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation for blank content, got %v", err)
	}

	long := strings.Repeat("x", 120)
	msg, err := f.svc.SendMessage(ctx, f.buyer.ID, thread.ID, long)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var stored models.ChatThread
	if errFind := f.conn.First(&stored, thread.ID).Error; errFind != nil {
		t.Fatalf("reload thread: %v", errFind)
	}
	if stored.LastMessageAt == nil || !stored.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatalf("expected lastMessageAt bumped to message time, got %v", stored.LastMessageAt)
	}
	msgs := f.notifier.Messages()
	if len(msgs) != 1 || msgs[0].UserIDs[0] != f.seller.ID || len(msgs[0].Body) != 80 {
		t.Fatalf("unexpected notifications %+v", msgs)
	}

	if _, err := CloseOpenThreads(f.conn, []uint64{active.ID}, f.now); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, f.seller.ID, thread.ID, "still there?"); !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request on closed thread, got %v", err)
	}

	messages, err := f.svc.ListMessages(ctx, f.seller.ID, thread.ID)
	if err != nil || len(messages) != 1 {
		t.Fatalf("expected one message, got %d err=%v", len(messages), err)
	}
	if _, err := f.svc.ListMessages(ctx, f.other.ID, thread.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden read for outsider, got %v", err)
	}
}

func TestClosedThreadReopensOnlyAfterNewActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.createListing(t, models.ListingStatusActive, true)
	thread, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := f.svc.CloseThread(ctx, nil, thread.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert after close: %v", err)
	}
	if again.Status != models.ThreadStatusClosed {
		t.Fatalf("expected thread to stay closed within the same activation")
	}

	f.now = f.now.Add(time.Hour)
	republished := f.now
	if errUpdate := f.conn.Model(&active).Update("published_at", republished).Error; errUpdate != nil {
		t.Fatalf("republish: %v", errUpdate)
	}
	reopened, err := f.svc.UpsertThread(ctx, f.buyer.ID, active.ID)
	if err != nil {
		t.Fatalf("upsert after republish: %v", err)
	}
	if reopened.Status != models.ThreadStatusOpen || reopened.ID != thread.ID {
		t.Fatalf("expected the same thread reopened, got %+v", reopened)
	}

	views, err := f.svc.ListThreads(ctx, f.buyer.ID)
	if err != nil || len(views) != 1 || views[0].Listing.Title != "iPhone 13" {
		t.Fatalf("unexpected thread list %+v err=%v", views, err)
	}
}
