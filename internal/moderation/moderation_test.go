package moderation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"gorm.io/gorm"
)

type flagSet map[string]bool

func (f flagSet) IsEnabled(_ context.Context, key string) (bool, error) {
	return f[key], nil
}

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	listings *listing.Service
	notifier *notify.Recorder
	flags    flagSet
	now      time.Time
	category models.Category
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "moderation.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	f := &fixture{
		conn:     conn,
		notifier: &notify.Recorder{},
		flags: flagSet{
			internalsettings.FlagAutoHideReports:  true,
			internalsettings.FlagReportingEnabled: true,
			internalsettings.FlagChatEnabled:      true,
		},
		now: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.listings = listing.NewService(conn, nil, nil, f.flags, 0)
	f.listings.SetClock(clock)
	f.svc = NewService(conn, f.flags, nil, nil, f.notifier, 5)
	f.svc.SetClock(clock)
	f.category = models.Category{Name: "Mobiles", Slug: "mobiles"}
	if errCreate := conn.Create(&f.category).Error; errCreate != nil {
		t.Fatalf("create category: %v", errCreate)
	}
	return f
}

func (f *fixture) user(t *testing.T) models.User {
	t.Helper()
	f.seq++
	user := models.User{
		FullName:     fmt.Sprintf("User %d", f.seq),
		FatherName:   "Father",
		CNIC:         fmt.Sprintf("35202-20000%02d-1", f.seq),
		Phone:        fmt.Sprintf("+9230200000%02d", f.seq),
		Email:        fmt.Sprintf("user%d@example.pk", f.seq),
		PasswordHash: "x",
		City:         "Islamabad",
		DateOfBirth:  time.Date(1991, 7, 1, 0, 0, 0, 0, time.UTC),
		Gender:       models.GenderOther,
	}
	if errCreate := f.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func (f *fixture) activeListing(t *testing.T, sellerID uint64) *models.Listing {
	t.Helper()
	ctx := context.Background()
	draft, errCreate := f.listings.Create(ctx, sellerID, listing.CreateInput{
		CategoryID:  f.category.ID,
		Title:       "iPhone 13",
		Description: "128GB, PTA approved",
		Price:       150000,
		AllowChat:   true,
		Media:       []listing.MediaInput{{Type: models.MediaTypeImage, URL: "https://cdn.example.pk/p.jpg"}},
	})
	if errCreate != nil {
		t.Fatalf("create listing: %v", errCreate)
	}
	active, errActivate := f.listings.Activate(ctx, sellerID, draft.ID)
	if errActivate != nil {
		t.Fatalf("activate listing: %v", errActivate)
	}
	return active
}

func (f *fixture) thread(t *testing.T, item *models.Listing, buyerID uint64) models.ChatThread {
	t.Helper()
	thread := models.ChatThread{ListingID: item.ID, BuyerID: buyerID, SellerID: item.UserID, Status: models.ThreadStatusOpen}
	if errCreate := f.conn.Create(&thread).Error; errCreate != nil {
		t.Fatalf("create thread: %v", errCreate)
	}
	return thread
}

func (f *fixture) reportListing(t *testing.T, listingID uint64) *models.Report {
	t.Helper()
	reporter := f.user(t)
	id := listingID
	report, errReport := f.svc.CreateReport(context.Background(), reporter.ID, ReportInput{TargetListingID: &id, Reason: "looks like a scam"})
	if errReport != nil {
		t.Fatalf("create report: %v", errReport)
	}
	return report
}

func (f *fixture) listingStatus(t *testing.T, id uint64) models.ListingStatus {
	t.Helper()
	var row models.Listing
	if errFind := f.conn.First(&row, id).Error; errFind != nil {
		t.Fatalf("load listing: %v", errFind)
	}
	return row.Status
}

func TestAutoHideAtThreshold(t *testing.T) {
	f := newFixture(t)
	seller := f.user(t)
	buyer := f.user(t)
	item := f.activeListing(t, seller.ID)
	thread := f.thread(t, item, buyer.ID)

	for i := 0; i < 4; i++ {
		f.reportListing(t, item.ID)
	}
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusActive {
		t.Fatalf("expected ACTIVE below threshold, got %s", status)
	}

	f.reportListing(t, item.ID)
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusPaused {
		t.Fatalf("expected PAUSED at threshold, got %s", status)
	}
	var closed models.ChatThread
	if errFind := f.conn.First(&closed, thread.ID).Error; errFind != nil {
		t.Fatalf("load thread: %v", errFind)
	}
	if closed.Status != models.ThreadStatusClosed {
		t.Fatalf("expected thread closed, got %s", closed.Status)
	}
	var locks int64
	f.conn.Model(&models.UserCategoryActiveListing{}).Where("listing_id = ?", item.ID).Count(&locks)
	if locks != 0 {
		t.Fatalf("expected category lock released, got %d", locks)
	}
	if got := f.notifier.CountFor(seller.ID); got != 1 {
		t.Fatalf("seller notifications = %d", got)
	}
	if got := f.notifier.CountFor(buyer.ID); got != 1 {
		t.Fatalf("buyer notifications = %d", got)
	}

	sixth := f.reportListing(t, item.ID)
	if _, errAction := f.svc.ApplyAction(context.Background(), f.user(t).ID, sixth.ID, ActionInput{Status: models.ReportStatusInReview}); errAction != nil {
		t.Fatalf("apply action: %v", errAction)
	}
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusPaused {
		t.Fatalf("expected listing to stay PAUSED, got %s", status)
	}
	if got := f.notifier.CountFor(seller.ID); got != 1 {
		t.Fatalf("seller notified again: %d", got)
	}
	if got := f.notifier.CountFor(buyer.ID); got != 1 {
		t.Fatalf("buyer notified again: %d", got)
	}
}

func TestAutoHideRespectsFlag(t *testing.T) {
	f := newFixture(t)
	f.flags[internalsettings.FlagAutoHideReports] = false
	seller := f.user(t)
	item := f.activeListing(t, seller.ID)
	var last *models.Report
	for i := 0; i < 6; i++ {
		last = f.reportListing(t, item.ID)
	}
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusActive {
		t.Fatalf("expected ACTIVE with auto-hide off, got %s", status)
	}

	f.flags[internalsettings.FlagAutoHideReports] = true
	// A report status change re-runs the rule.
	if _, errAction := f.svc.ApplyAction(context.Background(), f.user(t).ID, last.ID, ActionInput{Status: models.ReportStatusInReview}); errAction != nil {
		t.Fatalf("apply action: %v", errAction)
	}
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusPaused {
		t.Fatalf("expected PAUSED once enabled, got %s", status)
	}
	if got := f.notifier.CountFor(seller.ID); got != 1 {
		t.Fatalf("seller notifications = %d", got)
	}
}

func TestRejectedReportsDoNotCount(t *testing.T) {
	f := newFixture(t)
	seller := f.user(t)
	admin := f.user(t)
	item := f.activeListing(t, seller.ID)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		report := f.reportListing(t, item.ID)
		if i == 0 {
			if _, errAction := f.svc.ApplyAction(ctx, admin.ID, report.ID, ActionInput{Status: models.ReportStatusRejected}); errAction != nil {
				t.Fatalf("reject: %v", errAction)
			}
		}
	}
	f.reportListing(t, item.ID)
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusActive {
		t.Fatalf("rejected report must not count, got %s", status)
	}
	f.reportListing(t, item.ID)
	if status := f.listingStatus(t, item.ID); status != models.ListingStatusPaused {
		t.Fatalf("expected PAUSED, got %s", status)
	}
}

func TestCreateReportTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := f.user(t)
	other := f.user(t)
	missing := uint64(9999)
	otherID := other.ID
	selfID := reporter.ID

	_, errNone := f.svc.CreateReport(ctx, reporter.ID, ReportInput{Reason: "spam account"})
	if apperr.KindOf(errNone) != apperr.KindBadRequest {
		t.Fatalf("expected BadRequest for no target, got %v", errNone)
	}
	_, errTwo := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &otherID, TargetListingID: &missing, Reason: "spam account"})
	if apperr.KindOf(errTwo) != apperr.KindBadRequest {
		t.Fatalf("expected BadRequest for two targets, got %v", errTwo)
	}
	_, errMissing := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetListingID: &missing, Reason: "spam listing"})
	if apperr.KindOf(errMissing) != apperr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", errMissing)
	}
	_, errSelf := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &selfID, Reason: "spam account"})
	if apperr.KindOf(errSelf) != apperr.KindBadRequest {
		t.Fatalf("expected BadRequest for self report, got %v", errSelf)
	}
	_, errShort := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &otherID, Reason: "bad"})
	if apperr.KindOf(errShort) != apperr.KindValidation {
		t.Fatalf("expected Validation for short reason, got %v", errShort)
	}

	report, errReport := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &otherID, Reason: "abusive messages"})
	if errReport != nil || report.Status != models.ReportStatusOpen {
		t.Fatalf("create report: %v", errReport)
	}
	queue, errQueue := f.svc.Queue(ctx, 0)
	if errQueue != nil || len(queue) != 1 || queue[0].ID != report.ID {
		t.Fatalf("unexpected queue %v %v", queue, errQueue)
	}

	f.flags[internalsettings.FlagReportingEnabled] = false
	_, errDisabled := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &otherID, Reason: "abusive messages"})
	if apperr.KindOf(errDisabled) != apperr.KindForbidden {
		t.Fatalf("expected Forbidden when reporting disabled, got %v", errDisabled)
	}
}

func TestApplyActionNotifiesReporter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := f.user(t)
	target := f.user(t)
	admin := f.user(t)
	targetID := target.ID

	report, errReport := f.svc.CreateReport(ctx, reporter.ID, ReportInput{TargetUserID: &targetID, Reason: "fake profile"})
	if errReport != nil {
		t.Fatalf("create report: %v", errReport)
	}
	updated, errAction := f.svc.ApplyAction(ctx, admin.ID, report.ID, ActionInput{Status: "resolved"})
	if errAction != nil {
		t.Fatalf("apply action: %v", errAction)
	}
	if updated.Status != models.ReportStatusResolved || updated.ResolvedAt == nil {
		t.Fatalf("unexpected report %+v", updated)
	}
	msgs := f.notifier.Messages()
	if len(msgs) != 1 || msgs[0].Type != models.NotificationReportAction || msgs[0].UserIDs[0] != reporter.ID {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
	var audits int64
	f.conn.Model(&models.AuditLog{}).Where("action = ? AND target_id = ?", "REPORT_ACTION", fmt.Sprint(report.ID)).Count(&audits)
	if audits != 1 {
		t.Fatalf("expected one audit entry, got %d", audits)
	}

	_, errMissing := f.svc.ApplyAction(ctx, admin.ID, 4242, ActionInput{Status: models.ReportStatusRejected})
	if apperr.KindOf(errMissing) != apperr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", errMissing)
	}
}

func TestShadowBanReranksActiveListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t)
	admin := f.user(t)
	item := f.activeListing(t, seller.ID)

	user, errBan := f.svc.ShadowBan(ctx, admin.ID, seller.ID, true)
	if errBan != nil || !user.ShadowBanned {
		t.Fatalf("shadow ban: %v", errBan)
	}
	var row models.Listing
	f.conn.First(&row, item.ID)
	if row.RankingScore != 0 {
		t.Fatalf("expected rank 0, got %v", row.RankingScore)
	}

	if _, errLift := f.svc.ShadowBan(ctx, admin.ID, seller.ID, false); errLift != nil {
		t.Fatalf("lift shadow ban: %v", errLift)
	}
	f.conn.First(&row, item.ID)
	if row.RankingScore != 1 {
		t.Fatalf("expected rank 1, got %v", row.RankingScore)
	}
	if len(f.notifier.Messages()) != 0 {
		t.Fatalf("shadow ban must not notify the user")
	}
}

func TestSuspendAndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t)
	buyer := f.user(t)
	admin := f.user(t)
	item := f.activeListing(t, seller.ID)
	f.thread(t, item, buyer.ID)

	paused, errDeactivate := f.svc.DeactivateListing(ctx, admin.ID, item.ID)
	if errDeactivate != nil || paused.Status != models.ListingStatusPaused {
		t.Fatalf("deactivate: %v", errDeactivate)
	}
	if f.notifier.CountFor(seller.ID) != 1 || f.notifier.CountFor(buyer.ID) != 1 {
		t.Fatalf("expected seller and buyer notified once")
	}
	_, errAgain := f.svc.DeactivateListing(ctx, admin.ID, item.ID)
	if apperr.KindOf(errAgain) != apperr.KindBadRequest {
		t.Fatalf("expected BadRequest for paused listing, got %v", errAgain)
	}

	user, errSuspend := f.svc.Suspend(ctx, admin.ID, seller.ID, true)
	if errSuspend != nil || !user.IsBlocked {
		t.Fatalf("suspend: %v", errSuspend)
	}
	if f.notifier.CountFor(seller.ID) != 2 {
		t.Fatalf("expected account action notification")
	}
	_, errMissing := f.svc.Suspend(ctx, admin.ID, 777, true)
	if apperr.KindOf(errMissing) != apperr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", errMissing)
	}

	var audits int64
	f.conn.Model(&models.AuditLog{}).Where("admin_id = ?", admin.ID).Count(&audits)
	if audits != 2 {
		t.Fatalf("expected 2 audit entries, got %d", audits)
	}
}

func TestCloseThreadIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t)
	buyer := f.user(t)
	admin := f.user(t)
	item := f.activeListing(t, seller.ID)
	thread := f.thread(t, item, buyer.ID)

	closed, errClose := f.svc.CloseThread(ctx, admin.ID, thread.ID)
	if errClose != nil || closed.Status != models.ThreadStatusClosed {
		t.Fatalf("close thread: %v", errClose)
	}
	_, errMissing := f.svc.CloseThread(ctx, admin.ID, 999)
	if apperr.KindOf(errMissing) != apperr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", errMissing)
	}
	var audits int64
	f.conn.Model(&models.AuditLog{}).Where("action = ?", "CLOSE_THREAD").Count(&audits)
	if audits != 1 {
		t.Fatalf("expected one audit entry, got %d", audits)
	}
}
