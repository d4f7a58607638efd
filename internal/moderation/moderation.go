// Package moderation handles reports, auto-hide and admin account actions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/chat"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"github.com/router-for-me/marketplace-core/internal/validation"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultAutoHideThreshold is the report count that pauses a listing.
const DefaultAutoHideThreshold = 5

// countedStatuses are the report states that count toward auto-hide and trust.
var countedStatuses = []models.ReportStatus{
	models.ReportStatusOpen,
	models.ReportStatusInReview,
	models.ReportStatusResolved,
}

// Flags reports whether a feature flag is enabled.
type Flags interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

// TrustScorer recomputes cached trust scores.
type TrustScorer interface {
	RecalculateQuietly(ctx context.Context, userIDs ...uint64)
}

// Service is the moderation engine.
type Service struct {
	db        *gorm.DB
	flags     Flags
	trust     TrustScorer
	threads   *chat.Service
	notifier  notify.Notifier
	threshold int
	nowFn     func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, flags Flags, trust TrustScorer, threads *chat.Service, notifier notify.Notifier, threshold int) *Service {
	if threshold <= 0 {
		threshold = DefaultAutoHideThreshold
	}
	if threads == nil {
		threads = chat.NewService(db, flags, notifier)
	}
	return &Service{
		db:        db,
		flags:     flags,
		trust:     trust,
		threads:   threads,
		notifier:  notifier,
		threshold: threshold,
		nowFn:     time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

func (s *Service) enabled(ctx context.Context, key string) (bool, error) {
	if s.flags == nil {
		return true, nil
	}
	return s.flags.IsEnabled(ctx, key)
}

func (s *Service) recalculate(ctx context.Context, ids ...uint64) {
	if s.trust != nil {
		s.trust.RecalculateQuietly(ctx, ids...)
	}
}

// ReportInput names exactly one target and a reason.
type ReportInput struct {
	TargetUserID    *uint64 `json:"targetUserId"`
	TargetListingID *uint64 `json:"targetListingId"`
	TargetThreadID  *uint64 `json:"targetThreadId"`
	Reason          string  `json:"reason" validate:"required,min=5,max=1000"`
}

func (in ReportInput) targets() int {
	n := 0
	for _, target := range []*uint64{in.TargetUserID, in.TargetListingID, in.TargetThreadID} {
		if target != nil && *target != 0 {
			n++
		}
	}
	return n
}

// CreateReport files a report and re-evaluates auto-hide for listing targets.
func (s *Service) CreateReport(ctx context.Context, reporterID uint64, in ReportInput) (*models.Report, error) {
	on, errFlag := s.enabled(ctx, internalsettings.FlagReportingEnabled)
	if errFlag != nil {
		return nil, errFlag
	}
	if !on {
		return nil, apperr.Forbidden("reporting is currently disabled")
	}
	if in.targets() != 1 {
		return nil, apperr.BadRequest("exactly one target is required: targetUserId, targetListingId or targetThreadId")
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	if errTarget := s.checkTarget(ctx, reporterID, in); errTarget != nil {
		return nil, errTarget
	}

	autoHide := false
	if in.TargetListingID != nil {
		var errAuto error
		if autoHide, errAuto = s.enabled(ctx, internalsettings.FlagAutoHideReports); errAuto != nil {
			return nil, errAuto
		}
	}

	now := s.now()
	report := models.Report{
		ReporterID:      reporterID,
		TargetUserID:    nonZero(in.TargetUserID),
		TargetListingID: nonZero(in.TargetListingID),
		TargetThreadID:  nonZero(in.TargetThreadID),
		Status:          models.ReportStatusOpen,
		Reason:          in.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	var hidden *hideResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&report).Error; errCreate != nil {
			return fmt.Errorf("moderation: create report: %w", errCreate)
		}
		if !autoHide || report.TargetListingID == nil {
			return nil
		}
		var errHide error
		hidden, errHide = s.autoHide(tx, *report.TargetListingID, now)
		return errHide
	})
	if errTx != nil {
		return nil, errTx
	}

	s.notifyHidden(ctx, hidden)
	affected := []uint64{reporterID}
	if report.TargetUserID != nil {
		affected = append(affected, *report.TargetUserID)
	}
	s.recalculate(ctx, affected...)
	return &report, nil
}

func (s *Service) checkTarget(ctx context.Context, reporterID uint64, in ReportInput) error {
	conn := s.db.WithContext(ctx)
	switch {
	case in.TargetUserID != nil && *in.TargetUserID != 0:
		if *in.TargetUserID == reporterID {
			return apperr.BadRequest("you cannot report yourself")
		}
		return exists(conn, &models.User{}, *in.TargetUserID, "user not found")
	case in.TargetListingID != nil && *in.TargetListingID != 0:
		return exists(conn, &models.Listing{}, *in.TargetListingID, "listing not found")
	default:
		return exists(conn, &models.ChatThread{}, *in.TargetThreadID, "thread not found")
	}
}

func exists(conn *gorm.DB, model any, id uint64, message string) error {
	var count int64
	if errCount := conn.Model(model).Where("id = ?", id).Count(&count).Error; errCount != nil {
		return fmt.Errorf("moderation: check target: %w", errCount)
	}
	if count == 0 {
		return apperr.NotFound(message)
	}
	return nil
}

func nonZero(id *uint64) *uint64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

// hideResult is an auto-hide that fired inside a transaction.
type hideResult struct {
	exit        listing.Exit
	reportCount int64
}

// autoHide pauses listingID using tx once its counted reports reach the threshold.
// A listing that already left ACTIVE is left alone.
func (s *Service) autoHide(tx *gorm.DB, listingID uint64, now time.Time) (*hideResult, error) {
	var count int64
	if errCount := tx.Model(&models.Report{}).
		Where("target_listing_id = ? AND status IN ?", listingID, countedStatuses).
		Count(&count).Error; errCount != nil {
		return nil, fmt.Errorf("moderation: count listing reports: %w", errCount)
	}
	if count < int64(s.threshold) {
		return nil, nil
	}
	exit, errPause := listing.Pause(tx, listingID, now)
	if errPause != nil {
		if errors.Is(errPause, listing.ErrNotActive) {
			return nil, nil
		}
		return nil, errPause
	}
	log.WithFields(log.Fields{
		"listing_id":   listingID,
		"report_count": count,
		"threshold":    s.threshold,
	}).Info("listing auto-hidden by reports")
	return &hideResult{exit: exit, reportCount: count}, nil
}

func (s *Service) notifyHidden(ctx context.Context, hidden *hideResult) {
	if hidden == nil {
		return
	}
	s.notifyExit(ctx, hidden.exit, "A listing was auto-hidden due to reports.", map[string]any{
		"reason":      "auto_hide_reports",
		"reportCount": hidden.reportCount,
		"threshold":   s.threshold,
	})
}

// notifyExit tells the seller and every buyer whose thread closed.
func (s *Service) notifyExit(ctx context.Context, exit listing.Exit, body string, data map[string]any) {
	if s.notifier == nil || len(exit.Listings) == 0 {
		return
	}
	data["listingIds"] = exit.IDs()
	s.notifier.Notify(ctx, notify.Message{
		UserIDs: notify.Dedupe(append(exit.Sellers(), exit.Buyers()...)),
		Type:    models.NotificationListingDeactivated,
		Title:   "Listing deactivated",
		Body:    body,
		Data:    data,
	})
}

// Queue returns OPEN and IN_REVIEW reports, newest first.
func (s *Service) Queue(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var reports []models.Report
	if errFind := s.db.WithContext(ctx).
		Where("status IN ?", []models.ReportStatus{models.ReportStatusOpen, models.ReportStatusInReview}).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&reports).Error; errFind != nil {
		return nil, fmt.Errorf("moderation: list queue: %w", errFind)
	}
	return reports, nil
}

// ActionInput moves a report to a new review state.
type ActionInput struct {
	Status models.ReportStatus `json:"status" validate:"required,oneof=OPEN IN_REVIEW RESOLVED REJECTED"`
}

// ApplyAction records an admin decision on a report.
func (s *Service) ApplyAction(ctx context.Context, adminID, reportID uint64, in ActionInput) (*models.Report, error) {
	in.Status = models.ReportStatus(strings.ToUpper(strings.TrimSpace(string(in.Status))))
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	autoHide, errFlag := s.enabled(ctx, internalsettings.FlagAutoHideReports)
	if errFlag != nil {
		return nil, errFlag
	}

	now := s.now()
	var report models.Report
	var hidden *hideResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&report, reportID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("report not found")
			}
			return fmt.Errorf("moderation: load report: %w", errFind)
		}
		previous := report.Status
		var resolvedAt *time.Time
		if in.Status == models.ReportStatusResolved || in.Status == models.ReportStatusRejected {
			resolvedAt = &now
		}
		if errUpdate := tx.Model(&report).Updates(map[string]any{
			"status":      in.Status,
			"resolved_at": resolvedAt,
			"updated_at":  now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: update report: %w", errUpdate)
		}
		report.Status = in.Status
		report.ResolvedAt = resolvedAt
		report.UpdatedAt = now

		if errAudit := audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "REPORT_ACTION",
			TargetType: models.AuditTargetReport,
			TargetID:   strconv.FormatUint(report.ID, 10),
			Metadata:   map[string]any{"previousStatus": previous, "status": in.Status},
		}, now); errAudit != nil {
			return errAudit
		}
		if !autoHide || report.TargetListingID == nil {
			return nil
		}
		var errHide error
		hidden, errHide = s.autoHide(tx, *report.TargetListingID, now)
		return errHide
	})
	if errTx != nil {
		return nil, errTx
	}

	s.notifyHidden(ctx, hidden)
	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Message{
			UserIDs: []uint64{report.ReporterID},
			Type:    models.NotificationReportAction,
			Title:   "Report updated",
			Body:    fmt.Sprintf("Your report is now %s.", strings.ToLower(strings.ReplaceAll(string(report.Status), "_", " "))),
			Data:    map[string]any{"reportId": report.ID, "status": report.Status},
		})
	}
	affected := []uint64{report.ReporterID}
	if report.TargetUserID != nil {
		affected = append(affected, *report.TargetUserID)
	}
	s.recalculate(ctx, affected...)
	return &report, nil
}
