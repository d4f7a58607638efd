// Package chat coordinates buyer and seller threads gated by listing state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"gorm.io/gorm"
)

const previewLength = 80

// Flags reports whether a feature flag is enabled.
type Flags interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

// Service owns thread open/closed state and message delivery.
type Service struct {
	db       *gorm.DB
	flags    Flags
	notifier notify.Notifier
	nowFn    func() time.Time
}

// NewService constructs a Service. A nil flags source treats every flag as enabled.
func NewService(db *gorm.DB, flags Flags, notifier notify.Notifier) *Service {
	return &Service{db: db, flags: flags, notifier: notifier, nowFn: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// ListingRef is the listing summary shown with a thread.
type ListingRef struct {
	ID     uint64               `json:"id"`
	Title  string               `json:"title"`
	Status models.ListingStatus `json:"status"`
}

// ThreadView is a thread with its listing summary.
type ThreadView struct {
	Thread  models.ChatThread
	Listing ListingRef
}

// UpsertThread returns the buyer's thread for listingID, creating it on first contact.
func (s *Service) UpsertThread(ctx context.Context, buyerID, listingID uint64) (*models.ChatThread, error) {
	if errFlag := s.requireChat(ctx); errFlag != nil {
		return nil, errFlag
	}
	var listing models.Listing
	if errFind := s.db.WithContext(ctx).First(&listing, listingID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, fmt.Errorf("chat: load listing: %w", errFind)
	}
	if listing.UserID == buyerID {
		return nil, apperr.BadRequest("you cannot chat on your own listing")
	}
	if listing.Status != models.ListingStatusActive {
		return nil, apperr.BadRequest("chat is only available for active listings")
	}
	if !listing.AllowChat {
		return nil, apperr.Forbidden("chat is disabled for this listing")
	}

	thread, errFind := s.findThread(ctx, listing.ID, buyerID, listing.UserID)
	if errFind != nil {
		return nil, errFind
	}
	if thread == nil {
		created := models.ChatThread{
			ListingID: listing.ID,
			BuyerID:   buyerID,
			SellerID:  listing.UserID,
			Status:    models.ThreadStatusOpen,
		}
		errCreate := s.db.WithContext(ctx).Create(&created).Error
		if errCreate == nil {
			return &created, nil
		}
		if !db.IsUniqueViolation(errCreate) {
			return nil, fmt.Errorf("chat: create thread: %w", errCreate)
		}
		// Lost the race to a concurrent first contact.
		thread, errFind = s.findThread(ctx, listing.ID, buyerID, listing.UserID)
		if errFind != nil {
			return nil, errFind
		}
		if thread == nil {
			return nil, fmt.Errorf("chat: thread vanished after conflict")
		}
	}

	if thread.Status == models.ThreadStatusClosed && reactivatedSince(listing, thread) {
		now := s.nowFn().UTC()
		if errUpdate := s.db.WithContext(ctx).Model(thread).Updates(map[string]any{
			"status":     models.ThreadStatusOpen,
			"closed_at":  nil,
			"updated_at": now,
		}).Error; errUpdate != nil {
			return nil, fmt.Errorf("chat: reopen thread: %w", errUpdate)
		}
		thread.Status = models.ThreadStatusOpen
		thread.ClosedAt = nil
	}
	return thread, nil
}

// reactivatedSince reports whether the listing started a new activation after the thread closed.
func reactivatedSince(listing models.Listing, thread *models.ChatThread) bool {
	if listing.PublishedAt == nil {
		return false
	}
	if thread.ClosedAt == nil {
		return true
	}
	return listing.PublishedAt.After(*thread.ClosedAt)
}

func (s *Service) findThread(ctx context.Context, listingID, buyerID, sellerID uint64) (*models.ChatThread, error) {
	var thread models.ChatThread
	errFind := s.db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ? AND seller_id = ?", listingID, buyerID, sellerID).
		First(&thread).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("chat: load thread: %w", errFind)
	}
	return &thread, nil
}

// SendMessage appends a message and bumps the thread's lastMessageAt atomically.
func (s *Service) SendMessage(ctx context.Context, senderID, threadID uint64, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if len([]rune(content)) > internalsettings.MaxChatMessageLength {
		return nil, apperr.Validation(fmt.Sprintf("content must be at most %d characters", internalsettings.MaxChatMessageLength))
	}
	if errFlag := s.requireChat(ctx); errFlag != nil {
		return nil, errFlag
	}

	now := s.nowFn().UTC()
	var thread models.ChatThread
	message := models.ChatMessage{ThreadID: threadID, SenderID: senderID, Content: content, CreatedAt: now}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&thread, threadID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("thread not found")
			}
			return fmt.Errorf("chat: load thread: %w", errFind)
		}
		if senderID != thread.BuyerID && senderID != thread.SellerID {
			return apperr.Forbidden("not allowed to send messages in this thread")
		}
		if thread.Status != models.ThreadStatusOpen {
			return apperr.BadRequest("chat thread is closed")
		}
		if errCreate := tx.Create(&message).Error; errCreate != nil {
			return fmt.Errorf("chat: create message: %w", errCreate)
		}
		res := tx.Model(&models.ChatThread{}).
			Where("id = ? AND status = ?", threadID, models.ThreadStatusOpen).
			Updates(map[string]any{"last_message_at": now, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("chat: bump thread: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.BadRequest("chat thread is closed")
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	receiverID := thread.BuyerID
	if senderID == thread.BuyerID {
		receiverID = thread.SellerID
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Message{
			UserIDs: []uint64{receiverID},
			Type:    models.NotificationChatMessage,
			Title:   "New chat message",
			Body:    notify.Preview(content, previewLength),
			Data:    map[string]any{"threadId": threadID, "senderId": senderID},
		})
	}
	return &message, nil
}

// ListThreads returns the user's threads, most recently active first.
func (s *Service) ListThreads(ctx context.Context, userID uint64) ([]ThreadView, error) {
	var threads []models.ChatThread
	errFind := s.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").Order("id DESC").
		Find(&threads).Error
	if errFind != nil {
		return nil, fmt.Errorf("chat: list threads: %w", errFind)
	}
	if len(threads) == 0 {
		return []ThreadView{}, nil
	}
	listingIDs := make([]uint64, 0, len(threads))
	for _, thread := range threads {
		listingIDs = append(listingIDs, thread.ListingID)
	}
	var listings []models.Listing
	if errFind = s.db.WithContext(ctx).Select("id", "title", "status").Where("id IN ?", listingIDs).Find(&listings).Error; errFind != nil {
		return nil, fmt.Errorf("chat: load thread listings: %w", errFind)
	}
	byID := make(map[uint64]ListingRef, len(listings))
	for _, listing := range listings {
		byID[listing.ID] = ListingRef{ID: listing.ID, Title: listing.Title, Status: listing.Status}
	}
	views := make([]ThreadView, 0, len(threads))
	for _, thread := range threads {
		views = append(views, ThreadView{Thread: thread, Listing: byID[thread.ListingID]})
	}
	return views, nil
}

// ListMessages returns a thread's messages oldest first. Only participants may read.
func (s *Service) ListMessages(ctx context.Context, userID, threadID uint64) ([]models.ChatMessage, error) {
	var thread models.ChatThread
	if errFind := s.db.WithContext(ctx).Select("id", "buyer_id", "seller_id").First(&thread, threadID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("thread not found")
		}
		return nil, fmt.Errorf("chat: load thread: %w", errFind)
	}
	if userID != thread.BuyerID && userID != thread.SellerID {
		return nil, apperr.Forbidden("not allowed to view this thread")
	}
	var messages []models.ChatMessage
	if errFind := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at ASC").Order("id ASC").Find(&messages).Error; errFind != nil {
		return nil, fmt.Errorf("chat: list messages: %w", errFind)
	}
	return messages, nil
}

// CloseThread closes one thread. Closing a closed thread is a no-op.
func (s *Service) CloseThread(ctx context.Context, tx *gorm.DB, threadID uint64) (*models.ChatThread, error) {
	conn := tx
	if conn == nil {
		conn = s.db.WithContext(ctx)
	}
	var thread models.ChatThread
	if errFind := conn.First(&thread, threadID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("thread not found")
		}
		return nil, fmt.Errorf("chat: load thread: %w", errFind)
	}
	if thread.Status == models.ThreadStatusClosed {
		return &thread, nil
	}
	now := s.nowFn().UTC()
	if errUpdate := conn.Model(&thread).Updates(map[string]any{
		"status":     models.ThreadStatusClosed,
		"closed_at":  now,
		"updated_at": now,
	}).Error; errUpdate != nil {
		return nil, fmt.Errorf("chat: close thread: %w", errUpdate)
	}
	thread.Status = models.ThreadStatusClosed
	thread.ClosedAt = &now
	return &thread, nil
}

// CloseOpenThreads closes every OPEN thread on listingIDs using tx and returns them.
func CloseOpenThreads(tx *gorm.DB, listingIDs []uint64, now time.Time) ([]models.ChatThread, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	var threads []models.ChatThread
	if errFind := tx.Where("listing_id IN ? AND status = ?", listingIDs, models.ThreadStatusOpen).Find(&threads).Error; errFind != nil {
		return nil, fmt.Errorf("chat: load open threads: %w", errFind)
	}
	if len(threads) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(threads))
	for _, thread := range threads {
		ids = append(ids, thread.ID)
	}
	if errUpdate := tx.Model(&models.ChatThread{}).
		Where("id IN ? AND status = ?", ids, models.ThreadStatusOpen).
		Updates(map[string]any{
			"status":     models.ThreadStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		}).Error; errUpdate != nil {
		return nil, fmt.Errorf("chat: close threads: %w", errUpdate)
	}
	for i := range threads {
		threads[i].Status = models.ThreadStatusClosed
		threads[i].ClosedAt = &now
	}
	return threads, nil
}

func (s *Service) requireChat(ctx context.Context) error {
	if s.flags == nil {
		return nil
	}
	enabled, errFlag := s.flags.IsEnabled(ctx, internalsettings.FlagChatEnabled)
	if errFlag != nil {
		return errFlag
	}
	if !enabled {
		return apperr.Forbidden("chat is currently disabled")
	}
	return nil
}
