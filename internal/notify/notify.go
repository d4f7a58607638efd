// Package notify delivers user-facing alerts outside the primary transaction.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/marketplace-core/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultTimeout = 5 * time.Second

// Message is one alert addressed to one or more users.
type Message struct {
	UserIDs []uint64
	Type    models.NotificationType
	Title   string
	Body    string
	Data    map[string]any
}

// Notifier accepts alerts without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Pusher sends an alert to registered devices.
type Pusher interface {
	Push(ctx context.Context, tokens []models.DeviceToken, msg Message) error
}

// LogPusher writes push deliveries to the log.
type LogPusher struct{}

// Push logs one line per device.
func (LogPusher) Push(_ context.Context, tokens []models.DeviceToken, msg Message) error {
	for _, token := range tokens {
		log.WithFields(log.Fields{
			"user_id":  token.UserID,
			"platform": token.Platform,
			"type":     msg.Type,
		}).Debug("push notification")
	}
	return nil
}

// Dispatcher persists notifications and pushes them to devices.
type Dispatcher struct {
	db      *gorm.DB
	pusher  Pusher
	timeout time.Duration
	nowFn   func() time.Time
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. A nil pusher uses LogPusher.
func NewDispatcher(db *gorm.DB, pusher Pusher) *Dispatcher {
	if pusher == nil {
		pusher = LogPusher{}
	}
	return &Dispatcher{db: db, pusher: pusher, timeout: defaultTimeout, nowFn: time.Now}
}

// Notify delivers msg in the background. Failures are logged.
func (d *Dispatcher) Notify(_ context.Context, msg Message) {
	msg.UserIDs = Dedupe(msg.UserIDs)
	if len(msg.UserIDs) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if errDeliver := d.Deliver(ctx, msg); errDeliver != nil {
			log.WithError(errDeliver).WithField("type", msg.Type).Warn("notify: delivery failed")
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver persists one row per recipient and pushes to their devices.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	userIDs := Dedupe(msg.UserIDs)
	if len(userIDs) == 0 {
		return nil
	}
	var data datatypes.JSON
	if len(msg.Data) > 0 {
		payload, errMarshal := json.Marshal(msg.Data)
		if errMarshal != nil {
			return fmt.Errorf("notify: marshal data: %w", errMarshal)
		}
		data = datatypes.JSON(payload)
	}
	now := d.nowFn().UTC()
	rows := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, models.Notification{
			UserID:    userID,
			Type:      msg.Type,
			Title:     msg.Title,
			Body:      msg.Body,
			Data:      data,
			CreatedAt: now,
		})
	}
	if errCreate := d.db.WithContext(ctx).Create(&rows).Error; errCreate != nil {
		return fmt.Errorf("notify: create notifications: %w", errCreate)
	}

	var tokens []models.DeviceToken
	if errFind := d.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&tokens).Error; errFind != nil {
		return fmt.Errorf("notify: load device tokens: %w", errFind)
	}
	if len(tokens) == 0 {
		return nil
	}
	if errPush := d.pusher.Push(ctx, tokens, msg); errPush != nil {
		return fmt.Errorf("notify: push: %w", errPush)
	}
	return nil
}

// RegisterDeviceToken stores or re-assigns a push token.
func (d *Dispatcher) RegisterDeviceToken(ctx context.Context, userID uint64, token string, platform models.DevicePlatform) (*models.DeviceToken, error) {
	now := d.nowFn().UTC()
	row := models.DeviceToken{
		UserID:     userID,
		Token:      strings.TrimSpace(token),
		Platform:   platform,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	errCreate := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "last_seen_at"}),
	}).Create(&row).Error
	if errCreate != nil {
		return nil, fmt.Errorf("notify: register device token: %w", errCreate)
	}
	var stored models.DeviceToken
	if errFind := d.db.WithContext(ctx).Where("token = ?", row.Token).First(&stored).Error; errFind != nil {
		return nil, fmt.Errorf("notify: reload device token: %w", errFind)
	}
	return &stored, nil
}

// List returns the newest notifications for userID.
func (d *Dispatcher) List(ctx context.Context, userID uint64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.Notification
	errFind := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("notify: list: %w", errFind)
	}
	return rows, nil
}

// Dedupe drops zero and repeated ids, keeping first-seen order.
func Dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Preview shortens body to at most limit characters, ending with "...".
func Preview(body string, limit int) string {
	runes := []rune(body)
	if limit <= 3 || len(runes) <= limit {
		return body
	}
	return string(runes[:limit-3]) + "..."
}
