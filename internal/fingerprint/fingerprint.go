// Package fingerprint derives stable device fingerprints and records device sightings.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Device describes the client behind a request.
type Device struct {
	IP        string
	UserAgent string
	Hash      string
}

// Hash returns the salted fingerprint of (ip, userAgent).
func Hash(salt, ip, userAgent string) string {
	sum := sha256.Sum256([]byte(salt + ":" + strings.TrimSpace(ip) + ":" + strings.TrimSpace(userAgent)))
	return hex.EncodeToString(sum[:])
}

// FromRequest extracts the client device from an HTTP request.
func FromRequest(salt string, r *http.Request) Device {
	ip := ClientIP(r)
	ua := ""
	if r != nil {
		ua = strings.TrimSpace(r.UserAgent())
	}
	return Device{IP: ip, UserAgent: ua, Hash: Hash(salt, ip, ua)}
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the remote address.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	ip := ""
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
		if host, _, errSplit := net.SplitHostPort(ip); errSplit == nil {
			ip = host
		}
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// Store persists device sightings per user.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// riskSignals is the summary kept on the user row.
type riskSignals struct {
	LastFingerprint string    `json:"lastFingerprint"`
	LastIP          string    `json:"lastIp"`
	LastUserAgent   string    `json:"lastUserAgent"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
}

// Record upserts the (user, device) sighting. When tx is non-nil the writes join it.
func (s *Store) Record(ctx context.Context, tx *gorm.DB, userID uint64, device Device, now time.Time) error {
	conn := tx
	if conn == nil {
		conn = s.db.WithContext(ctx)
	}
	if userID == 0 || device.Hash == "" {
		return fmt.Errorf("fingerprint: missing user or hash")
	}
	row := models.DeviceFingerprint{
		UserID:      userID,
		Hash:        device.Hash,
		IP:          device.IP,
		UserAgent:   device.UserAgent,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "hash"}},
		DoUpdates: clause.Assignments(map[string]any{
			"ip":           device.IP,
			"user_agent":   device.UserAgent,
			"last_seen_at": now,
		}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("fingerprint: upsert: %w", errUpsert)
	}

	payload, errMarshal := json.Marshal(riskSignals{
		LastFingerprint: device.Hash,
		LastIP:          device.IP,
		LastUserAgent:   device.UserAgent,
		LastSeenAt:      now,
	})
	if errMarshal != nil {
		return fmt.Errorf("fingerprint: marshal risk signals: %w", errMarshal)
	}
	if errUpdate := conn.Model(&models.User{}).
		Where("id = ?", userID).
		Update("risk_signals", datatypes.JSON(payload)).Error; errUpdate != nil {
		return fmt.Errorf("fingerprint: update risk signals: %w", errUpdate)
	}
	return nil
}

// List returns the recorded devices of a user, most recent first.
func (s *Store) List(ctx context.Context, userID uint64) ([]models.DeviceFingerprint, error) {
	var rows []models.DeviceFingerprint
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_seen_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("fingerprint: list: %w", errFind)
	}
	return rows, nil
}
