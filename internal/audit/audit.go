// Package audit appends admin action records.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/router-for-me/marketplace-core/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry describes one admin action.
type Entry struct {
	AdminID    uint64
	Action     string
	TargetType models.AuditTargetType
	TargetID   string
	Metadata   map[string]any
}

// Record appends entry using conn, which may be a transaction.
func Record(conn *gorm.DB, entry Entry, now time.Time) error {
	var metadata datatypes.JSON
	if len(entry.Metadata) > 0 {
		payload, errMarshal := json.Marshal(entry.Metadata)
		if errMarshal != nil {
			return fmt.Errorf("audit: marshal metadata: %w", errMarshal)
		}
		metadata = datatypes.JSON(payload)
	}
	row := models.AuditLog{
		AdminID:    entry.AdminID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   metadata,
		CreatedAt:  now,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		return fmt.Errorf("audit: create: %w", errCreate)
	}
	return nil
}

// List returns the newest audit entries, optionally filtered by target type.
func List(ctx context.Context, conn *gorm.DB, targetType models.AuditTargetType, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := conn.WithContext(ctx).Model(&models.AuditLog{})
	if targetType != "" {
		q = q.Where("target_type = ?", targetType)
	}
	var rows []models.AuditLog
	if errFind := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("audit: list: %w", errFind)
	}
	return rows, nil
}
