package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/featureflag"
	front "github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	"github.com/router-for-me/marketplace-core/internal/models"
	"gorm.io/gorm"
)

// SettingHandler serves feature flags and the audit trail.
type SettingHandler struct {
	db    *gorm.DB
	flags *featureflag.Service
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(db *gorm.DB, flags *featureflag.Service) *SettingHandler {
	return &SettingHandler{db: db, flags: flags}
}

type updateFlagRequest struct {
	Enabled *bool `json:"enabled"`
}

// ListFlags returns every feature flag.
func (h *SettingHandler) ListFlags(c *gin.Context) {
	rows, errList := h.flags.List(c.Request.Context())
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, presentFlag(row))
	}
	c.JSON(http.StatusOK, gin.H{"flags": out})
}

// UpdateFlag toggles one feature flag.
func (h *SettingHandler) UpdateFlag(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apperr.Write(c, apperr.BadRequest("invalid key"))
		return
	}
	var body updateFlagRequest
	if !front.BindJSON(c, &body) {
		return
	}
	if body.Enabled == nil {
		apperr.Write(c, apperr.ValidationFields("validation failed", map[string]string{"enabled": "enabled is required"}))
		return
	}
	row, errSet := h.flags.Set(c.Request.Context(), front.CurrentUserID(c), key, *body.Enabled)
	if errSet != nil {
		apperr.Write(c, errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flag": presentFlag(*row)})
}

// AuditLogs returns the newest audit entries, optionally filtered by targetType.
func (h *SettingHandler) AuditLogs(c *gin.Context) {
	targetType := models.AuditTargetType(strings.ToUpper(strings.TrimSpace(c.Query("targetType"))))
	rows, errList := audit.List(c.Request.Context(), h.db, targetType, front.QueryLimit(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"adminId":    row.AdminID,
			"action":     row.Action,
			"targetType": row.TargetType,
			"targetId":   row.TargetID,
			"metadata":   front.RawJSON(row.Metadata),
			"createdAt":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"auditLogs": out})
}

func presentFlag(row models.FeatureFlag) gin.H {
	return gin.H{
		"key":         row.Key,
		"enabled":     row.Enabled,
		"description": row.Description,
		"updatedAt":   row.UpdatedAt,
	}
}
