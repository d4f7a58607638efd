package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/notify"
	"github.com/router-for-me/marketplace-core/internal/validation"
)

// NotificationHandler serves the in-app inbox and push registration.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

type deviceTokenRequest struct {
	Token    string                `json:"token" validate:"required,max=512"`
	Platform models.DevicePlatform `json:"platform" validate:"required,oneof=IOS ANDROID WEB"`
}

// List returns the caller's newest notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	rows, errList := h.dispatcher.List(c.Request.Context(), CurrentUserID(c), QueryLimit(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":        row.ID,
			"type":      row.Type,
			"title":     row.Title,
			"body":      row.Body,
			"data":      RawJSON(row.Data),
			"readAt":    row.ReadAt,
			"createdAt": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// RegisterDeviceToken stores a push token for the caller.
func (h *NotificationHandler) RegisterDeviceToken(c *gin.Context) {
	var body deviceTokenRequest
	if !BindJSON(c, &body) {
		return
	}
	body.Token = strings.TrimSpace(body.Token)
	body.Platform = models.DevicePlatform(strings.ToUpper(strings.TrimSpace(string(body.Platform))))
	if errValidate := validation.Struct(body); errValidate != nil {
		apperr.Write(c, errValidate)
		return
	}
	row, errRegister := h.dispatcher.RegisterDeviceToken(c.Request.Context(), CurrentUserID(c), body.Token, body.Platform)
	if errRegister != nil {
		apperr.Write(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"deviceToken": gin.H{
		"id":         row.ID,
		"platform":   row.Platform,
		"lastSeenAt": row.LastSeenAt,
	}})
}
