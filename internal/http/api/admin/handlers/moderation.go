package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	front "github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/moderation"
	"github.com/router-for-me/marketplace-core/internal/validation"
)

// ModerationHandler serves the report queue and moderation actions.
type ModerationHandler struct {
	moderation *moderation.Service
}

// NewModerationHandler constructs a ModerationHandler.
func NewModerationHandler(moderationService *moderation.Service) *ModerationHandler {
	return &ModerationHandler{moderation: moderationService}
}

// Queue lists OPEN and IN_REVIEW reports, newest first.
func (h *ModerationHandler) Queue(c *gin.Context) {
	reports, errQueue := h.moderation.Queue(c.Request.Context(), front.QueryLimit(c))
	if errQueue != nil {
		apperr.Write(c, errQueue)
		return
	}
	out := make([]gin.H, 0, len(reports))
	for _, report := range reports {
		out = append(out, front.PresentReport(report))
	}
	c.JSON(http.StatusOK, gin.H{"reports": out})
}

// Action moves a report to a new review state.
func (h *ModerationHandler) Action(c *gin.Context) {
	reportID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	var body moderation.ActionInput
	if !front.BindJSON(c, &body) {
		return
	}
	report, errAction := h.moderation.ApplyAction(c.Request.Context(), front.CurrentUserID(c), reportID, body)
	if errAction != nil {
		apperr.Write(c, errAction)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": front.PresentReport(*report)})
}

// Suspend blocks or unblocks a user.
func (h *ModerationHandler) Suspend(c *gin.Context) {
	h.toggleUser(c, h.moderation.Suspend)
}

// ShadowBan hides or restores a user's listings in ranked results.
func (h *ModerationHandler) ShadowBan(c *gin.Context) {
	h.toggleUser(c, h.moderation.ShadowBan)
}

func (h *ModerationHandler) toggleUser(c *gin.Context, apply func(ctx context.Context, adminID, userID uint64, enabled bool) (*models.User, error)) {
	userID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	var body moderation.ToggleInput
	if !front.BindJSON(c, &body) {
		return
	}
	if errValidate := validation.Struct(body); errValidate != nil {
		apperr.Write(c, errValidate)
		return
	}
	user, errApply := apply(c.Request.Context(), front.CurrentUserID(c), userID, *body.Enabled)
	if errApply != nil {
		apperr.Write(c, errApply)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": front.PresentUser(*user)})
}

// DeactivateListing pauses an ACTIVE listing and notifies the people involved.
func (h *ModerationHandler) DeactivateListing(c *gin.Context) {
	listingID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	row, errDeactivate := h.moderation.DeactivateListing(c.Request.Context(), front.CurrentUserID(c), listingID)
	if errDeactivate != nil {
		apperr.Write(c, errDeactivate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": front.PresentListing(*row)})
}

// CloseThread closes a chat thread.
func (h *ModerationHandler) CloseThread(c *gin.Context) {
	threadID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	thread, errClose := h.moderation.CloseThread(c.Request.Context(), front.CurrentUserID(c), threadID)
	if errClose != nil {
		apperr.Write(c, errClose)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": front.PresentThread(*thread)})
}

// Users lists accounts with their cached trust scores.
func (h *ModerationHandler) Users(c *gin.Context) {
	users, errList := h.moderation.Users(c.Request.Context(), front.QueryLimit(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, summary := range users {
		entry := front.PresentUser(summary.User)
		entry["trustScore"] = summary.TrustScore
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
