package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/moderation"
)

// ReportHandler accepts user reports.
type ReportHandler struct {
	moderation *moderation.Service
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(moderationService *moderation.Service) *ReportHandler {
	return &ReportHandler{moderation: moderationService}
}

// Create files a report against one user, listing or thread.
func (h *ReportHandler) Create(c *gin.Context) {
	var body moderation.ReportInput
	if !BindJSON(c, &body) {
		return
	}
	report, errCreate := h.moderation.CreateReport(c.Request.Context(), CurrentUserID(c), body)
	if errCreate != nil {
		apperr.Write(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": PresentReport(*report)})
}
