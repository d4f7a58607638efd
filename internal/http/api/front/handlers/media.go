package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/media"
)

// MediaHandler issues upload urls.
type MediaHandler struct {
	media *media.Service
}

// NewMediaHandler constructs a MediaHandler.
func NewMediaHandler(mediaService *media.Service) *MediaHandler {
	return &MediaHandler{media: mediaService}
}

// SignURL validates an upload and returns a presigned PUT url.
func (h *MediaHandler) SignURL(c *gin.Context) {
	var body media.SignInput
	if !BindJSON(c, &body) {
		return
	}
	signed, errSign := h.media.Sign(c.Request.Context(), CurrentUserID(c), body)
	if errSign != nil {
		apperr.Write(c, errSign)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uploadUrl": signed.UploadURL,
		"fileUrl":   signed.FileURL,
		"key":       signed.Key,
		"expiresAt": signed.ExpiresAt,
	})
}

// Verify checks an HMAC-signed upload url.
func (h *MediaHandler) Verify(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	expires, errParse := strconv.ParseInt(strings.TrimSpace(c.Query("expires")), 10, 64)
	if key == "" || errParse != nil {
		apperr.Write(c, apperr.BadRequest("key and expires are required"))
		return
	}
	valid, reason := h.media.Verify(key, expires, strings.TrimSpace(c.Query("signature")))
	out := gin.H{"valid": valid}
	if !valid {
		out["reason"] = reason
	}
	c.JSON(http.StatusOK, out)
}
