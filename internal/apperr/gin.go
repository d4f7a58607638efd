package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Write renders err as a JSON error response and aborts the request.
// Unclassified errors are logged and surfaced as a generic failure.
func Write(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind == KindInternal {
		log.WithError(err).
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": string(KindInternal), "message": "internal error"})
		return
	}
	if appErr.Kind == KindServiceUnavailable && appErr.Err != nil {
		log.WithError(appErr.Err).WithField("path", c.FullPath()).Warn("dependency unavailable")
	}
	body := gin.H{"error": appErr.Code, "message": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.AbortWithStatusJSON(appErr.Status(), body)
}
