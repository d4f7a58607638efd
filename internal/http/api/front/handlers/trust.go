package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/trust"
)

// TrustHandler exposes cached trust scores.
type TrustHandler struct {
	trust *trust.Calculator
}

// NewTrustHandler constructs a TrustHandler.
func NewTrustHandler(calculator *trust.Calculator) *TrustHandler {
	return &TrustHandler{trust: calculator}
}

// Get returns the score for the user named by the param path parameter.
func (h *TrustHandler) Get(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ParseID(c, param)
		if !ok {
			return
		}
		score, errGet := h.trust.Get(c.Request.Context(), userID)
		if errGet != nil {
			apperr.Write(c, errGet)
			return
		}
		c.JSON(http.StatusOK, PresentTrustScore(*score))
	}
}
