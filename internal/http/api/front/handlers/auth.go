package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/auth"
	"github.com/router-for-me/marketplace-core/internal/fingerprint"
	"github.com/router-for-me/marketplace-core/internal/trust"
)

// AuthHandler serves the OTP, signup and login endpoints.
type AuthHandler struct {
	auth  *auth.Service
	trust *trust.Calculator
	salt  string
}

// NewAuthHandler constructs an AuthHandler. salt keys the device fingerprint.
func NewAuthHandler(authService *auth.Service, calculator *trust.Calculator, salt string) *AuthHandler {
	return &AuthHandler{auth: authService, trust: calculator, salt: salt}
}

func (h *AuthHandler) device(c *gin.Context) fingerprint.Device {
	return fingerprint.FromRequest(h.salt, c.Request)
}

// RequestOTP issues a login or signup challenge.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var body auth.OTPRequestInput
	if !BindJSON(c, &body) {
		return
	}
	result, errRequest := h.auth.RequestOTP(c.Request.Context(), body, h.device(c))
	if errRequest != nil {
		apperr.Write(c, errRequest)
		return
	}
	out := gin.H{"requestId": result.RequestID, "expiresAt": result.ExpiresAt}
	if result.DebugCode != "" {
		out["debugCode"] = result.DebugCode
	}
	c.JSON(http.StatusOK, out)
}

// VerifyOTP answers a challenge and returns a verified token.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var body auth.OTPVerifyInput
	if !BindJSON(c, &body) {
		return
	}
	result, errVerify := h.auth.VerifyOTP(c.Request.Context(), body, h.device(c))
	if errVerify != nil {
		apperr.Write(c, errVerify)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified":             true,
		"otpVerificationToken": result.VerificationToken,
		"expiresAt":            result.ExpiresAt,
	})
}

// Signup creates an account from a verified phone.
func (h *AuthHandler) Signup(c *gin.Context) {
	var body auth.SignupInput
	if !BindJSON(c, &body) {
		return
	}
	session, errSignup := h.auth.Signup(c.Request.Context(), body, h.device(c))
	if errSignup != nil {
		apperr.Write(c, errSignup)
		return
	}
	c.JSON(http.StatusCreated, presentSession(session))
}

// Login exchanges a password or verified token for a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var body auth.LoginInput
	if !BindJSON(c, &body) {
		return
	}
	session, errLogin := h.auth.Login(c.Request.Context(), body, h.device(c))
	if errLogin != nil {
		apperr.Write(c, errLogin)
		return
	}
	c.JSON(http.StatusOK, presentSession(session))
}

// Me returns the caller's profile and trust score.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := CurrentUserID(c)
	user, errMe := h.auth.Me(c.Request.Context(), userID)
	if errMe != nil {
		apperr.Write(c, errMe)
		return
	}
	out := PresentUser(*user)
	if h.trust != nil {
		score, errScore := h.trust.Get(c.Request.Context(), userID)
		if errScore != nil {
			apperr.Write(c, errScore)
			return
		}
		out["trustScore"] = score.Score
	}
	c.JSON(http.StatusOK, gin.H{"user": out})
}

// Devices returns the caller's device history.
func (h *AuthHandler) Devices(c *gin.Context) {
	rows, errList := h.auth.Devices(c.Request.Context(), CurrentUserID(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"ip":          row.IP,
			"userAgent":   row.UserAgent,
			"firstSeenAt": row.FirstSeenAt,
			"lastSeenAt":  row.LastSeenAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func presentSession(session *auth.Session) gin.H {
	return gin.H{
		"accessToken": session.AccessToken,
		"tokenType":   "Bearer",
		"expiresAt":   session.ExpiresAt,
		"user":        PresentUser(session.User),
	}
}
