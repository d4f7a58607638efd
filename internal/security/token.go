package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/router-for-me/marketplace-core/internal/models"
)

// Token types carried in the "typ" claim.
const (
	TokenTypeSession     = "session"
	TokenTypeOTPVerified = "otp_verified"
)

// ErrInvalidToken is returned for malformed, mis-signed or wrongly typed tokens.
var ErrInvalidToken = errors.New("security: invalid token")

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = errors.New("security: token expired")

// SessionClaims identify an authenticated user.
type SessionClaims struct {
	UserID uint64 `json:"uid"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// VerifiedClaims prove that a phone passed an OTP challenge.
type VerifiedClaims struct {
	Phone   string            `json:"phone"`
	OtpID   string            `json:"otp_id"`
	Purpose models.OtpPurpose `json:"purpose"`
	Type    string            `json:"typ"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs a long-lived session token for the user.
func IssueSessionToken(secret string, expiry time.Duration, user models.User, now time.Time) (string, error) {
	claims := SessionClaims{
		UserID: user.ID,
		Phone:  user.Phone,
		Email:  user.Email,
		Type:   TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSessionToken validates a session token at the given time.
func ParseSessionToken(secret, token string, now func() time.Time) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if errParse := parse(secret, token, claims, now); errParse != nil {
		return nil, errParse
	}
	if claims.Type != TokenTypeSession || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueVerifiedToken signs a short-lived token bound to (phone, otpID, purpose).
func IssueVerifiedToken(secret string, ttl time.Duration, phone, otpID string, purpose models.OtpPurpose, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := VerifiedClaims{
		Phone:   phone,
		OtpID:   otpID,
		Purpose: purpose,
		Type:    TokenTypeOTPVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phone,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, errSign
	}
	return signed, expiresAt, nil
}

// ParseVerifiedToken validates an OTP verified token at the given time.
func ParseVerifiedToken(secret, token string, now func() time.Time) (*VerifiedClaims, error) {
	claims := &VerifiedClaims{}
	if errParse := parse(secret, token, claims, now); errParse != nil {
		return nil, errParse
	}
	if claims.Type != TokenTypeOTPVerified || claims.OtpID == "" || claims.Phone == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parse(secret, token string, claims jwt.Claims, now func() time.Time) error {
	if secret == "" || token == "" {
		return ErrInvalidToken
	}
	if now == nil {
		now = time.Now
	}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
