// Package auth issues OTP challenges, verified tokens and session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/fingerprint"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/security"
	"github.com/router-for-me/marketplace-core/internal/sms"
	"gorm.io/gorm"
)

// Error codes surfaced to clients.
const (
	CodeOTPRateLimited  = "OTP_RATE_LIMITED"
	CodeOTPExpired      = "OTP_EXPIRED"
	CodePhoneRegistered = "PHONE_REGISTERED"
	CodeCNICTaken       = "CNIC_TAKEN"
	CodePhoneTaken      = "PHONE_TAKEN"
	CodeEmailTaken      = "EMAIL_TAKEN"
	CodeTokenExpired    = "TOKEN_EXPIRED"
)

// Settings are the knobs of the OTP and session flows.
type Settings struct {
	JWTSecret        string
	SessionExpiry    time.Duration
	OTPSecret        string
	OTPExpiry        time.Duration
	MaxAttempts      int
	RequestWindow    time.Duration
	MaxRequests      int
	VerifiedTokenTTL time.Duration
	Production       bool
}

// SettingsFromConfig maps application config to auth settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		JWTSecret:        cfg.JWT.Secret,
		SessionExpiry:    cfg.JWT.Expiry,
		OTPSecret:        cfg.OTP.Secret,
		OTPExpiry:        cfg.OTP.Expiry,
		MaxAttempts:      cfg.OTP.MaxAttempts,
		RequestWindow:    cfg.OTP.RequestWindow,
		MaxRequests:      cfg.OTP.MaxRequests,
		VerifiedTokenTTL: cfg.OTP.VerifiedTokenTTL,
		Production:       cfg.IsProduction(),
	}
}

// Service is the authentication and session manager.
type Service struct {
	db       *gorm.DB
	settings Settings
	sender   sms.Sender
	devices  *fingerprint.Store
	nowFn    func() time.Time
	codeFn   func() (string, error)
}

// NewService constructs a Service.
func NewService(db *gorm.DB, settings Settings, sender sms.Sender) *Service {
	if sender == nil {
		sender = sms.Noop{}
	}
	defaults := config.Defaults()
	if settings.SessionExpiry <= 0 {
		settings.SessionExpiry = defaults.JWT.Expiry
	}
	if settings.OTPExpiry <= 0 {
		settings.OTPExpiry = defaults.OTP.Expiry
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaults.OTP.MaxAttempts
	}
	if settings.RequestWindow <= 0 {
		settings.RequestWindow = defaults.OTP.RequestWindow
	}
	if settings.MaxRequests <= 0 {
		settings.MaxRequests = defaults.OTP.MaxRequests
	}
	if settings.VerifiedTokenTTL <= 0 {
		settings.VerifiedTokenTTL = defaults.OTP.VerifiedTokenTTL
	}
	return &Service{
		db:       db,
		settings: settings,
		sender:   sender,
		devices:  fingerprint.NewStore(db),
		nowFn:    time.Now,
		codeFn:   security.GenerateOTPCode,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

// Session is an issued session token with its user.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
}

func (s *Service) issueSession(user models.User) (*Session, error) {
	now := s.now()
	token, errSign := security.IssueSessionToken(s.settings.JWTSecret, s.settings.SessionExpiry, user, now)
	if errSign != nil {
		return nil, fmt.Errorf("auth: sign session: %w", errSign)
	}
	return &Session{AccessToken: token, ExpiresAt: now.Add(s.settings.SessionExpiry), User: user}, nil
}

// Authenticate resolves a session token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, errParse := security.ParseSessionToken(s.settings.JWTSecret, token, s.now)
	if errParse != nil {
		if errors.Is(errParse, security.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindUnauthorized, CodeTokenExpired, "session expired")
		}
		return nil, apperr.Unauthorized("invalid session token")
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, claims.UserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, fmt.Errorf("auth: load session user: %w", errFind)
	}
	if user.IsBlocked {
		return nil, apperr.Forbidden("account is suspended")
	}
	return &user, nil
}

// Me returns the profile of userID.
func (s *Service) Me(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, fmt.Errorf("auth: load user: %w", errFind)
	}
	return &user, nil
}

// Devices returns the device history of userID.
func (s *Service) Devices(ctx context.Context, userID uint64) ([]models.DeviceFingerprint, error) {
	return s.devices.List(ctx, userID)
}
