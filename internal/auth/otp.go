package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/fingerprint"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/security"
	"github.com/router-for-me/marketplace-core/internal/sms"
	"github.com/router-for-me/marketplace-core/internal/validation"
	"gorm.io/gorm"
)

// OTPRequestInput asks for a code to be sent to a phone.
type OTPRequestInput struct {
	Phone     string            `json:"phone" validate:"required,pkphone"`
	Purpose   models.OtpPurpose `json:"purpose" validate:"omitempty,oneof=LOGIN SIGNUP"`
	ForSignup bool              `json:"forSignup"`
}

// OTPRequestResult identifies the issued challenge. DebugCode is set outside production only.
type OTPRequestResult struct {
	RequestID string
	ExpiresAt time.Time
	DebugCode string
}

// RequestOTP issues a challenge for the phone and hands the code to the SMS sender.
func (s *Service) RequestOTP(ctx context.Context, in OTPRequestInput, device fingerprint.Device) (*OTPRequestResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	signup := in.ForSignup || in.Purpose == models.OtpPurposeSignup
	purpose := models.OtpPurposeLogin
	if signup {
		purpose = models.OtpPurposeSignup
	}
	now := s.now()

	var user models.User
	errUser := s.db.WithContext(ctx).Select("id").Where("phone = ?", in.Phone).First(&user).Error
	registered := errUser == nil
	if errUser != nil && !errors.Is(errUser, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("auth: load user by phone: %w", errUser)
	}
	if signup && registered {
		return nil, apperr.New(apperr.KindConflict, CodePhoneRegistered, "phone already registered, please login")
	}
	if !signup && !registered {
		return nil, apperr.NotFound("no account found for this phone")
	}

	var recent int64
	if errCount := s.db.WithContext(ctx).Model(&models.OtpCode{}).
		Where("phone = ? AND purpose = ? AND created_at >= ?", in.Phone, purpose, now.Add(-s.settings.RequestWindow)).
		Count(&recent).Error; errCount != nil {
		return nil, fmt.Errorf("auth: count otp requests: %w", errCount)
	}
	if recent >= int64(s.settings.MaxRequests) {
		return nil, apperr.New(apperr.KindRateLimited, CodeOTPRateLimited, "too many OTP requests, please try again later")
	}

	code, errCode := s.codeFn()
	if errCode != nil {
		return nil, errCode
	}
	record := models.OtpCode{
		ID:              uuid.NewString(),
		Phone:           in.Phone,
		Purpose:         purpose,
		FingerprintHash: device.Hash,
		IP:              device.IP,
		UserAgent:       device.UserAgent,
		ExpiresAt:       now.Add(s.settings.OTPExpiry),
		MaxAttempts:     s.settings.MaxAttempts,
		CreatedAt:       now,
	}
	record.OtpHash = security.HashOTP(s.settings.OTPSecret, record.ID, code)
	if registered {
		record.UserID = &user.ID
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return nil, fmt.Errorf("auth: create otp: %w", errCreate)
	}

	text := fmt.Sprintf("Your OTP is %s. It will expire in %d minutes.", code, int(s.settings.OTPExpiry.Minutes()))
	if errSend := s.sender.Send(ctx, sms.Message{To: in.Phone, Text: text}); errSend != nil {
		return nil, apperr.Unavailable("failed to deliver OTP, please retry", errSend)
	}

	result := &OTPRequestResult{RequestID: record.ID, ExpiresAt: record.ExpiresAt}
	if !s.settings.Production {
		result.DebugCode = code
	}
	return result, nil
}

// OTPVerifyInput answers a challenge.
type OTPVerifyInput struct {
	RequestID string            `json:"requestId" validate:"required,uuid"`
	Phone     string            `json:"phone" validate:"required,pkphone"`
	Code      string            `json:"otp" validate:"required,len=6,numeric"`
	Purpose   models.OtpPurpose `json:"purpose" validate:"omitempty,oneof=LOGIN SIGNUP"`
}

// OTPVerifyResult carries the short-lived verified token.
type OTPVerifyResult struct {
	VerificationToken string
	ExpiresAt         time.Time
}

// VerifyOTP checks a code from the device that requested it and issues a verified token.
func (s *Service) VerifyOTP(ctx context.Context, in OTPVerifyInput, device fingerprint.Device) (*OTPVerifyResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Code = strings.TrimSpace(in.Code)
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	if in.Purpose == "" {
		in.Purpose = models.OtpPurposeLogin
	}
	now := s.now()

	var record models.OtpCode
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND phone = ? AND purpose = ? AND consumed_at IS NULL", in.RequestID, in.Phone, in.Purpose).
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("OTP request not found")
		}
		return nil, fmt.Errorf("auth: load otp: %w", errFind)
	}
	if !now.Before(record.ExpiresAt) {
		return nil, apperr.New(apperr.KindExpired, CodeOTPExpired, "OTP expired")
	}
	if record.Attempts >= record.MaxAttempts {
		return nil, apperr.New(apperr.KindAttemptsExceeded, "", "maximum OTP attempts exceeded")
	}
	if record.FingerprintHash != device.Hash {
		return nil, apperr.New(apperr.KindFingerprintMismatch, "", "device fingerprint mismatch")
	}

	if !security.CheckOTP(s.settings.OTPSecret, record.ID, in.Code, record.OtpHash) {
		return nil, s.recordWrongGuess(ctx, record)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OtpCode{}).
			Where("id = ? AND consumed_at IS NULL AND attempts < max_attempts", record.ID).
			Updates(map[string]any{
				"verified_at": now,
				"ip":          device.IP,
				"user_agent":  device.UserAgent,
			})
		if res.Error != nil {
			return fmt.Errorf("auth: mark otp verified: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindAttemptsExceeded, "", "maximum OTP attempts exceeded")
		}
		if record.UserID == nil {
			return nil
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", *record.UserID).
			Update("phone_verified_at", now).Error; errUpdate != nil {
			return fmt.Errorf("auth: stamp phone verification: %w", errUpdate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	token, expiresAt, errSign := security.IssueVerifiedToken(s.settings.JWTSecret, s.settings.VerifiedTokenTTL, record.Phone, record.ID, record.Purpose, now)
	if errSign != nil {
		return nil, fmt.Errorf("auth: sign verified token: %w", errSign)
	}
	return &OTPVerifyResult{VerificationToken: token, ExpiresAt: expiresAt}, nil
}

// recordWrongGuess counts a failed guess. The guess that exhausts the budget reports AttemptsExceeded.
func (s *Service) recordWrongGuess(ctx context.Context, record models.OtpCode) error {
	res := s.db.WithContext(ctx).Model(&models.OtpCode{}).
		Where("id = ? AND attempts < max_attempts", record.ID).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return fmt.Errorf("auth: count otp attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 || record.Attempts+1 >= record.MaxAttempts {
		return apperr.New(apperr.KindAttemptsExceeded, "", "maximum OTP attempts exceeded")
	}
	return apperr.Unauthorized("invalid OTP")
}

// redeemVerifiedToken parses a verified token for the expected phone and purpose.
func (s *Service) redeemVerifiedToken(token, phone string, purpose models.OtpPurpose) (*security.VerifiedClaims, error) {
	claims, errParse := security.ParseVerifiedToken(s.settings.JWTSecret, token, s.now)
	if errParse != nil {
		if errors.Is(errParse, security.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindExpired, CodeTokenExpired, "OTP verification token expired")
		}
		return nil, apperr.Unauthorized("invalid OTP verification token")
	}
	if claims.Phone != phone || claims.Purpose != purpose {
		return nil, apperr.Unauthorized("OTP verification token does not match this request")
	}
	return claims, nil
}

// consumeOTP marks a verified code consumed using tx. It fails when the code was already redeemed.
func consumeOTP(tx *gorm.DB, claims *security.VerifiedClaims, now time.Time) error {
	res := tx.Model(&models.OtpCode{}).
		Where("id = ? AND phone = ? AND purpose = ? AND verified_at IS NOT NULL AND consumed_at IS NULL", claims.OtpID, claims.Phone, claims.Purpose).
		Update("consumed_at", now)
	if res.Error != nil {
		return fmt.Errorf("auth: consume otp: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.Unauthorized("OTP is not valid for this request")
	}
	return nil
}
