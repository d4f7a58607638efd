package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/fingerprint"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/security"
	"github.com/router-for-me/marketplace-core/internal/validation"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// SignupInput is the profile submitted with a verified signup token.
type SignupInput struct {
	FullName          string        `json:"fullName" validate:"required,max=200"`
	FatherName        string        `json:"fatherName" validate:"required,max=200"`
	CNIC              string        `json:"cnic" validate:"required,min=13,max=15"`
	Phone             string        `json:"phone" validate:"required,pkphone"`
	Email             string        `json:"email" validate:"required,email"`
	Password          string        `json:"password" validate:"required,min=8,max=72"`
	City              string        `json:"city" validate:"omitempty,max=100"`
	DateOfBirth       string        `json:"dateOfBirth" validate:"required"`
	Gender            models.Gender `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	ProfilePhotoURL   string        `json:"profilePhotoUrl" validate:"omitempty,url"`
	VerificationToken string        `json:"otpVerificationToken" validate:"required"`
}

func (in *SignupInput) normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.FatherName = strings.TrimSpace(in.FatherName)
	in.CNIC = strings.TrimSpace(in.CNIC)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.City = strings.TrimSpace(in.City)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Gender = models.Gender(strings.ToUpper(strings.TrimSpace(string(in.Gender))))
	in.ProfilePhotoURL = strings.TrimSpace(in.ProfilePhotoURL)
	in.VerificationToken = strings.TrimSpace(in.VerificationToken)
}

// Signup redeems a verified SIGNUP token and creates the account.
func (s *Service) Signup(ctx context.Context, in SignupInput, device fingerprint.Device) (*Session, error) {
	in.normalize()
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	dob, errDOB := time.Parse(dateLayout, in.DateOfBirth)
	if errDOB != nil {
		return nil, apperr.ValidationFields("invalid fields: dateOfBirth", map[string]string{"dateOfBirth": "must be YYYY-MM-DD"})
	}
	if in.City == "" {
		in.City = "Unknown"
	}

	claims, errToken := s.redeemVerifiedToken(in.VerificationToken, in.Phone, models.OtpPurposeSignup)
	if errToken != nil {
		return nil, errToken
	}
	if errUnique := s.checkUnique(ctx, in); errUnique != nil {
		return nil, errUnique
	}

	passwordHash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, fmt.Errorf("auth: hash password: %w", errHash)
	}
	now := s.now()
	user := models.User{
		FullName:        in.FullName,
		FatherName:      in.FatherName,
		CNIC:            in.CNIC,
		Phone:           in.Phone,
		Email:           in.Email,
		PasswordHash:    passwordHash,
		City:            in.City,
		DateOfBirth:     dob,
		Gender:          in.Gender,
		ProfilePhotoURL: in.ProfilePhotoURL,
		PhoneVerifiedAt: &now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errConsume := consumeOTP(tx, claims, now); errConsume != nil {
			return errConsume
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return apperr.Conflict("an account with these details already exists")
			}
			return fmt.Errorf("auth: create user: %w", errCreate)
		}
		if errUpdate := tx.Model(&models.OtpCode{}).Where("id = ?", claims.OtpID).
			Update("user_id", user.ID).Error; errUpdate != nil {
			return fmt.Errorf("auth: link otp: %w", errUpdate)
		}
		return s.devices.Record(ctx, tx, user.ID, device, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	return s.issueSession(user)
}

// checkUnique reports the first taken identifier in CNIC, phone, email order.
func (s *Service) checkUnique(ctx context.Context, in SignupInput) error {
	checks := []struct {
		column string
		value  string
		code   string
		msg    string
	}{
		{"cnic", in.CNIC, CodeCNICTaken, "CNIC already registered"},
		{"phone", in.Phone, CodePhoneTaken, "phone already registered"},
		{"email", in.Email, CodeEmailTaken, "email already registered"},
	}
	for _, check := range checks {
		var count int64
		if errCount := s.db.WithContext(ctx).Model(&models.User{}).
			Where(check.column+" = ?", check.value).
			Count(&count).Error; errCount != nil {
			return fmt.Errorf("auth: check %s: %w", check.column, errCount)
		}
		if count > 0 {
			return apperr.New(apperr.KindConflict, check.code, check.msg)
		}
	}
	return nil
}

// LoginInput identifies an account by email and phone plus one proof.
type LoginInput struct {
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone" validate:"required,pkphone"`
	Password          string `json:"password"`
	VerificationToken string `json:"otpVerificationToken"`
}

// Login authenticates with exactly one of a password or a verified LOGIN token.
func (s *Service) Login(ctx context.Context, in LoginInput, device fingerprint.Device) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.VerificationToken = strings.TrimSpace(in.VerificationToken)
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	hasPassword := in.Password != ""
	hasToken := in.VerificationToken != ""
	if hasPassword == hasToken {
		return nil, apperr.BadRequest("provide exactly one of password or otpVerificationToken")
	}

	var claims *security.VerifiedClaims
	if hasToken {
		var errToken error
		claims, errToken = s.redeemVerifiedToken(in.VerificationToken, in.Phone, models.OtpPurposeLogin)
		if errToken != nil {
			return nil, errToken
		}
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ? AND phone = ?", in.Email, in.Phone).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("auth: load user: %w", errFind)
	}
	if hasPassword && !security.CheckPassword(user.PasswordHash, in.Password) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if user.IsBlocked {
		return nil, apperr.Forbidden("account is suspended")
	}

	now := s.now()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if claims != nil {
			if errConsume := consumeOTP(tx, claims, now); errConsume != nil {
				return errConsume
			}
		}
		return s.devices.Record(ctx, tx, user.ID, device, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	return s.issueSession(user)
}
