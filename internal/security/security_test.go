package security

import (
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/models"
)

func TestGenerateOTPCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateOTPCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected digits only, got %q", code)
			}
		}
	}
}

func TestOTPHashBindsRequest(t *testing.T) {
	hash := HashOTP("secret", "req-1", "123456")
	if !CheckOTP("secret", "req-1", "123456", hash) {
		t.Fatalf("expected matching code to pass")
	}
	if CheckOTP("secret", "req-2", "123456", hash) {
		t.Fatalf("expected hash to be bound to the request id")
	}
	if CheckOTP("secret", "req-1", "654321", hash) {
		t.Fatalf("expected wrong code to fail")
	}
}

func TestVerifiedTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token, expiresAt, err := IssueVerifiedToken("s3cret", 10*time.Minute, "+923001234567", "otp-1", models.OtpPurposeSignup, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}
	claims, err := ParseVerifiedToken("s3cret", token, func() time.Time { return now.Add(9 * time.Minute) })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.OtpID != "otp-1" || claims.Purpose != models.OtpPurposeSignup {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	_, err = ParseVerifiedToken("s3cret", token, func() time.Time { return now.Add(11 * time.Minute) })
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	now := time.Now()
	session, err := IssueSessionToken("s3cret", time.Hour, models.User{ID: 7, Phone: "+923001234567"}, now)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := ParseVerifiedToken("s3cret", session, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected session token to be rejected as verified token, got %v", err)
	}
	verified, _, err := IssueVerifiedToken("s3cret", time.Minute, "+923001234567", "otp-1", models.OtpPurposeLogin, now)
	if err != nil {
		t.Fatalf("issue verified: %v", err)
	}
	if _, err := ParseSessionToken("s3cret", verified, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected verified token to be rejected as session, got %v", err)
	}
	if _, err := ParseSessionToken("other", session, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") || CheckPassword(hash, "wrong") {
		t.Fatalf("password check mismatch")
	}
}
