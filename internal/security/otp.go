package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// otpSecretSize is the random key size behind each one-time code.
const otpSecretSize = 20

// GenerateOTPCode returns a fresh six-digit code derived from a random HOTP key.
func GenerateOTPCode() (string, error) {
	key := make([]byte, otpSecretSize)
	if _, errRead := rand.Read(key); errRead != nil {
		return "", fmt.Errorf("security: otp entropy: %w", errRead)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(key)
	code, errCode := hotp.GenerateCodeCustom(secret, 0, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if errCode != nil {
		return "", fmt.Errorf("security: otp code: %w", errCode)
	}
	return code, nil
}

// HashOTP returns the salted hash stored for a code. The request id binds the
// hash to a single challenge.
func HashOTP(secret, requestID, code string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(requestID))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckOTP compares a candidate code against a stored hash in constant time.
func CheckOTP(secret, requestID, code, storedHash string) bool {
	candidate := HashOTP(secret, requestID, code)
	return hmac.Equal([]byte(candidate), []byte(storedHash))
}
