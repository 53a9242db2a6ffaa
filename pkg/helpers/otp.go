package helpers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
)

// OTP helpers

// KeyOTPGrace is the Redis key marking a user's challenge-free window after
// a successful OTP verification. Presence of the key suppresses further
// challenges until the TTL runs out.
func KeyOTPGrace(uid string) string {
	return "login:otp:grace:" + uid
}

// GenOTPCode generates a secure random 6-digit OTP code as a zero-padded string
func GenOTPCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// 6 digits: map random bytes to 000000-999999
	n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	if n < 0 {
		n = -n
	}
	code := n % 1000000
	return fmt.Sprintf("%06d", code), nil
}

// OTPEqual compares a submitted code against the stored one in constant time
// so the comparison cannot act as a timing oracle on the stored value.
func OTPEqual(stored, submitted string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// GenTwoFactorSecret produces a random base32 secret for persistent
// second-factor configuration.
func GenTwoFactorSecret() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}
