package entity

import (
	"time"
)

// User is the aggregate root for the identity domain.
// Passwords are stored as bcrypt hashes in PasswordHash.
//
// Verification and OTP fields are transient: they are populated while a
// challenge is open and cleared on redemption.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	PhoneNumber  string
	Role         Role

	IsEmailVerified     bool
	VerificationToken   string
	VerificationExpires time.Time

	OTPCode       string
	OTPExpiresAt  time.Time
	LastOTPSentAt time.Time

	TwoFactorEnabled bool
	TwoFactorSecret  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasValidOTP reports whether an unexpired OTP challenge is outstanding.
func (u *User) HasValidOTP(now time.Time) bool {
	return u.OTPCode != "" && now.Before(u.OTPExpiresAt)
}

// ClearOTP removes the outstanding OTP challenge. The zero timestamps make
// any later validation attempt fail the expiry check.
func (u *User) ClearOTP() {
	u.OTPCode = ""
	u.OTPExpiresAt = time.Time{}
}

// ClearVerification removes the stored email-verification token so a
// redeemed token cannot be redeemed again.
func (u *User) ClearVerification() {
	u.VerificationToken = ""
	u.VerificationExpires = time.Time{}
}
