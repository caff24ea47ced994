package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It carries identity, credential and email-verification state.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Email is the user's unique email address. It never changes after creation.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsVerified reports whether the user proved ownership of Email.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// VerifyOtp is the outstanding email-verification code, nil when none is pending.
	VerifyOtp *PendingOtp `json:"-"`

	// ResetOtp is the outstanding password-reset code, nil when none is pending.
	ResetOtp *PendingOtp `json:"-"`

	// Version increases on every write and guards Save against lost updates.
	Version int64 `json:"-" db:"version"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PendingOtp is a one-time code together with the instant it stops being valid.
type PendingOtp struct {
	Code      string
	ExpiresAt time.Time
}

// NewPendingOtp returns a code valid for ttl starting at now.
func NewPendingOtp(code string, now time.Time, ttl time.Duration) *PendingOtp {
	return &PendingOtp{Code: code, ExpiresAt: now.Add(ttl)}
}

// Matches reports whether code equals the pending code exactly.
// A nil pending OTP never matches, not even the empty string.
func (p *PendingOtp) Matches(code string) bool {
	if p == nil || p.Code == "" {
		return false
	}
	return p.Code == code
}

// Expired reports whether the code is no longer valid at now.
func (p *PendingOtp) Expired(now time.Time) bool {
	return p == nil || !now.Before(p.ExpiresAt)
}
