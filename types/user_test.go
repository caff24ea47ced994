package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingOtpMatches(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	otp := NewPendingOtp("123456", now, 10*time.Minute)

	assert.True(t, otp.Matches("123456"))
	assert.False(t, otp.Matches("123457"))
	assert.False(t, otp.Matches(" 123456"))
	assert.False(t, otp.Matches(""))

	var none *PendingOtp
	assert.False(t, none.Matches(""))
	assert.False(t, none.Matches("123456"))
	assert.False(t, (&PendingOtp{}).Matches(""))
}

func TestPendingOtpExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	otp := NewPendingOtp("000000", now, 10*time.Minute)

	assert.Equal(t, now.Add(10*time.Minute), otp.ExpiresAt)
	assert.False(t, otp.Expired(now))
	assert.False(t, otp.Expired(now.Add(10*time.Minute-time.Nanosecond)))
	assert.True(t, otp.Expired(now.Add(10*time.Minute)))
	assert.True(t, otp.Expired(now.Add(time.Hour)))

	var none *PendingOtp
	assert.True(t, none.Expired(now))
}
