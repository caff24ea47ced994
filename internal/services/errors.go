package services

import (
	"errors"
	"fmt"

	"github.com/accountd/apiserver/internal/auth"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrMissingResetFields = fmt.Errorf("%w: email, otp and new password", ErrMissingFields)
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingDetails     = errors.New("missing details")
	ErrMissingEmail       = errors.New("missing email")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrInvalidOtp         = errors.New("invalid otp")
	ErrOtpExpired         = errors.New("otp expired")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// ErrNotificationFailed reports that a state change was committed but the
	// email carrying it could not be handed to the delivery channel.
	ErrNotificationFailed = errors.New("notification dispatch failed")
)

// Kind classifies errors for reporting to callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrMissingFields, KindValidation},
	{ErrMissingCredentials, KindValidation},
	{ErrMissingDetails, KindValidation},
	{ErrMissingEmail, KindValidation},
	{auth.ErrPasswordTooLong, KindValidation},
	{ErrUserNotFound, KindNotFound},
	{ErrDuplicateUser, KindConflict},
	{ErrAlreadyVerified, KindConflict},
	{ErrInvalidCredentials, KindAuth},
	{ErrInvalidOtp, KindAuth},
	{ErrOtpExpired, KindAuth},
	{ErrNotAuthenticated, KindAuth},
	{auth.ErrInvalidToken, KindAuth},
	{ErrNotificationFailed, KindDependency},
	{auth.ErrCorruptCredential, KindDependency},
}

// KindOf returns the category of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
