package auth

import "errors"

var (
	// ErrInvalidToken is returned when a session token is malformed, forged or expired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrCorruptCredential is returned when a stored password hash cannot be parsed.
	ErrCorruptCredential = errors.New("corrupt credential")

	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password too long")
)
