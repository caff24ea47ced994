package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user_id"

// Response is the envelope every auth endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

var errBadRequest = errors.New("invalid request body")

// messages maps service errors to client-facing text. Order matters:
// ErrMissingResetFields wraps ErrMissingFields.
var messages = []struct {
	err     error
	message string
}{
	{services.ErrMissingResetFields, "Email, OTP and new password are required"},
	{services.ErrMissingFields, "All fields are required"},
	{services.ErrMissingCredentials, "Email and password are required"},
	{services.ErrMissingDetails, "Missing details"},
	{services.ErrMissingEmail, "Email is required"},
	{auth.ErrPasswordTooLong, "Password is too long"},
	{services.ErrDuplicateUser, "User already exists"},
	{services.ErrUserNotFound, "User not found"},
	{services.ErrInvalidCredentials, "Invalid email or password"},
	{services.ErrAlreadyVerified, "Account is already verified"},
	{services.ErrInvalidOtp, "Invalid OTP"},
	{services.ErrOtpExpired, "OTP expired"},
	{services.ErrNotAuthenticated, "Not authorized. Login again"},
	{services.ErrNotificationFailed, "We could not send the email. Please try again later"},
	{errBadRequest, "Invalid request body"},
}

const genericMessage = "Something went wrong. Please try again."

func messageFor(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return genericMessage
}

// decodeBody reads a JSON object into dst. An empty body leaves dst zero so
// that missing fields are reported by the service.
func decodeBody(r *http.Request, w http.ResponseWriter, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}

func userIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextUserKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, Response{Success: success, Message: message})
}
