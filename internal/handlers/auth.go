package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/accountd/apiserver/internal/logging"
	"github.com/accountd/apiserver/internal/metrics"
	"github.com/accountd/apiserver/internal/services"
	"github.com/accountd/apiserver/types"
)

// TokenCookie is the name of the session cookie.
const TokenCookie = "token"

// AuthService is the account logic the handlers drive.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (services.Session, error)
	Login(ctx context.Context, email, password string) (services.Session, error)
	CheckSession(ctx context.Context, token string) (uuid.UUID, error)
	UserData(ctx context.Context, userID uuid.UUID) (types.User, error)
	RequestVerification(ctx context.Context, userID uuid.UUID) error
	ConfirmVerification(ctx context.Context, userID uuid.UUID, code string) error
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
}

// CookiePolicy controls the attributes of the session cookie.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// NewCookiePolicy returns the cross-site policy in production and a strict
// same-site policy otherwise.
func NewCookiePolicy(production bool, maxAge time.Duration) CookiePolicy {
	if production {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteNoneMode, MaxAge: maxAge}
	}
	return CookiePolicy{SameSite: http.SameSiteStrictMode, MaxAge: maxAge}
}

// AuthHandler serves the /api/auth and /api/user endpoints.
type AuthHandler struct {
	auth    AuthService
	cookies CookiePolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAuthHandler(auth AuthService, cookies CookiePolicy, m *metrics.Metrics, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, cookies: cookies, metrics: m, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/send-reset-otp", h.SendResetOtp)
	r.Post("/reset-password", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/send-verify-otp", h.SendVerifyOtp)
		r.Post("/verify-email", h.VerifyEmail)
		r.Get("/is-authenticated", h.IsAuthenticated)
	})
}

// RequireAuth resolves the session token from the cookie, or from a bearer
// header when no cookie is sent, and injects the user id into the context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.CheckSession(r.Context(), sessionToken(r))
		if err != nil {
			h.metrics.AuthOperation("session", services.KindOf(err).String())
			writeMessage(w, http.StatusUnauthorized, false, messageFor(services.ErrNotAuthenticated))
			return
		}
		ctx := context.WithValue(r.Context(), contextUserKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	OTP string `json:"otp"`
}

type resetOtpRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// Register creates an account and starts a session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.fail(w, r, "register", http.StatusBadRequest, err)
		return
	}

	session, err := h.auth.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case err == nil:
		h.setSession(w, session.Token)
		h.succeed(w, "register", http.StatusCreated, "")
	case errors.Is(err, services.ErrNotificationFailed):
		h.setSession(w, session.Token)
		h.metrics.AuthOperation("register", metrics.OutcomeSuccess)
		writeMessage(w, http.StatusCreated, true, "Account created, but the welcome email could not be sent")
	default:
		status := http.StatusOK
		switch services.KindOf(err) {
		case services.KindValidation, services.KindConflict:
			status = http.StatusBadRequest
		}
		h.fail(w, r, "register", status, err)
	}
}

// Login checks credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.fail(w, r, "login", http.StatusBadRequest, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", http.StatusOK, err)
		return
	}
	h.setSession(w, session.Token)
	h.succeed(w, "login", http.StatusOK, "")
}

// Logout clears the session cookie. Issued tokens stay valid until they
// expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie("", -1))
	h.succeed(w, "logout", http.StatusOK, "Logged out")
}

// SendVerifyOtp emails a verification code to the signed-in user.
func (h *AuthHandler) SendVerifyOtp(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	if err := h.auth.RequestVerification(r.Context(), userID); err != nil {
		h.fail(w, r, "send_verify_otp", http.StatusOK, err)
		return
	}
	h.succeed(w, "send_verify_otp", http.StatusOK, "Verification OTP sent on email")
}

// VerifyEmail marks the signed-in user verified.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.fail(w, r, "verify_email", http.StatusBadRequest, err)
		return
	}

	userID, _ := userIDFromContext(r.Context())
	if err := h.auth.ConfirmVerification(r.Context(), userID, req.OTP); err != nil {
		h.fail(w, r, "verify_email", http.StatusOK, err)
		return
	}
	h.succeed(w, "verify_email", http.StatusOK, "Email verified successfully")
}

// IsAuthenticated answers success for any request that passed RequireAuth.
func (h *AuthHandler) IsAuthenticated(w http.ResponseWriter, r *http.Request) {
	h.succeed(w, "is_authenticated", http.StatusOK, "")
}

// SendResetOtp emails a password-reset code.
func (h *AuthHandler) SendResetOtp(w http.ResponseWriter, r *http.Request) {
	var req resetOtpRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.fail(w, r, "send_reset_otp", http.StatusBadRequest, err)
		return
	}

	if err := h.auth.RequestReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, "send_reset_otp", http.StatusOK, err)
		return
	}
	h.succeed(w, "send_reset_otp", http.StatusOK, "OTP sent to your email")
}

// ResetPassword replaces the password using a reset code.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.fail(w, r, "reset_password", http.StatusBadRequest, err)
		return
	}

	if err := h.auth.ConfirmReset(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.fail(w, r, "reset_password", http.StatusOK, err)
		return
	}
	h.succeed(w, "reset_password", http.StatusOK, "Password has been reset successfully")
}

func (h *AuthHandler) succeed(w http.ResponseWriter, op string, status int, message string) {
	h.metrics.AuthOperation(op, metrics.OutcomeSuccess)
	writeMessage(w, status, true, message)
}

// fail answers {success:false}. Internal errors become 500 with a generic
// message; the detail only goes to the log.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, op string, status int, err error) {
	kind := services.KindOf(err)
	if errors.Is(err, errBadRequest) {
		kind = services.KindValidation
	}
	h.metrics.AuthOperation(op, kind.String())

	switch kind {
	case services.KindInternal:
		logging.LogError(r.Context(), h.logger, op+" failed", err)
		status = http.StatusInternalServerError
	case services.KindDependency:
		h.logger.WarnContext(r.Context(), op+" dependency failure", "error", err)
	}
	writeMessage(w, status, false, messageFor(err))
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, h.cookie(token, int(h.cookies.MaxAge/time.Second)))
}

func (h *AuthHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     TokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	}
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
