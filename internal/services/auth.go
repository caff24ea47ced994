package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/store"
	"github.com/accountd/apiserver/types"
)

// One-time code validity windows.
const (
	VerifyOtpTTL = 10 * time.Minute
	ResetOtpTTL  = 15 * time.Minute
)

const (
	saveAttempts = 3
	saveBackoff  = 20 * time.Millisecond
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (types.User, error)
	FindByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, name, email, passwordHash string) (types.User, error)
	Save(ctx context.Context, user types.User) (types.User, error)
	ConsumeVerifyOtp(ctx context.Context, id uuid.UUID, code string, now time.Time) error
	ConsumeResetOtp(ctx context.Context, id uuid.UUID, code, passwordHash string, now time.Time) error
}

// TokenIssuer mints and checks session tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
	Verify(token string) (uuid.UUID, error)
}

// OtpGenerator produces one-time codes.
type OtpGenerator interface {
	Generate() (string, error)
}

// Notifier hands account emails to the delivery channel.
type Notifier interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendVerifyOtp(ctx context.Context, to, otp string) error
	SendResetOtp(ctx context.Context, to, otp string) error
}

// Session is the outcome of a successful register or login.
type Session struct {
	Token string
	User  types.User
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthService runs account registration, login, email verification and
// password reset. The stored user record is the only state it keeps.
type AuthService struct {
	users    UserRepository
	hasher   auth.PasswordHasher
	otps     OtpGenerator
	tokens   TokenIssuer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(
	users UserRepository,
	hasher auth.PasswordHasher,
	otps OtpGenerator,
	tokens TokenIssuer,
	notifier Notifier,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		otps:     otps,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates an account, issues a session token and sends a welcome
// email. If only the email fails, the session is returned together with
// ErrNotificationFailed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return Session{}, ErrMissingFields
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, oops.In("auth").Code("REGISTER_HASH_FAILED").Wrap(err)
	}

	user, err := s.users.Create(ctx, name, email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Session{}, ErrDuplicateUser
		}
		return Session{}, oops.In("auth").Code("REGISTER_CREATE_FAILED").Wrap(err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, oops.In("auth").Code("REGISTER_TOKEN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	session := Session{Token: token, User: user}

	if err := s.notifier.SendWelcome(ctx, user.Email, user.Name); err != nil {
		return session, s.notificationFailed(ctx, "welcome", user.ID, err)
	}
	return session, nil
}

// Login checks the password for email and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return Session{}, oops.In("auth").Code("LOGIN_VERIFY_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, oops.In("auth").Code("LOGIN_TOKEN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return Session{Token: token, User: user}, nil
}

// CheckSession resolves a session token to the user id it was issued for.
func (s *AuthService) CheckSession(_ context.Context, token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, ErrNotAuthenticated
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// UserData returns the profile of an authenticated user.
func (s *AuthService) UserData(ctx context.Context, userID uuid.UUID) (types.User, error) {
	return s.findByID(ctx, userID)
}

// RequestVerification stores a fresh verification code for the user and
// emails it. The code stays valid even when the email cannot be sent.
func (s *AuthService) RequestVerification(ctx context.Context, userID uuid.UUID) error {
	var code string
	user, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (types.User, error) {
			return s.findByID(ctx, userID)
		},
		func(user *types.User) error {
			if user.IsVerified {
				return ErrAlreadyVerified
			}
			var err error
			if code, err = s.otps.Generate(); err != nil {
				return err
			}
			user.VerifyOtp = types.NewPendingOtp(code, s.now(), VerifyOtpTTL)
			return nil
		},
	)
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerifyOtp(ctx, user.Email, code); err != nil {
		return s.notificationFailed(ctx, "verify_otp", user.ID, err)
	}
	return nil
}

// ConfirmVerification marks the user verified when code is the pending,
// unexpired verification code. A code is accepted at most once.
func (s *AuthService) ConfirmVerification(ctx context.Context, userID uuid.UUID, code string) error {
	if userID == uuid.Nil || code == "" {
		return ErrMissingDetails
	}

	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now()
	if err := checkOtp(user.VerifyOtp, code, now); err != nil {
		return err
	}

	if err := s.users.ConsumeVerifyOtp(ctx, user.ID, code, now); err != nil {
		if errors.Is(err, store.ErrStale) {
			return ErrInvalidOtp
		}
		return oops.In("auth").Code("VERIFY_CONSUME_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// RequestReset stores a fresh password-reset code for the account registered
// under email and emails it.
func (s *AuthService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingEmail
	}

	var code string
	user, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (types.User, error) {
			return s.findByEmail(ctx, email)
		},
		func(user *types.User) error {
			var err error
			if code, err = s.otps.Generate(); err != nil {
				return err
			}
			user.ResetOtp = types.NewPendingOtp(code, s.now(), ResetOtpTTL)
			return nil
		},
	)
	if err != nil {
		return err
	}

	if err := s.notifier.SendResetOtp(ctx, user.Email, code); err != nil {
		return s.notificationFailed(ctx, "reset_otp", user.ID, err)
	}
	return nil
}

// ConfirmReset replaces the password when code is the pending, unexpired
// reset code for email. A code is accepted at most once.
func (s *AuthService) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" || newPassword == "" {
		return ErrMissingResetFields
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := s.now()
	if err := checkOtp(user.ResetOtp, code, now); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.In("auth").Code("RESET_HASH_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}

	if err := s.users.ConsumeResetOtp(ctx, user.ID, code, hashed, now); err != nil {
		if errors.Is(err, store.ErrStale) {
			return ErrInvalidOtp
		}
		return oops.In("auth").Code("RESET_CONSUME_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// checkOtp evaluates the code match before freshness, so a wrong code is
// reported as invalid even when the pending one has also expired.
func checkOtp(pending *types.PendingOtp, code string, now time.Time) error {
	if !pending.Matches(code) {
		return ErrInvalidOtp
	}
	if pending.Expired(now) {
		return ErrOtpExpired
	}
	return nil
}

// saveWithRetry loads a user, applies mutate and saves it, reloading and
// reapplying when a concurrent writer bumped the record version.
func (s *AuthService) saveWithRetry(
	ctx context.Context,
	load func(context.Context) (types.User, error),
	mutate func(*types.User) error,
) (types.User, error) {
	var saved types.User
	backoff := retry.WithMaxRetries(saveAttempts-1, retry.NewConstant(saveBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		user, err := load(ctx)
		if err != nil {
			return err
		}
		if err := mutate(&user); err != nil {
			return err
		}
		saved, err = s.users.Save(ctx, user)
		if errors.Is(err, store.ErrStale) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if KindOf(err) != KindInternal {
			return types.User{}, err
		}
		return types.User{}, oops.In("auth").Code("USER_SAVE_FAILED").Wrap(err)
	}
	return saved, nil
}

func (s *AuthService) findByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, oops.In("auth").Code("USER_LOOKUP_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (types.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, oops.In("auth").Code("USER_LOOKUP_FAILED").Wrap(err)
	}
	return user, nil
}

func (s *AuthService) notificationFailed(ctx context.Context, kind string, userID uuid.UUID, err error) error {
	s.logger.WarnContext(ctx, "notification dispatch failed",
		"kind", kind,
		"user_id", userID.String(),
		"error", err,
	)
	return oops.In("auth").
		Code("NOTIFICATION_FAILED").
		With("kind", kind).
		With("user_id", userID.String()).
		Wrapf(ErrNotificationFailed, "%v", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
