package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/samber/oops"

	"github.com/accountd/apiserver/types"
)

const userColumns = `id, name, email, password_hash, is_verified,
		verify_otp, verify_otp_expires_at, reset_otp, reset_otp_expires_at,
		version, created_at, updated_at`

// UserRepository handles persistence for users in PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, oops.In("store").Code("USER_GET_BY_ID_FAILED").With("id", id.String()).Wrap(err)
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, oops.In("store").Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return user, nil
}

// Create inserts a new user. The unique index on email decides duplicates so
// concurrent registrations for one address cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, name, email, passwordHash string) (types.User, error) {
	now := time.Now().UTC()
	user := types.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	const query = `
		INSERT INTO users (id, name, email, password_hash, is_verified, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgerrcode.UniqueViolation {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, oops.In("store").Code("USER_CREATE_FAILED").Wrap(err)
	}
	return user, nil
}

// Save persists the full mutable field set of user. The write only applies if
// the stored version still equals user.Version; otherwise ErrStale is returned.
func (r *UserRepository) Save(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()
	verifyCode, verifyExpires := otpColumns(user.VerifyOtp)
	resetCode, resetExpires := otpColumns(user.ResetOtp)

	const query = `
		UPDATE users
		SET name = $1,
			password_hash = $2,
			is_verified = $3,
			verify_otp = $4,
			verify_otp_expires_at = $5,
			reset_otp = $6,
			reset_otp_expires_at = $7,
			version = version + 1,
			updated_at = $8
		WHERE id = $9 AND version = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.PasswordHash,
		user.IsVerified,
		verifyCode,
		verifyExpires,
		resetCode,
		resetExpires,
		user.UpdatedAt,
		user.ID,
		user.Version,
	)
	if err != nil {
		return types.User{}, oops.In("store").Code("USER_SAVE_FAILED").With("id", user.ID.String()).Wrap(err)
	}
	if err := expectOneRow(result); err != nil {
		return types.User{}, err
	}
	user.Version++
	return user, nil
}

// ConsumeVerifyOtp marks the user verified and clears the verification code in
// one statement, provided code is still the pending, unexpired code at now.
func (r *UserRepository) ConsumeVerifyOtp(ctx context.Context, id uuid.UUID, code string, now time.Time) error {
	const query = `
		UPDATE users
		SET is_verified = TRUE,
			verify_otp = NULL,
			verify_otp_expires_at = NULL,
			version = version + 1,
			updated_at = $3
		WHERE id = $1
			AND verify_otp = $2
			AND verify_otp_expires_at > $3`
	result, err := r.db.ExecContext(ctx, query, id, code, now)
	if err != nil {
		return oops.In("store").Code("USER_CONSUME_VERIFY_OTP_FAILED").With("id", id.String()).Wrap(err)
	}
	return expectOneRow(result)
}

// ConsumeResetOtp replaces the password hash and clears the reset code in one
// statement, provided code is still the pending, unexpired code at now.
func (r *UserRepository) ConsumeResetOtp(ctx context.Context, id uuid.UUID, code, passwordHash string, now time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $3,
			reset_otp = NULL,
			reset_otp_expires_at = NULL,
			version = version + 1,
			updated_at = $4
		WHERE id = $1
			AND reset_otp = $2
			AND reset_otp_expires_at > $4`
	result, err := r.db.ExecContext(ctx, query, id, code, passwordHash, now)
	if err != nil {
		return oops.In("store").Code("USER_CONSUME_RESET_OTP_FAILED").With("id", id.String()).Wrap(err)
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user          types.User
		verifyCode    sql.NullString
		verifyExpires sql.NullTime
		resetCode     sql.NullString
		resetExpires  sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsVerified,
		&verifyCode,
		&verifyExpires,
		&resetCode,
		&resetExpires,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	user.VerifyOtp = pendingOtp(verifyCode, verifyExpires)
	user.ResetOtp = pendingOtp(resetCode, resetExpires)
	return user, nil
}

// pendingOtp only yields a code when both columns are present.
func pendingOtp(code sql.NullString, expires sql.NullTime) *types.PendingOtp {
	if !code.Valid || code.String == "" || !expires.Valid {
		return nil
	}
	return &types.PendingOtp{Code: code.String, ExpiresAt: expires.Time}
}

func otpColumns(otp *types.PendingOtp) (sql.NullString, sql.NullTime) {
	if otp == nil {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: otp.Code, Valid: true}, sql.NullTime{Time: otp.ExpiresAt, Valid: true}
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.In("store").Code("USER_ROWS_AFFECTED_FAILED").Wrap(err)
	}
	if affected == 0 {
		return ErrStale
	}
	return nil
}
