package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accountd/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It backs
// STORE_DRIVER=memory for local runs and mirrors the conditional-update
// semantics of UserRepository.
type MemoryUserRepository struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]types.User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[uuid.UUID]types.User),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) Create(_ context.Context, name, email, passwordHash string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return types.User{}, ErrDuplicate
	}

	now := r.now().UTC()
	user := types.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) Save(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok || current.Version != user.Version {
		return types.User{}, ErrStale
	}

	user.Email = current.Email
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.now().UTC()
	user.Version++
	r.byID[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) ConsumeVerifyOtp(_ context.Context, id uuid.UUID, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok || !user.VerifyOtp.Matches(code) || user.VerifyOtp.Expired(now) {
		return ErrStale
	}
	user.IsVerified = true
	user.VerifyOtp = nil
	user.Version++
	user.UpdatedAt = now
	r.byID[id] = user
	return nil
}

func (r *MemoryUserRepository) ConsumeResetOtp(_ context.Context, id uuid.UUID, code, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok || !user.ResetOtp.Matches(code) || user.ResetOtp.Expired(now) {
		return ErrStale
	}
	user.PasswordHash = passwordHash
	user.ResetOtp = nil
	user.Version++
	user.UpdatedAt = now
	r.byID[id] = user
	return nil
}

func cloneUser(user types.User) types.User {
	if user.VerifyOtp != nil {
		otp := *user.VerifyOtp
		user.VerifyOtp = &otp
	}
	if user.ResetOtp != nil {
		otp := *user.ResetOtp
		user.ResetOtp = &otp
	}
	return user
}
