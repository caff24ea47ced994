package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/apiserver/internal/auth"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	t.Run("produces bcrypt hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
		assert.NotContains(t, hash, "password123")
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("empty password is hashed like any other", func(t *testing.T) {
		hash, err := hasher.Hash("")
		require.NoError(t, err)

		ok, err := hasher.Verify("", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("x", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejects passwords over 72 bytes", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", 73))
		require.ErrorIs(t, err, auth.ErrPasswordTooLong)
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	t.Run("correct password verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		for _, candidate := range []string{"wrongpassword", "", "correctpassword ", "CORRECTPASSWORD"} {
			ok, err := hasher.Verify(candidate, hash)
			require.NoError(t, err)
			assert.False(t, ok, "candidate %q", candidate)
		}
	})

	t.Run("malformed hash is a corrupt credential", func(t *testing.T) {
		_, err := hasher.Verify("password", "not-a-valid-hash")
		require.ErrorIs(t, err, auth.ErrCorruptCredential)
	})
}

func TestNewBcryptHasherCost(t *testing.T) {
	assert.Equal(t, 12, auth.NewBcryptHasher(12).Cost())
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(bcrypt.MaxCost+1).Cost())
}
