package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_Roundtrip(t *testing.T) {
	hashed, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hashed)

	assert.True(t, VerifyPassword(hashed, "correct horse battery"))
	assert.False(t, VerifyPassword(hashed, "wrong password"))
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestMinPasswordLength_EnvOverride(t *testing.T) {
	assert.Equal(t, 8, MinPasswordLength())

	t.Setenv("USERDECK_MIN_PASSWORD_LENGTH", "12")
	assert.Equal(t, 12, MinPasswordLength())

	// garbage and non-positive values fall back to the default
	t.Setenv("USERDECK_MIN_PASSWORD_LENGTH", "zero")
	assert.Equal(t, 8, MinPasswordLength())
	t.Setenv("USERDECK_MIN_PASSWORD_LENGTH", "-1")
	assert.Equal(t, 8, MinPasswordLength())
}

func TestBurnPassword_DigestIsWellFormed(t *testing.T) {
	// the throwaway digest must be a parseable bcrypt hash so the burned
	// comparison does real work instead of failing on a malformed hash
	cost, err := bcrypt.Cost([]byte(noUserHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)

	err = bcrypt.CompareHashAndPassword([]byte(noUserHash), []byte("nope"))
	assert.ErrorIs(t, err, bcrypt.ErrMismatchedHashAndPassword)

	BurnPassword("anything") // must not panic
}

func TestVerifyPassword_BadHash(t *testing.T) {
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "anything"))
	assert.False(t, VerifyPassword("", "anything"))
}
