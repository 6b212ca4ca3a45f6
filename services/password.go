package services

import (
	"errors"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"userdeck/common"
)

var ErrPasswordTooShort = errors.New("password too short")

// MinPasswordLength is overridable via USERDECK_MIN_PASSWORD_LENGTH.
func MinPasswordLength() int {
	if n, err := strconv.Atoi(common.Env("USERDECK_MIN_PASSWORD_LENGTH", "8")); err == nil && n > 0 {
		return n
	}
	return 8
}

// HashPassword validates the policy and returns a bcrypt hash.
func HashPassword(plain string) (string, error) {
	if len(plain) < MinPasswordLength() {
		return "", ErrPasswordTooShort
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// Well-formed cost-10 digest (of "password") burned on unknown-email logins.
// Must stay a full 60-char bcrypt hash or the comparison short-circuits.
const noUserHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// BurnPassword runs a full bcrypt comparison against a throwaway digest so
// a login for a missing account costs the same as a wrong password.
func BurnPassword(plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(noUserHash), []byte(plain))
}
