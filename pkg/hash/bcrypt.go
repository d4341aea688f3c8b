// Package hash stores operator passwords, such as the metrics endpoint credential,
// as bcrypt hashes.
package hash

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// Cost is the bcrypt work factor of new hashes.
const Cost = 12

func HashPassword(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(p), Cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether plain matches hashed. A malformed hash never matches.
func CheckPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
