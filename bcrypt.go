package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the one-way hash capability used for local credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher. A zero cost uses the build default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost == 0 {
		cost = passwordHashCost()
	}
	return BcryptHasher{Cost: cost}
}

// Hash will generate a password hash
func (b BcryptHasher) Hash(password string) (string, error) {
	return HashPassword(password, b.Cost)
}

// Compare validates the cleartext password against the stored hash
func (b BcryptHasher) Compare(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword will generate a password hash
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
