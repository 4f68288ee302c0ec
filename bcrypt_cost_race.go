//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// passwordHashCost is the default cost used when a hasher is built with cost 0.
// Race builds use the minimum cost.
func passwordHashCost() int {
	return bcrypt.MinCost
}
