//go:build !race

package auth

// passwordHashCost is the default cost used when a hasher is built with cost 0.
func passwordHashCost() int {
	return 12
}
