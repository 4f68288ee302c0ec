// Package ratelimit throttles requests per client with a fixed window counter.
package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/kv"
)

const keyPrefix = "ratelimit:"

// Config defines rate limiting parameters.
type Config struct {
	// Name separates the counters of different limiters sharing a store.
	Name              string
	RequestsPerMinute int
	BurstSize         int
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*fiber.Ctx) string
	Logger  auth.Logger
	Now     func() time.Time
}

// DefaultConfig returns the limits used for the login endpoint.
func DefaultConfig() Config {
	return Config{
		Name:              "login",
		RequestsPerMinute: 10,
		BurstSize:         5,
	}
}

// New returns a middleware counting requests in store. Store failures let
// the request through.
func New(store kv.Store, cfg Config) fiber.Handler {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.BurstSize < 0 {
		cfg.BurstSize = 0
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return "ip:" + c.IP() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := auth.ResolveLogger("auth.ratelimit", nil, cfg.Logger)
	window := time.Minute

	return func(c *fiber.Ctx) error {
		key := keyPrefix + cfg.Name + ":" + cfg.KeyFunc(c)

		count, err := store.IncrWithExpire(c.UserContext(), key, window)
		if err != nil {
			logger.Warn("rate limit store failed", "key", key, "error", err)
			return c.Next()
		}

		limit := cfg.RequestsPerMinute
		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(cfg.Now().Add(window).Unix(), 10))

		if int(count) > limit+cfg.BurstSize {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
			return auth.ErrRateLimited
		}

		return c.Next()
	}
}
