package jwtware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization

	// ErrTokenMissing is returned when no extractor found a token.
	ErrTokenMissing = errors.New("missing or malformed token")
)

// TokenValidator checks a raw bearer token and attaches whatever identity it
// resolves to c. A non-nil error is handed to the ErrorHandler.
type TokenValidator func(c *fiber.Ctx, token string) error

// Config for the token middleware.
type Config struct {
	// Filter skips the middleware when it returns true.
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// TokenLookup is a comma separated list of "<source>:<name>" pairs
	// tried in order: header:Authorization,cookie:session_token,query:token,param:token
	TokenLookup string
	AuthScheme  string
	// Validator is required.
	Validator TokenValidator
}

// New builds the middleware. It extracts the first token found by
// TokenLookup, runs Validator and continues with SuccessHandler.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := cfg.Validator(c, raw); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		return cfg.SuccessHandler(c)
	}
}

// ExtractRawToken returns the first token found by extractors.
func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	err := ErrTokenMissing
	for _, extractor := range extractors {
		raw, xerr := extractor(c)
		if raw != "" && xerr == nil {
			return raw, nil
		}
		if xerr != nil {
			err = xerr
		}
	}
	return "", err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrTokenMissing) {
				return c.Status(fiber.StatusBadRequest).SendString(ErrTokenMissing.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("invalid or expired token")
		}
	}

	if cfg.Validator == nil {
		panic("AUTH: token middleware configuration: Validator is required.")
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []Extractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// Extractor pulls a raw token out of a request.
type Extractor func(c *fiber.Ctx) (string, error)

// GetExtractors parses a lookup string such as
// "header:Authorization,cookie:session_token".
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && authSchemes[0] != "" {
		authScheme = authSchemes[0]
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromHeader extracts "<scheme> <token>" from the header.
func tokenFromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissing
	}
}

func tokenFromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

func tokenFromParam(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

func tokenFromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}
