package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	DefaultSessionCookie = "session_token"
	DefaultRefreshCookie = "refresh_token"
	DefaultRefreshPath   = "/auth"
)

// CookieConfig describes how credentials are written to the browser.
type CookieConfig struct {
	SessionName string
	RefreshName string
	// RefreshPath scopes the refresh cookie to the auth endpoints.
	RefreshPath string
	Domain      string
	// Secure should only be false for local development over plain HTTP.
	Secure bool
}

// DefaultCookieConfig returns secure defaults.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		SessionName: DefaultSessionCookie,
		RefreshName: DefaultRefreshCookie,
		RefreshPath: DefaultRefreshPath,
		Secure:      true,
	}
}

func (cc CookieConfig) normalized() CookieConfig {
	def := DefaultCookieConfig()
	if cc.SessionName == "" {
		cc.SessionName = def.SessionName
	}
	if cc.RefreshName == "" {
		cc.RefreshName = def.RefreshName
	}
	if cc.RefreshPath == "" {
		cc.RefreshPath = def.RefreshPath
	}
	return cc
}

// SetCredentialCookies writes the session and refresh cookies for creds.
func (cc CookieConfig) SetCredentialCookies(c *fiber.Ctx, creds *Credentials) {
	cc.SetSessionCookie(c, creds)
	cc.SetRefreshCookie(c, creds)
}

// SetSessionCookie writes the session cookie for creds.
func (cc CookieConfig) SetSessionCookie(c *fiber.Ctx, creds *Credentials) {
	c.Cookie(&fiber.Cookie{
		Name:     cc.SessionName,
		Value:    creds.SessionToken,
		Path:     "/",
		Domain:   cc.Domain,
		Expires:  creds.SessionExpiresAt,
		HTTPOnly: true,
		Secure:   cc.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SetRefreshCookie writes the refresh cookie for creds.
func (cc CookieConfig) SetRefreshCookie(c *fiber.Ctx, creds *Credentials) {
	c.Cookie(&fiber.Cookie{
		Name:     cc.RefreshName,
		Value:    creds.RefreshToken,
		Path:     cc.RefreshPath,
		Domain:   cc.Domain,
		Expires:  creds.RefreshExpiresAt,
		HTTPOnly: true,
		Secure:   cc.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearCredentialCookies expires both cookies.
func (cc CookieConfig) ClearCredentialCookies(c *fiber.Ctx) {
	cc.cookieDel(c, cc.SessionName, "/")
	cc.cookieDel(c, cc.RefreshName, cc.RefreshPath)
}

func (cc CookieConfig) cookieDel(c *fiber.Ctx, name, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   cc.Domain,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   cc.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
}

// NewErrorHandler maps structured errors to HTTP responses. It is meant to be
// installed as fiber.Config.ErrorHandler.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = ResolveLogger("auth.http", nil, logger)

	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
		}

		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
				WithCode(errors.CodeInternal)
		}

		status := HTTPStatus(richErr)

		if status >= http.StatusInternalServerError {
			logger.Error(
				"request failed",
				"path", c.Path(),
				"error", err,
				"category", richErr.Category,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
		} else {
			logger.Debug(
				"request rejected",
				"path", c.Path(),
				"error", richErr.Message,
				"text_code", richErr.TextCode,
			)
		}

		msg := richErr.Message
		if status >= http.StatusInternalServerError && richErr.TextCode != TextCodeStorageUnavailable {
			msg = "internal server error"
		}
		return c.Status(status).JSON(ErrorResponse{Error: msg, TextCode: richErr.TextCode})
	}
}

// HTTPStatus returns the response status for err.
func HTTPStatus(richErr *errors.Error) int {
	if richErr == nil {
		return http.StatusInternalServerError
	}

	switch richErr.TextCode {
	case TextCodeAccountDisabled, TextCodeForbidden:
		return http.StatusForbidden
	case TextCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case TextCodeConfirmationRequired, TextCodeValidation:
		return http.StatusBadRequest
	}

	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
