package social

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound   = "social_provider_not_found"
	TextCodeInvalidState       = "social_invalid_state"
	TextCodeStateExpired       = "social_state_expired"
	TextCodeTokenExchangeFail  = "social_token_exchange_failed"
	TextCodeUserInfoFail       = "social_user_info_failed"
	TextCodeEmailNotVerified   = "social_email_not_verified"
	TextCodeEmailMissing       = "social_email_missing"
	TextCodeInvalidHandoff     = "social_invalid_handoff"
	TextCodeInvalidLogoutToken = "social_invalid_logout_token"
	TextCodeProviderDenied     = "social_provider_denied"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when a provider email is not verified.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrEmailMissing is returned when the provider shares no email address.
var ErrEmailMissing = errors.New("provider returned no email address", errors.CategoryAuth).
	WithTextCode(TextCodeEmailMissing).
	WithCode(errors.CodeForbidden)

// ErrInvalidHandoff is returned for unknown, expired or reused handoff codes.
var ErrInvalidHandoff = errors.New("invalid or expired handoff code", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidHandoff).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidLogoutToken is returned when a logout token matches no provider key.
var ErrInvalidLogoutToken = errors.New("invalid logout token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidLogoutToken).
	WithCode(errors.CodeUnauthorized)

// ErrProviderDenied is returned when the user declined at the provider.
var ErrProviderDenied = errors.New("authorization denied by provider", errors.CategoryAuth).
	WithTextCode(TextCodeProviderDenied).
	WithCode(errors.CodeUnauthorized)
