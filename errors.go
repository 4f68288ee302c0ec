package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "auth_invalid_credentials"
	TextCodeAccountDisabled      = "auth_account_disabled"
	TextCodeUnauthenticated      = "auth_unauthenticated"
	TextCodeSessionExpired       = "auth_session_expired"
	TextCodeRefreshExpired       = "auth_refresh_expired"
	TextCodeForbidden            = "auth_forbidden"
	TextCodeConfirmationRequired = "auth_confirmation_required"
	TextCodeConflict             = "auth_conflict"
	TextCodeStorageUnavailable   = "auth_storage_unavailable"
	TextCodeNotFound             = "auth_not_found"
	TextCodeValidation           = "auth_validation_failed"
	TextCodeRateLimited          = "auth_rate_limited"
)

// ErrInvalidCredentials is returned when a local username/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDisabled is returned when the resolved user has the disabled role.
var ErrAccountDisabled = errors.New("account disabled", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrUnauthenticated covers missing, unknown or already rotated credentials.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is the Unauthenticated variant for a known but stale session token.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshExpired is returned when a refresh token is used after its expiry.
// The session it belonged to has been deleted by then.
var ErrRefreshExpired = errors.New("refresh token expired", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshExpired).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when the caller is authenticated but lacks role or ownership.
var ErrForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrConfirmationRequired is returned when a destructive action lacks the force confirmation.
var ErrConfirmationRequired = errors.New("confirmation required", errors.CategoryBadInput).
	WithTextCode(TextCodeConfirmationRequired).
	WithCode(errors.CodeBadRequest)

// ErrConflict is returned on duplicate username, email or provider link.
var ErrConflict = errors.New("record already exists", errors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(errors.CodeConflict)

// ErrStorageUnavailable is returned when the credential store cannot serve the request.
var ErrStorageUnavailable = errors.New("storage unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStorageUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found", errors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(errors.CodeNotFound)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("too many requests", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(http.StatusTooManyRequests)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(errors.CodeBadRequest)

// StorageError wraps a driver error as StorageUnavailable keeping the cause.
func StorageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeStorageUnavailable).
		WithCode(http.StatusServiceUnavailable)
}

// ConflictError wraps a uniqueness violation keeping the cause.
func ConflictError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryConflict, msg).
		WithTextCode(TextCodeConflict).
		WithCode(errors.CodeConflict)
}

// NotFoundError wraps a missing-row error keeping the cause.
func NotFoundError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryNotFound, msg).
		WithTextCode(TextCodeNotFound).
		WithCode(errors.CodeNotFound)
}

// ValidationError wraps a payload validation failure.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryValidation, "invalid payload").
		WithTextCode(TextCodeValidation).
		WithCode(errors.CodeBadRequest)
}

// TextCode returns the structured text code carried by err, or "".
func TextCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func hasTextCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	tc := TextCode(err)
	for _, code := range codes {
		if tc == code {
			return true
		}
	}
	return false
}

// IsInvalidCredentials reports a failed local password check.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsAccountDisabled reports a disabled account.
func IsAccountDisabled(err error) bool {
	return hasTextCode(err, TextCodeAccountDisabled)
}

// IsUnauthenticated reports missing, invalid or expired session credentials.
func IsUnauthenticated(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated, TextCodeSessionExpired)
}

// IsRefreshExpired reports use of an expired refresh token.
func IsRefreshExpired(err error) bool {
	return hasTextCode(err, TextCodeRefreshExpired)
}

// IsForbidden reports an authorization failure.
func IsForbidden(err error) bool {
	return hasTextCode(err, TextCodeForbidden)
}

// IsConfirmationRequired reports a missing force confirmation.
func IsConfirmationRequired(err error) bool {
	return hasTextCode(err, TextCodeConfirmationRequired)
}

// IsConflict reports a uniqueness violation.
func IsConflict(err error) bool {
	return hasTextCode(err, TextCodeConflict)
}

// IsStorageUnavailable reports a store failure.
func IsStorageUnavailable(err error) bool {
	return hasTextCode(err, TextCodeStorageUnavailable)
}

// IsNotFound reports a missing record.
func IsNotFound(err error) bool {
	return hasTextCode(err, TextCodeNotFound)
}

// IsAuthFailure reports any failure that means "not logged in" for a status probe.
func IsAuthFailure(err error) bool {
	return hasTextCode(err,
		TextCodeInvalidCredentials,
		TextCodeAccountDisabled,
		TextCodeUnauthenticated,
		TextCodeSessionExpired,
		TextCodeRefreshExpired,
		TextCodeNotFound,
	)
}
