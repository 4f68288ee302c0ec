package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	Role          UserRole  `bun:"role,notnull" json:"role"`
	FirstName     string    `bun:"first_name" json:"first_name,omitempty"`
	LastName      string    `bun:"last_name" json:"last_name,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// IsDisabled reports whether the account is blocked from authenticating.
func (u *User) IsDisabled() bool {
	return u == nil || u.Role == RoleDisabled
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserView is the public projection of a user returned by HTTP endpoints.
type UserView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// View returns the public projection of u, or nil.
func (u *User) View() *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Password holds the local credential of a user. One row per user at most.
type Password struct {
	bun.BaseModel `bun:"table:passwords,alias:pwd"`
	UserID        uuid.UUID `bun:"user_id,pk" json:"-"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"-"`
}

// OAuthAccount links a user to a federated identity.
type OAuthAccount struct {
	bun.BaseModel  `bun:"table:oauth_accounts,alias:oa"`
	ID             uuid.UUID  `bun:"id,pk" json:"id"`
	UserID         uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	Provider       string     `bun:"provider,notnull" json:"provider"`
	ProviderUserID string     `bun:"provider_user_id,notnull" json:"provider_user_id"`
	AccessToken    string     `bun:"access_token" json:"-"`
	RefreshToken   string     `bun:"refresh_token" json:"-"`
	ExpiresAt      *time.Time `bun:"expires_at" json:"expires_at,omitempty"`
	Scopes         string     `bun:"scopes" json:"scopes,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// SessionState is the lifecycle position of a session at a given instant.
type SessionState int

const (
	// SessionActive sessions accept their session token.
	SessionActive SessionState = iota
	// SessionStale sessions only accept their refresh token.
	SessionStale
	// SessionDead sessions accept nothing and are deleted on contact.
	SessionDead
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionStale:
		return "stale"
	default:
		return "dead"
	}
}

// Session is a server side login. Token columns hold digests, never the bearer values.
type Session struct {
	bun.BaseModel    `bun:"table:sessions,alias:ses"`
	ID               string     `bun:"id,pk" json:"id"`
	UserID           uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	SessionToken     string     `bun:"session_token,notnull,unique" json:"-"`
	SessionExpiresAt time.Time  `bun:"session_expires_at,notnull" json:"session_expires_at"`
	RefreshToken     string     `bun:"refresh_token,notnull,unique" json:"-"`
	RefreshExpiresAt time.Time  `bun:"refresh_expires_at,notnull" json:"refresh_expires_at"`
	UserAgent        string     `bun:"user_agent" json:"user_agent,omitempty"`
	IP               string     `bun:"ip" json:"ip,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"created_at"`
	RotatedAt        *time.Time `bun:"rotated_at" json:"rotated_at,omitempty"`
}

// State returns where the session sits in ACTIVE -> STALE -> DEAD at now.
func (s *Session) State(now time.Time) SessionState {
	switch {
	case now.Before(s.SessionExpiresAt):
		return SessionActive
	case now.Before(s.RefreshExpiresAt):
		return SessionStale
	default:
		return SessionDead
	}
}

// Credentials is the bearer pair handed to a client after login or rotation.
type Credentials struct {
	SessionToken     string    `json:"session_token"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

func splitDisplayName(display string) (string, string) {
	display = strings.TrimSpace(display)
	if display == "" {
		return "", ""
	}
	first, last, _ := strings.Cut(display, " ")
	return first, strings.TrimSpace(last)
}

// NameFromDisplay fills empty name fields from a provider display name.
func (u *User) NameFromDisplay(display string) *User {
	first, last := splitDisplayName(display)
	if u.FirstName == "" {
		u.FirstName = first
	}
	if u.LastName == "" {
		u.LastName = last
	}
	return u
}
