package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	LoginMethodPassword = "password"
	LoginMethodSocial   = "social"

	RevokeReasonLogout      = "logout"
	RevokeReasonExpired     = "refresh_expired"
	RevokeReasonDisabled    = "disabled"
	RevokeReasonBackchannel = "backchannel"
	RevokeReasonPassword    = "password_changed"
	RevokeReasonPurge       = "purge"
	RevokeReasonBulk        = "bulk"
)

// LoginResult is returned by every operation that hands out credentials.
type LoginResult struct {
	User        *User
	Session     *Session
	Credentials *Credentials
}

// Status is the outcome of a status check. Credentials is set when the
// check had to rotate the session to keep the caller logged in.
type Status struct {
	LoggedIn    bool
	User        *User
	Session     *Session
	Credentials *Credentials
}

// SessionManager owns the session lifecycle: login, validation, rotation and revocation.
// It is the only component that writes session rows.
type SessionManager struct {
	repo     RepositoryManager
	issuer   *TokenIssuer
	verifier *UserProvider
	clock    Clock
	logger   Logger
	activity ActivitySink
	metrics  SessionMetrics
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithClock overrides the time source.
func WithClock(c Clock) SessionManagerOption {
	return func(m *SessionManager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = ResolveLogger("auth.sessions", nil, l)
	}
}

// WithActivitySink sets the audit sink.
func WithActivitySink(s ActivitySink) SessionManagerOption {
	return func(m *SessionManager) {
		m.activity = normalizeActivitySink(s)
	}
}

// WithSessionMetrics sets the metrics collector.
func WithSessionMetrics(mt SessionMetrics) SessionManagerOption {
	return func(m *SessionManager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// NewSessionManager creates a manager over the given repositories.
func NewSessionManager(repo RepositoryManager, issuer *TokenIssuer, verifier *UserProvider, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		repo:     repo,
		issuer:   issuer,
		verifier: verifier,
		clock:    defaultClock,
		logger:   defLogger{},
		activity: noopActivitySink{},
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Issuer exposes the token issuer, mainly for cookie lifetimes.
func (m *SessionManager) Issuer() *TokenIssuer {
	return m.issuer
}

// Login checks a local username/password and opens a session.
func (m *SessionManager) Login(ctx context.Context, identifier, password string, meta RequestMeta) (*LoginResult, error) {
	user, err := m.verifier.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		outcome := OutcomeInvalid
		switch {
		case IsAccountDisabled(err):
			outcome = OutcomeDisabled
		case IsStorageUnavailable(err):
			outcome = OutcomeStorageFailure
		}
		m.metrics.ObserveLogin(LoginMethodPassword, outcome)
		emitActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{ID: identifier, Type: "anonymous"},
			Metadata:  map[string]any{"method": LoginMethodPassword, "reason": outcome},
		})
		return nil, err
	}

	return m.openSession(ctx, user, meta, LoginMethodPassword)
}

// LoginUser opens a session for an identity resolved elsewhere, e.g. a federated callback.
func (m *SessionManager) LoginUser(ctx context.Context, user *User, meta RequestMeta) (*LoginResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if user.IsDisabled() {
		m.metrics.ObserveLogin(LoginMethodSocial, OutcomeDisabled)
		return nil, ErrAccountDisabled
	}
	return m.openSession(ctx, user, meta, LoginMethodSocial)
}

func (m *SessionManager) openSession(ctx context.Context, user *User, meta RequestMeta, method string) (*LoginResult, error) {
	now := m.clock()

	creds, err := m.issuer.Pair(now)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:               ulid.Make().String(),
		UserID:           user.ID,
		SessionToken:     m.issuer.Digest(creds.SessionToken),
		SessionExpiresAt: creds.SessionExpiresAt,
		RefreshToken:     m.issuer.Digest(creds.RefreshToken),
		RefreshExpiresAt: creds.RefreshExpiresAt,
		UserAgent:        meta.UserAgent,
		IP:               meta.IP,
		CreatedAt:        now,
	}

	if err := m.repo.Sessions().Create(ctx, session); err != nil {
		m.metrics.ObserveLogin(method, OutcomeStorageFailure)
		return nil, err
	}

	m.metrics.ObserveLogin(method, OutcomeSuccess)
	emitActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		SessionID: session.ID,
		Metadata:  map[string]any{"method": method},
	})

	return &LoginResult{User: user, Session: session, Credentials: creds}, nil
}

// Validate resolves a session token to its user. Stale or dead sessions fail with
// ErrSessionExpired; the caller has to rotate. Validate never writes.
func (m *SessionManager) Validate(ctx context.Context, sessionToken string) (*User, *Session, error) {
	if sessionToken == "" {
		return nil, nil, ErrUnauthenticated
	}

	session, err := m.repo.Sessions().GetBySessionToken(ctx, m.issuer.Digest(sessionToken))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}

	if session.State(m.clock()) != SessionActive {
		return nil, nil, ErrSessionExpired
	}

	user, err := m.repo.Users().GetByID(ctx, session.UserID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}

	return user, session, nil
}

// Rotate exchanges a refresh token for a new credential pair. Both old tokens
// stop working. Of two concurrent calls with the same token exactly one wins;
// the other gets ErrUnauthenticated.
func (m *SessionManager) Rotate(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		m.metrics.ObserveRotate(OutcomeUnauthenticated)
		return nil, ErrUnauthenticated
	}

	digest := m.issuer.Digest(refreshToken)
	sessions := m.repo.Sessions()

	session, err := sessions.GetByRefreshToken(ctx, digest)
	if err != nil {
		if IsNotFound(err) {
			m.metrics.ObserveRotate(OutcomeUnauthenticated)
			return nil, ErrUnauthenticated
		}
		m.metrics.ObserveRotate(OutcomeStorageFailure)
		return nil, err
	}

	now := m.clock()

	if session.State(now) == SessionDead {
		deleted, err := sessions.DeleteIfRefresh(ctx, session.ID, digest)
		if err != nil {
			m.metrics.ObserveRotate(OutcomeStorageFailure)
			return nil, err
		}
		if !deleted {
			m.metrics.ObserveRotate(OutcomeRaceLost)
			return nil, ErrUnauthenticated
		}

		m.metrics.ObserveRotate(OutcomeRefreshExpired)
		m.metrics.ObserveRevoked(RevokeReasonExpired, 1)
		emitActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventRefreshExpired,
			UserID:    session.UserID.String(),
			SessionID: session.ID,
		})
		return nil, ErrRefreshExpired
	}

	user, err := m.repo.Users().GetByID(ctx, session.UserID)
	if err != nil {
		if IsNotFound(err) {
			m.metrics.ObserveRotate(OutcomeUnauthenticated)
			return nil, ErrUnauthenticated
		}
		m.metrics.ObserveRotate(OutcomeStorageFailure)
		return nil, err
	}

	if user.IsDisabled() {
		if _, err := sessions.DeleteIfRefresh(ctx, session.ID, digest); err != nil {
			m.metrics.ObserveRotate(OutcomeStorageFailure)
			return nil, err
		}
		m.metrics.ObserveRotate(OutcomeDisabled)
		m.metrics.ObserveRevoked(RevokeReasonDisabled, 1)
		return nil, ErrAccountDisabled
	}

	creds, err := m.issuer.Pair(now)
	if err != nil {
		return nil, err
	}

	next := SessionRotation{
		SessionToken:     m.issuer.Digest(creds.SessionToken),
		SessionExpiresAt: creds.SessionExpiresAt,
		RefreshToken:     m.issuer.Digest(creds.RefreshToken),
		RefreshExpiresAt: creds.RefreshExpiresAt,
		RotatedAt:        now,
	}

	rotated, err := sessions.Rotate(ctx, session.ID, digest, next)
	if err != nil {
		m.metrics.ObserveRotate(OutcomeStorageFailure)
		return nil, err
	}
	if !rotated {
		m.logger.Debug("refresh token already rotated", "session_id", session.ID)
		m.metrics.ObserveRotate(OutcomeRaceLost)
		emitActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventRotationRejected,
			UserID:    session.UserID.String(),
			SessionID: session.ID,
		})
		return nil, ErrUnauthenticated
	}

	session.SessionToken = next.SessionToken
	session.SessionExpiresAt = next.SessionExpiresAt
	session.RefreshToken = next.RefreshToken
	session.RefreshExpiresAt = next.RefreshExpiresAt
	session.RotatedAt = &next.RotatedAt

	m.metrics.ObserveRotate(OutcomeSuccess)
	emitActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventSessionRotated,
		UserID:    user.ID.String(),
		SessionID: session.ID,
	})

	return &LoginResult{User: user, Session: session, Credentials: creds}, nil
}

// StatusCheck reports whether the caller is logged in, rotating through the
// refresh token when the session token no longer works. Authentication
// failures of any kind yield LoggedIn=false; only store failures are returned.
func (m *SessionManager) StatusCheck(ctx context.Context, sessionToken, refreshToken string) (*Status, error) {
	if sessionToken != "" {
		user, session, err := m.Validate(ctx, sessionToken)
		switch {
		case err == nil && !user.IsDisabled():
			m.metrics.ObserveStatus(OutcomeLoggedIn)
			return &Status{LoggedIn: true, User: user, Session: session}, nil
		case err == nil:
			m.metrics.ObserveStatus(OutcomeLoggedOut)
			return &Status{}, nil
		case !IsAuthFailure(err):
			return nil, err
		}
	}

	if refreshToken != "" {
		res, err := m.Rotate(ctx, refreshToken)
		if err == nil {
			m.metrics.ObserveStatus(OutcomeRefreshedOnCheck)
			return &Status{
				LoggedIn:    true,
				User:        res.User,
				Session:     res.Session,
				Credentials: res.Credentials,
			}, nil
		}
		if !IsAuthFailure(err) {
			return nil, err
		}
	}

	m.metrics.ObserveStatus(OutcomeLoggedOut)
	return &Status{}, nil
}

// Logout deletes the session behind an active session token.
func (m *SessionManager) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return ErrUnauthenticated
	}

	digest := m.issuer.Digest(sessionToken)
	session, err := m.repo.Sessions().GetBySessionToken(ctx, digest)
	if err != nil {
		if IsNotFound(err) {
			return ErrUnauthenticated
		}
		return err
	}

	if session.State(m.clock()) != SessionActive {
		return ErrUnauthenticated
	}

	deleted, err := m.repo.Sessions().DeleteIfSession(ctx, session.ID, digest)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUnauthenticated
	}

	m.loggedOut(ctx, session)
	return nil
}

// LogoutRefresh deletes the session a refresh token belongs to, whatever its
// state. It ends sessions whose session token already went stale.
func (m *SessionManager) LogoutRefresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrUnauthenticated
	}

	digest := m.issuer.Digest(refreshToken)
	session, err := m.repo.Sessions().GetByRefreshToken(ctx, digest)
	if err != nil {
		if IsNotFound(err) {
			return ErrUnauthenticated
		}
		return err
	}

	deleted, err := m.repo.Sessions().DeleteIfRefresh(ctx, session.ID, digest)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUnauthenticated
	}

	m.loggedOut(ctx, session)
	return nil
}

func (m *SessionManager) loggedOut(ctx context.Context, session *Session) {
	m.metrics.ObserveRevoked(RevokeReasonLogout, 1)
	emitActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    session.UserID.String(),
		SessionID: session.ID,
	})
}

// BulkRevoke deletes every session of the user. A user without sessions is a no-op.
func (m *SessionManager) BulkRevoke(ctx context.Context, userID uuid.UUID, reason string) (int, error) {
	if reason == "" {
		reason = RevokeReasonBulk
	}

	n, err := m.repo.Sessions().DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	m.metrics.ObserveRevoked(reason, n)
	if n > 0 {
		m.logger.Info("sessions revoked", "user_id", userID.String(), "count", n, "reason", reason)
		emitActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventSessionsRevoked,
			UserID:    userID.String(),
			Metadata:  map[string]any{"count": n, "reason": reason},
		})
	}
	return n, nil
}

// RevokeOthers deletes every session of the user except keepSessionID.
func (m *SessionManager) RevokeOthers(ctx context.Context, userID uuid.UUID, keepSessionID, reason string) (int, error) {
	if keepSessionID == "" {
		return m.BulkRevoke(ctx, userID, reason)
	}

	n, err := m.repo.Sessions().DeleteByUserExcept(ctx, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	m.metrics.ObserveRevoked(reason, n)
	return n, nil
}

// ListSessions returns the user's sessions that can still be used or refreshed.
func (m *SessionManager) ListSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	all, err := m.repo.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	live := make([]*Session, 0, len(all))
	for _, s := range all {
		if s.State(now) != SessionDead {
			live = append(live, s)
		}
	}
	return live, nil
}

// PurgeExpired removes sessions whose refresh token has expired.
// Nothing in the manager schedules it; operators run it on demand.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int, error) {
	n, err := m.repo.Sessions().PurgeExpired(ctx, m.clock())
	if err != nil {
		return 0, err
	}
	m.metrics.ObserveRevoked(RevokeReasonPurge, n)
	return n, nil
}
