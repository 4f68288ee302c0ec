// Package auth is the identity and session layer of allergy-snatcher: local
// credentials, opaque session and refresh tokens, and the fiber guard that
// authorizes requests.
//
// Sessions:
//   - SessionManager issues a session token (1h) and a refresh token (30d) per
//     login. Only their SHA-256 digests are stored.
//   - A session is ACTIVE until its session token expires, STALE until its
//     refresh token expires and DEAD after that. Rotate replaces both tokens
//     with a single conditional update so concurrent refreshes have one winner.
//   - Expiry is evaluated lazily. PurgeExpired is an operator task.
//
// Guard:
//   - Guard resolves the caller from a bearer token or the session cookie and
//     stores a RequestContext in both the fiber locals and the request context.
//   - Disabled accounts are rejected on every request, not only at login.
//
// Activity sinks:
//   - ActivitySink receives login, rotation, revocation and role events.
//     Sinks run best-effort (errors are logged) so an audit backend never
//     blocks authentication.
package auth
