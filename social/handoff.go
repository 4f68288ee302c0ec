package social

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/kv"
)

// DefaultHandoffTTL bounds how long a one-time code can be redeemed.
const DefaultHandoffTTL = 60 * time.Second

const handoffPrefix = "handoff:"

// Handoff carries the session token from the provider callback to the
// client without putting it in a URL.
type Handoff struct {
	SessionToken     string    `json:"session_token"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
	UserID           string    `json:"user_id"`
}

// HandoffStore issues single use codes for Handoff values.
type HandoffStore struct {
	store kv.Store
	ttl   time.Duration
}

// NewHandoffStore creates the store. A non-positive ttl uses DefaultHandoffTTL.
func NewHandoffStore(store kv.Store, ttl time.Duration) *HandoffStore {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	return &HandoffStore{store: store, ttl: ttl}
}

// Issue stores h and returns the code that redeems it.
func (s *HandoffStore) Issue(ctx context.Context, h Handoff) (string, error) {
	code, err := randomString(32)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(h)
	if err != nil {
		return "", err
	}

	if err := s.store.Set(ctx, handoffPrefix+code, string(payload), s.ttl); err != nil {
		return "", auth.StorageError(err, "store handoff code")
	}
	return code, nil
}

// Redeem returns the Handoff for code and forgets it. A second redeem of the
// same code fails with ErrInvalidHandoff.
func (s *HandoffStore) Redeem(ctx context.Context, code string) (*Handoff, error) {
	if code == "" {
		return nil, ErrInvalidHandoff
	}

	payload, ok, err := s.store.GetDel(ctx, handoffPrefix+code)
	if err != nil {
		return nil, auth.StorageError(err, "redeem handoff code")
	}
	if !ok {
		return nil, ErrInvalidHandoff
	}

	var h Handoff
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return nil, ErrInvalidHandoff
	}
	return &h, nil
}
