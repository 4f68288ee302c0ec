package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/kv"
	"github.com/allergysnatcher/auth/social"
)

func TestHandoffIsSingleUse(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := social.NewHandoffStore(kv.NewMemory(clock.Now), 0)
	ctx := context.Background()

	code, err := store.Issue(ctx, social.Handoff{SessionToken: "tok", UserID: "u1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(code), 43)

	h, err := store.Redeem(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "tok", h.SessionToken)

	_, err = store.Redeem(ctx, code)
	assert.Equal(t, social.TextCodeInvalidHandoff, auth.TextCode(err))

	_, err = store.Redeem(ctx, "")
	assert.Equal(t, social.TextCodeInvalidHandoff, auth.TextCode(err))
}

func TestHandoffExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := social.NewHandoffStore(kv.NewMemory(clock.Now), 0)
	ctx := context.Background()

	code, err := store.Issue(ctx, social.Handoff{SessionToken: "tok"})
	require.NoError(t, err)

	clock.Advance(social.DefaultHandoffTTL + time.Second)

	_, err = store.Redeem(ctx, code)
	assert.Equal(t, social.TextCodeInvalidHandoff, auth.TextCode(err))
}
