package auth_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
)

func TestPrometheusMetricsRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()

	m, err := auth.NewPrometheusMetrics(reg)
	require.NoError(t, err)

	m.ObserveLogin(auth.LoginMethodPassword, auth.OutcomeSuccess)
	m.ObserveRevoked(auth.RevokeReasonLogout, 0)
	m.ObserveRevoked(auth.RevokeReasonBulk, 3)

	problems, err := testutil.GatherAndLint(reg)
	require.NoError(t, err)
	assert.Empty(t, problems)

	_, err = auth.NewPrometheusMetrics(reg)
	assert.Error(t, err, "double registration")
}

func TestSessionManagerMetrics(t *testing.T) {
	h := newHarness(t)
	h.user(t, "alice", "pw123", auth.RoleUser)

	m, err := auth.NewPrometheusMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(0, 0)
	require.NoError(t, err)
	sessions := auth.NewSessionManager(h.repo, issuer,
		auth.NewUserProvider(h.repo.Users(), h.hasher),
		auth.WithClock(h.clock.Now),
		auth.WithSessionMetrics(m),
	)

	ctx := context.Background()
	res, err := sessions.Login(ctx, "alice", "pw123", auth.RequestMeta{})
	require.NoError(t, err)
	_, err = sessions.Login(ctx, "alice", "bad", auth.RequestMeta{})
	require.Error(t, err)

	_, err = sessions.Rotate(ctx, res.Credentials.RefreshToken)
	require.NoError(t, err)
	_, err = sessions.Rotate(ctx, res.Credentials.RefreshToken)
	require.Error(t, err)

	_, err = sessions.BulkRevoke(ctx, res.User.ID, auth.RevokeReasonBulk)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins().WithLabelValues(auth.LoginMethodPassword, auth.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins().WithLabelValues(auth.LoginMethodPassword, auth.OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rotations().WithLabelValues(auth.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rotations().WithLabelValues(auth.OutcomeUnauthenticated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Revoked().WithLabelValues(auth.RevokeReasonBulk)))
}
