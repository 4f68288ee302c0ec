package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess          = "success"
	OutcomeInvalid          = "invalid_credentials"
	OutcomeDisabled         = "disabled"
	OutcomeUnauthenticated  = "unauthenticated"
	OutcomeRefreshExpired   = "refresh_expired"
	OutcomeRaceLost         = "race_lost"
	OutcomeStorageFailure   = "storage_failure"
	OutcomeLoggedIn         = "logged_in"
	OutcomeLoggedOut        = "logged_out"
	OutcomeRefreshedOnCheck = "refreshed"
)

// SessionMetrics observes session lifecycle outcomes.
type SessionMetrics interface {
	ObserveLogin(method, outcome string)
	ObserveRotate(outcome string)
	ObserveStatus(outcome string)
	ObserveRevoked(reason string, count int)
}

// PrometheusMetrics implements SessionMetrics with counters.
type PrometheusMetrics struct {
	logins   *prometheus.CounterVec
	rotates  *prometheus.CounterVec
	statuses *prometheus.CounterVec
	revoked  *prometheus.CounterVec
}

// NewPrometheusMetrics creates the counters and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allergysnatcher",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		rotates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allergysnatcher",
			Subsystem: "auth",
			Name:      "rotations_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allergysnatcher",
			Subsystem: "auth",
			Name:      "status_checks_total",
			Help:      "Status checks by outcome.",
		}, []string{"outcome"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allergysnatcher",
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Sessions deleted by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.logins, m.rotates, m.statuses, m.revoked} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *PrometheusMetrics) ObserveLogin(method, outcome string) {
	m.logins.WithLabelValues(method, outcome).Inc()
}

func (m *PrometheusMetrics) ObserveRotate(outcome string) {
	m.rotates.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) ObserveStatus(outcome string) {
	m.statuses.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) ObserveRevoked(reason string, count int) {
	if count <= 0 {
		return
	}
	m.revoked.WithLabelValues(reason).Add(float64(count))
}

// Logins exposes the login counter, mostly for tests.
func (m *PrometheusMetrics) Logins() *prometheus.CounterVec { return m.logins }

// Rotations exposes the rotation counter.
func (m *PrometheusMetrics) Rotations() *prometheus.CounterVec { return m.rotates }

// Revoked exposes the revocation counter.
func (m *PrometheusMetrics) Revoked() *prometheus.CounterVec { return m.revoked }

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, string) {}
func (noopMetrics) ObserveRotate(string)        {}
func (noopMetrics) ObserveStatus(string)        {}
func (noopMetrics) ObserveRevoked(string, int)  {}
