package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the security counters exported on /metrics. A nil *Metrics
// is valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	logins           *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	reuseDetected    prometheus.Counter
	mfaVerifications *prometheus.CounterVec
	permissionCache  *prometheus.CounterVec
	sessionsEvicted  prometheus.Counter
}

// New registers the counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"result"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_token_reuse_detected_total",
			Help: "Refresh token replays that triggered family revocation.",
		}),
		mfaVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_mfa_verifications_total",
			Help: "MFA verification attempts by method and outcome.",
		}, []string{"method", "result"}),
		permissionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_permission_cache_total",
			Help: "Permission resolver cache lookups.",
		}, []string{"outcome"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_evicted_total",
			Help: "Sessions evicted by the concurrent-session cap.",
		}),
	}
	reg.MustRegister(m.logins, m.refreshes, m.reuseDetected, m.mfaVerifications,
		m.permissionCache, m.sessionsEvicted)
	return m
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) TokenReuseDetected() {
	if m != nil {
		m.reuseDetected.Inc()
	}
}

func (m *Metrics) MFAVerification(method, result string) {
	if m != nil {
		m.mfaVerifications.WithLabelValues(method, result).Inc()
	}
}

func (m *Metrics) PermissionCache(outcome string) {
	if m != nil {
		m.permissionCache.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SessionEvicted() {
	if m != nil {
		m.sessionsEvicted.Inc()
	}
}
