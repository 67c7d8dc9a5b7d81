package accounts

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink counts activity events for Prometheus. It plugs in wherever an
// ActivitySink is accepted, usually fanned out next to the audit sink via
// MultiActivitySink.
type MetricsSink struct {
	registrations prometheus.Counter
	verifications prometheus.Counter
	logins        *prometheus.CounterVec
	logouts       prometheus.Counter
	resetRequests prometheus.Counter
	resets        prometheus.Counter
	pwdChanges    prometheus.Counter
	deletions     prometheus.Counter
	other         *prometheus.CounterVec
}

// NewMetricsSink creates the sink and registers its collectors.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	s := &MetricsSink{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "Accounts created.",
		}),
		verifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_email_verifications_total",
			Help: "Email verifications completed.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_logouts_total",
			Help: "Sessions ended by logout.",
		}),
		resetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_password_reset_requests_total",
			Help: "Password reset tokens issued.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_password_resets_total",
			Help: "Passwords reset via token.",
		}),
		pwdChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_password_changes_total",
			Help: "Passwords changed by their owner.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_deletions_total",
			Help: "Accounts deleted.",
		}),
		other: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_activity_events_total",
			Help: "Remaining activity events by type.",
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		s.registrations,
		s.verifications,
		s.logins,
		s.logouts,
		s.resetRequests,
		s.resets,
		s.pwdChanges,
		s.deletions,
		s.other,
	)

	return s
}

var _ ActivitySink = (*MetricsSink)(nil)

// Record implements ActivitySink. Never returns an error: a metrics hiccup
// must not fail the business operation being measured.
func (s *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	switch event.EventType {
	case ActivityEventUserRegistered:
		s.registrations.Inc()
	case ActivityEventEmailVerified:
		s.verifications.Inc()
	case ActivityEventLoginSuccess:
		s.logins.WithLabelValues("success").Inc()
	case ActivityEventLoginFailure:
		s.logins.WithLabelValues("failure").Inc()
	case ActivityEventLogout:
		s.logouts.Inc()
	case ActivityEventPasswordResetRequested:
		s.resetRequests.Inc()
	case ActivityEventPasswordResetSuccess:
		s.resets.Inc()
	case ActivityEventPasswordChanged:
		s.pwdChanges.Inc()
	case ActivityEventAccountDeleted:
		s.deletions.Inc()
	default:
		s.other.WithLabelValues(string(event.EventType)).Inc()
	}

	return nil
}

// MetricsHandler returns the Prometheus scrape handler for the gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
