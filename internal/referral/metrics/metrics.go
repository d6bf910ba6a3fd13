package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReferralsCreated   *prometheus.CounterVec
	ProvidersSelected  prometheus.Counter
	StatusTransitions  *prometheus.CounterVec
	ReuseChecksBlocked *prometheus.CounterVec
	SaveConflicts      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ReferralsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_intake_referrals_created_total",
			Help: "Total number of referrals created, by intake source",
		}, []string{"source"}),
		ProvidersSelected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_intake_providers_selected_total",
			Help: "Total number of successful provider selections",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_intake_status_transitions_total",
			Help: "Total number of status transitions, by target status",
		}, []string{"to"}),
		ReuseChecksBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_intake_reuse_blocked_total",
			Help: "Reuse checks that did not return Available, by outcome",
		}, []string{"outcome"}),
		SaveConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_intake_save_conflicts_total",
			Help: "Optimistic-concurrency conflicts seen while saving referrals",
		}),
	}
}

func (m *Metrics) IncrementCreated(source string) {
	m.ReferralsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementProviderSelected() {
	m.ProvidersSelected.Inc()
}

func (m *Metrics) IncrementTransition(to string) {
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementReuseBlocked(outcome string) {
	m.ReuseChecksBlocked.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementSaveConflict() {
	m.SaveConflicts.Inc()
}
