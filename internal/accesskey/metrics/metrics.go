package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	KeysIssued      prometheus.Counter
	IssueRejected   prometheus.Counter
	Validations     *prometheus.CounterVec
	LockoutsReached prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		KeysIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_intake_access_keys_issued_total",
			Help: "Total number of access keys issued",
		}),
		IssueRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_intake_access_key_issue_rejected_total",
			Help: "Issuance requests rejected by the active-key ceiling",
		}),
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_intake_access_key_validations_total",
			Help: "Validation attempts, by outcome",
		}, []string{"outcome"}),
		LockoutsReached: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_intake_access_key_lockouts_total",
			Help: "Keys whose attempt counter reached the lockout threshold",
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.KeysIssued.Inc()
}

func (m *Metrics) IncrementIssueRejected() {
	m.IssueRejected.Inc()
}

func (m *Metrics) IncrementValidation(outcome string) {
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockout() {
	m.LockoutsReached.Inc()
}
