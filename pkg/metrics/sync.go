package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// SyncMetrics counts donation sync work per Stripe mode.
type SyncMetrics struct {
	users        *prometheus.CounterVec
	transactions *prometheus.CounterVec
}

// NewSyncMetrics registers the donation sync counters on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	users := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_sync_users_total",
		Help: "Per-user donation sync attempts by outcome.",
	}, []string{"mode", "outcome"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_sync_transactions_total",
		Help: "Transaction rows upserted by donation sync.",
	}, []string{"mode"})
	reg.MustRegister(users, transactions)
	return &SyncMetrics{users: users, transactions: transactions}
}

// ObserveUser records one user sync outcome.
func (s *SyncMetrics) ObserveUser(mode string, err error) {
	if s == nil || s.users == nil {
		return
	}
	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	s.users.WithLabelValues(normalizeLabel(mode), outcome).Inc()
}

// AddTransactions adds n upserted rows for the mode.
func (s *SyncMetrics) AddTransactions(mode string, n int) {
	if s == nil || s.transactions == nil || n <= 0 {
		return
	}
	s.transactions.WithLabelValues(normalizeLabel(mode)).Add(float64(n))
}
