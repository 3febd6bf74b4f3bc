package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the invitation module.
type Metrics struct {
	Issued         prometheus.Counter
	Redeemed       prometheus.Counter
	Revoked        prometheus.Counter
	DedupeHits     prometheus.Counter
	DecodeDuration prometheus.Histogram
}

// New creates a new Metrics instance with all invitation module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitations_issued_total",
			Help: "Total number of invitations issued",
		}),
		Redeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitations_redeemed_total",
			Help: "Total number of invitations redeemed",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitations_revoked_total",
			Help: "Total number of invitations revoked",
		}),
		DedupeHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitation_dedupe_hits_total",
			Help: "Total number of invitation requests rejected because the identity was already invited",
		}),
		DecodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peopleflow_token_decode_duration_seconds",
			Help:    "Duration of token decode operations (redemption critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementIssued records a successful invitation issuance.
func (m *Metrics) IncrementIssued() { m.Issued.Inc() }

// IncrementRedeemed records a successful redemption.
func (m *Metrics) IncrementRedeemed() { m.Redeemed.Inc() }

// IncrementRevoked records a revocation.
func (m *Metrics) IncrementRevoked() { m.Revoked.Inc() }

// IncrementDedupeHits records an "already invited" rejection.
func (m *Metrics) IncrementDedupeHits() { m.DedupeHits.Inc() }

// ObserveDecode records the duration of a token decode.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDecode(start time.Time) {
	m.DecodeDuration.Observe(time.Since(start).Seconds())
}
