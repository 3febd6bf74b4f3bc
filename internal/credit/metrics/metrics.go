package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credit ledger.
type Metrics struct {
	Purchased          prometheus.Counter
	Consumed           prometheus.Counter
	InsufficientCredit prometheus.Counter
	DuplicateConsume   prometheus.Counter
	ConsumeDuration    prometheus.Histogram
}

// New creates a new Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		Purchased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_credits_purchased_total",
			Help: "Total credits added to purchased pools",
		}),
		Consumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_credits_consumed_total",
			Help: "Total credits debited by workflow activations",
		}),
		InsufficientCredit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_credit_insufficient_total",
			Help: "Total consume attempts rejected for insufficient balance",
		}),
		DuplicateConsume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_credit_duplicate_consume_total",
			Help: "Total consume attempts rejected by the one-debit-per-workflow guard",
		}),
		ConsumeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peopleflow_credit_consume_duration_seconds",
			Help:    "Duration of atomic credit consumption",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// AddPurchased records credits added by a purchase or adjustment.
func (m *Metrics) AddPurchased(amount int) { m.Purchased.Add(float64(amount)) }

// IncrementConsumed records a successful debit.
func (m *Metrics) IncrementConsumed() { m.Consumed.Inc() }

// IncrementInsufficient records an insufficient-balance rejection.
func (m *Metrics) IncrementInsufficient() { m.InsufficientCredit.Inc() }

// IncrementDuplicate records an already-consumed rejection.
func (m *Metrics) IncrementDuplicate() { m.DuplicateConsume.Inc() }

// ObserveConsume records the duration of a consume operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveConsume(start time.Time) {
	m.ConsumeDuration.Observe(time.Since(start).Seconds())
}
