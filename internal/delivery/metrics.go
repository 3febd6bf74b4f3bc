package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks delivery outcomes. Failed means the retry budget was
// exhausted and an operator has to act.
type Metrics struct {
	Delivered prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics creates and registers the delivery metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitations_delivered_total",
			Help: "Total number of invitation deliveries handed off successfully",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_invitation_deliveries_failed_total",
			Help: "Total number of invitation deliveries that exhausted their retry budget",
		}),
	}
}

// IncrementDelivered records a successful handoff.
func (m *Metrics) IncrementDelivered() {
	m.Delivered.Inc()
}

// IncrementFailed records an exhausted delivery.
func (m *Metrics) IncrementFailed() {
	m.Failed.Inc()
}
