package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authorization outcomes. Denials are labelled by operation
// so a misbehaving integration shows up as a spike on one label.
type Metrics struct {
	Denied *prometheus.CounterVec
}

// NewMetrics creates and registers the authorization metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Denied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peopleflow_authorization_denied_total",
			Help: "Total number of denied authorization decisions",
		}, []string{"operation"}),
	}
}

// IncrementDenied records a denial for the given operation.
func (m *Metrics) IncrementDenied(operation string) {
	m.Denied.WithLabelValues(operation).Inc()
}
