// Package retention hard-deletes records past their scheduled deletion time.
//
// The sweeper runs on a ticker, not per request. It shares the stores with
// live traffic without extra locking: a record deleted mid-use surfaces to
// in-flight token verification as a clean revocation, never a partial read.
// Compliance bookkeeping is aggregate only; no per-record trace of what was
// purged survives the purge.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/requestcontext"
)

const defaultInterval = time.Hour

// Purger is any store that can hard-delete rows scheduled for erasure. It
// returns how many rows it removed.
type Purger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditPublisher records sweep completions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics counts purged records for compliance dashboards.
type Metrics struct {
	Purged prometheus.Counter
	Sweeps prometheus.Counter
}

// NewMetrics registers the retention counters.
func NewMetrics() *Metrics {
	return &Metrics{
		Purged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_retention_purged_total",
			Help: "Total records hard-deleted by the retention sweeper",
		}),
		Sweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peopleflow_retention_sweeps_total",
			Help: "Total completed retention sweep cycles",
		}),
	}
}

// Sweeper periodically purges records whose auto-delete time has passed.
type Sweeper struct {
	purgers  []Purger
	interval time.Duration
	logger   *slog.Logger
	auditor  AuditPublisher
	metrics  *Metrics
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) { s.interval = interval }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithAuditPublisher attaches the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Sweeper) { s.auditor = p }
}

// WithMetrics attaches the compliance counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// New constructs a sweeper over the given purgers.
func New(purgers []Purger, opts ...Option) *Sweeper {
	s := &Sweeper{
		purgers:  purgers,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until the context is cancelled. One
// immediate sweep runs at startup so a crash-looping process still makes
// retention progress.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.SweepOnce(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce purges everything past its auto-delete time across all purgers,
// using one consistent cutoff for the whole cycle. Returns the total number
// of purged records.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := requestcontext.Now(ctx)

	counts := make([]int, len(s.purgers))
	g, gctx := errgroup.WithContext(ctx)
	for i, purger := range s.purgers {
		g.Go(func() error {
			n, err := purger.DeleteExpiredBefore(gctx, cutoff)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	if s.metrics != nil {
		s.metrics.Purged.Add(float64(total))
		s.metrics.Sweeps.Inc()
	}
	if s.auditor != nil {
		// Aggregate count only. Subjects are gone; the trail must not
		// resurrect them.
		_ = s.auditor.Emit(ctx, audit.Event{
			Category: audit.CategoryOf(audit.EventRetentionSweepCompleted),
			Action:   string(audit.EventRetentionSweepCompleted),
			Count:    total,
		})
	}
	if s.logger != nil && total > 0 {
		s.logger.InfoContext(ctx, "retention sweep completed",
			"purged", total,
			"cutoff", cutoff,
		)
	}
	return total, nil
}
