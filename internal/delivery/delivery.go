// Package delivery hands tokens to the external delivery collaborator
// (email/SMS transport). The core never does transport itself; it tracks
// attempt counts and the last error, retries with backoff up to a fixed
// bound, and then surfaces the failure to the operator queue.
package delivery

import (
	"context"
	"log/slog"
	"time"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/requestcontext"
)

//go:generate mockgen -destination=mock/sender_mock.go -package=mock peopleflow/internal/delivery Sender

// maxAttempts is the hard bound on delivery retries. After three failures
// the invitation requires manual intervention; the dispatcher never keeps
// trying on its own.
const maxAttempts = 3

// Message is what the collaborator receives. The recipient address exists
// here transiently for transport only; it is never persisted outside the
// encrypted token.
type Message struct {
	InvitationID     id.InvitationID
	TenantID         id.TenantID
	Recipient        string
	Token            string
	RenderedTemplate string
}

// Sender is the external delivery collaborator boundary.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// AttemptRecorder persists per-invitation delivery bookkeeping (attempt
// count, last error). Implemented by the invitation service.
type AttemptRecorder interface {
	RecordDeliveryAttempt(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID, lastErr string) error
}

// AuditPublisher records exhausted deliveries for the operator queue.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher retries sends with exponential backoff.
type Dispatcher struct {
	sender   Sender
	recorder AttemptRecorder
	backoff  time.Duration
	logger   *slog.Logger
	auditor  AuditPublisher
	metrics  *Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithAttemptRecorder attaches per-invitation delivery bookkeeping.
func WithAttemptRecorder(r AttemptRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithAuditPublisher attaches the operator-queue audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(d *Dispatcher) { d.auditor = p }
}

// WithMetrics attaches delivery counters.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBackoff overrides the base backoff interval (doubled per attempt).
// Tests shrink it; production keeps the default.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = base }
}

// NewDispatcher constructs a retrying dispatcher around a sender.
func NewDispatcher(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		backoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch attempts delivery, retrying with exponential backoff up to the
// attempt bound. Each attempt's outcome is recorded against the invitation.
// After the bound, returns CodeDeliveryFailed and emits an operator-queue
// event; no further retries happen without manual action.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	var lastErr error
	wait := d.backoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = d.sender.Send(ctx, msg)
		d.recordAttempt(ctx, msg, lastErr)

		if lastErr == nil {
			if d.metrics != nil {
				d.metrics.IncrementDelivered()
			}
			return nil
		}

		if d.logger != nil {
			d.logger.WarnContext(ctx, "invitation delivery attempt failed",
				"invitation_id", msg.InvitationID,
				"tenant_id", msg.TenantID,
				"attempt", attempt,
				"error", lastErr,
			)
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeDeliveryFailed, "delivery cancelled")
		case <-time.After(wait):
		}
		wait *= 2
	}

	d.surfaceToOperators(ctx, msg, lastErr)
	return dErrors.Wrap(lastErr, dErrors.CodeDeliveryFailed, "invitation delivery failed after retries")
}

func (d *Dispatcher) recordAttempt(ctx context.Context, msg Message, sendErr error) {
	if d.recorder == nil {
		return
	}
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
	}
	if err := d.recorder.RecordDeliveryAttempt(ctx, msg.TenantID, msg.InvitationID, errText); err != nil && d.logger != nil {
		d.logger.ErrorContext(ctx, "failed to record delivery attempt",
			"invitation_id", msg.InvitationID,
			"error", err,
		)
	}
}

func (d *Dispatcher) surfaceToOperators(ctx context.Context, msg Message, lastErr error) {
	if d.metrics != nil {
		d.metrics.IncrementFailed()
	}
	if d.logger != nil {
		d.logger.ErrorContext(ctx, "invitation delivery exhausted retries, manual intervention required",
			"invitation_id", msg.InvitationID,
			"tenant_id", msg.TenantID,
			"error", lastErr,
		)
	}
	if d.auditor != nil {
		reason := ""
		if lastErr != nil {
			reason = lastErr.Error()
		}
		_ = d.auditor.Emit(ctx, audit.Event{
			Category:  audit.CategoryOf(audit.EventDeliveryFailed),
			Action:    string(audit.EventDeliveryFailed),
			TenantID:  msg.TenantID,
			Subject:   msg.InvitationID.String(),
			Reason:    reason,
			RequestID: requestcontext.RequestID(ctx),
		})
	}
}
