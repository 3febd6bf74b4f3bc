package audit

import (
	"time"

	id "peopleflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: identity decodes, retention sweeps, credit consumption.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. Examples: authorization denials, invitation revocations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	// Examples: invitation issuance, delivery attempts.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
//
// Identity data never appears here. Decode trails carry the lookup hash, not
// the address it was derived from.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	TenantID  id.TenantID   `json:"tenant_id,omitempty"`
	// ActorID tracks who performed the action. A string to support both
	// user IDs and system actors ("retention-sweeper").
	ActorID string `json:"actor_id,omitempty"`
	// Subject identifies what the action was about (invitation id,
	// workflow id, transaction id).
	Subject string `json:"subject,omitempty"`
	// LookupHash is the one-way hash of the identity an event concerns.
	// Populated for decode/redemption trails so compliance can correlate
	// without the system ever logging plaintext identities.
	LookupHash string `json:"lookup_hash,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	// Device carries coarse client attribution ("Chrome/Linux") on
	// redemption paths.
	Device string `json:"device,omitempty"`
	// Count carries aggregate figures, e.g. records purged per sweep.
	// Retention reporting is aggregate-only; no per-record events exist.
	Count int `json:"count,omitempty"`
}

// AuditEvent names every action the platform records.
type AuditEvent string

const (
	// Invitation events
	EventInvitationIssued   AuditEvent = "invitation_issued"
	EventInvitationRedeemed AuditEvent = "invitation_redeemed"
	EventInvitationRevoked  AuditEvent = "invitation_revoked"
	EventIdentityDecoded    AuditEvent = "identity_decoded"

	// Ledger events
	EventCreditPurchased AuditEvent = "credit_purchased"
	EventCreditConsumed  AuditEvent = "credit_consumed"
	EventCreditReserved  AuditEvent = "credit_reserved"
	EventCreditReleased  AuditEvent = "credit_released"

	// Workflow events
	EventWorkflowActivated AuditEvent = "workflow_activated"
	EventWorkflowCompleted AuditEvent = "workflow_completed"
	EventWorkflowCancelled AuditEvent = "workflow_cancelled"

	// Security events
	EventAuthorizationDenied AuditEvent = "authorization_denied"

	// Operational events
	EventDeliveryFailed AuditEvent = "delivery_failed"

	// Compliance bookkeeping
	EventRetentionSweepCompleted AuditEvent = "retention_sweep_completed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventInvitationIssued:   CategoryOperations,
	EventInvitationRedeemed: CategoryCompliance,
	EventInvitationRevoked:  CategorySecurity,
	EventIdentityDecoded:    CategoryCompliance,

	EventCreditPurchased: CategoryCompliance,
	EventCreditConsumed:  CategoryCompliance,
	EventCreditReserved:  CategoryOperations,
	EventCreditReleased:  CategoryOperations,

	EventWorkflowActivated: CategoryCompliance,
	EventWorkflowCompleted: CategoryOperations,
	EventWorkflowCancelled: CategoryOperations,

	EventAuthorizationDenied: CategorySecurity,

	EventDeliveryFailed: CategoryOperations,

	EventRetentionSweepCompleted: CategoryCompliance,
}

// CategoryOf returns the category for an event name, defaulting to
// operations for unknown events.
func CategoryOf(event AuditEvent) EventCategory {
	if c, ok := eventCategories[event]; ok {
		return c
	}
	return CategoryOperations
}
