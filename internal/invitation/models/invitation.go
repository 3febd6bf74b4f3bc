package models

import (
	"time"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
)

// InvitationStatus is the lifecycle state of an invitation record.
type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusRedeemed InvitationStatus = "redeemed"
	StatusRevoked  InvitationStatus = "revoked"
	StatusExpired  InvitationStatus = "expired"
)

// InvitationRecord is the persisted side of an issued invitation.
//
// Invariants:
//   - Token is the signed envelope; the identity inside it is encrypted and
//     is never stored in any other column
//   - LookupHash is deterministic: two invitations for the same normalized
//     identity produce the same hash, enabling "already invited" checks
//     without ever comparing plaintext
//   - Status transitions: pending → redeemed (first successful verification),
//     pending → revoked (staff action), pending → expired (token expiry
//     passed); redeemed/revoked/expired are terminal
//   - AutoDeleteAt bounds how long the record may exist; the retention
//     sweeper hard-deletes it afterwards
type InvitationRecord struct {
	ID               id.InvitationID     `json:"id"`
	TenantID         id.TenantID         `json:"tenant_id"`
	Token            string              `json:"-"`
	LookupHash       string              `json:"lookup_hash"`
	DomainTag        string              `json:"domain_tag"`
	Status           InvitationStatus    `json:"status"`
	RetentionPurpose id.RetentionPurpose `json:"retention_purpose"`
	ExpiresAt        time.Time           `json:"expires_at"`
	AutoDeleteAt     time.Time           `json:"auto_delete_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	// Delivery bookkeeping for the external delivery collaborator.
	DeliveryAttempts  int    `json:"delivery_attempts"`
	LastDeliveryError string `json:"last_delivery_error,omitempty"`
}

// OwnerTenant implements authz.Resource.
func (r *InvitationRecord) OwnerTenant() id.TenantID {
	return r.TenantID
}

// NewInvitationRecord constructs a pending record, enforcing construction
// invariants.
func NewInvitationRecord(
	invitationID id.InvitationID,
	tenantID id.TenantID,
	token, lookupHash, domainTag string,
	purpose id.RetentionPurpose,
	expiresAt, autoDeleteAt, now time.Time,
) (*InvitationRecord, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires a tenant")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires a token")
	}
	if lookupHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires a lookup hash")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires a retention purpose")
	}
	if !autoDeleteAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "auto-delete time must be in the future")
	}
	return &InvitationRecord{
		ID:               invitationID,
		TenantID:         tenantID,
		Token:            token,
		LookupHash:       lookupHash,
		DomainTag:        domainTag,
		Status:           StatusPending,
		RetentionPurpose: purpose,
		ExpiresAt:        expiresAt,
		AutoDeleteAt:     autoDeleteAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsPending reports whether the invitation is still redeemable (ignoring
// expiry, which is time-dependent).
func (r *InvitationRecord) IsPending() bool {
	return r.Status == StatusPending
}

// EffectiveStatus resolves the status at a point in time: a pending record
// whose token expiry has passed reads as expired even before a write marks
// it so.
func (r *InvitationRecord) EffectiveStatus(now time.Time) InvitationStatus {
	if r.Status == StatusPending && now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// CanRedeem checks the pending → redeemed transition.
// Use with ApplyRedemption in Execute callbacks.
func (r *InvitationRecord) CanRedeem(now time.Time) error {
	switch r.EffectiveStatus(now) {
	case StatusPending:
		return nil
	case StatusExpired:
		return dErrors.New(dErrors.CodeTokenExpired, "invitation has expired")
	case StatusRevoked:
		return dErrors.New(dErrors.CodeTokenRevoked, "invitation was revoked")
	default:
		return dErrors.New(dErrors.CodeTokenRevoked, "invitation was already redeemed")
	}
}

// ApplyRedemption transitions the record to redeemed.
// Call CanRedeem first to validate the transition.
func (r *InvitationRecord) ApplyRedemption(now time.Time) {
	r.Status = StatusRedeemed
	r.UpdatedAt = now
}

// CanRevoke checks the pending → revoked transition.
// Use with ApplyRevocation in Execute callbacks.
func (r *InvitationRecord) CanRevoke() error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeConflict, "only pending invitations can be revoked")
	}
	return nil
}

// ApplyRevocation transitions the record to revoked.
// Call CanRevoke first to validate the transition.
func (r *InvitationRecord) ApplyRevocation(now time.Time) {
	r.Status = StatusRevoked
	r.UpdatedAt = now
}

// RecordDeliveryAttempt tracks one attempt by the delivery collaborator.
// lastErr is empty on success.
func (r *InvitationRecord) RecordDeliveryAttempt(lastErr string, now time.Time) {
	r.DeliveryAttempts++
	r.LastDeliveryError = lastErr
	r.UpdatedAt = now
}
