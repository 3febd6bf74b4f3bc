package handler

import (
	"time"

	"peopleflow/internal/invitation/models"
	"peopleflow/internal/invitation/service"
	"peopleflow/internal/invitation/token"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
)

// inviteRequest is the wire shape of POST /invitations.
type inviteRequest struct {
	FullName         string    `json:"full_name,omitempty"`
	Email            string    `json:"email"`
	Role             string    `json:"role,omitempty"`
	Scope            []string  `json:"scope,omitempty"`
	RetentionPurpose string    `json:"retention_purpose"`
	NotBefore        time.Time `json:"not_before,omitempty"`
	Origins          []string  `json:"origins,omitempty"`
}

// toDomain validates the wire request into the service request.
func (r inviteRequest) toDomain(tenantID id.TenantID) (service.InviteRequest, error) {
	purpose, err := id.ParseRetentionPurpose(r.RetentionPurpose)
	if err != nil {
		return service.InviteRequest{}, dErrors.New(dErrors.CodeValidation, "unknown retention purpose")
	}
	return service.InviteRequest{
		TenantID:         tenantID,
		FullName:         r.FullName,
		Email:            r.Email,
		Role:             r.Role,
		Scope:            r.Scope,
		RetentionPurpose: purpose,
		Restrictions: token.Restrictions{
			NotBefore: r.NotBefore,
			Origins:   r.Origins,
		},
	}, nil
}

type redeemRequest struct {
	Token string `json:"token"`
}

// claimsResponse is the decoded-token view returned by redemption and the
// audited identity endpoint. This is the only surface where identity fields
// leave the encrypted envelope.
type claimsResponse struct {
	InvitationID string    `json:"invitation_id"`
	TenantID     string    `json:"tenant_id"`
	Scope        []string  `json:"scope,omitempty"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Role         string    `json:"role,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func fromClaims(c *token.Claims) claimsResponse {
	return claimsResponse{
		InvitationID: c.InvitationID.String(),
		TenantID:     c.TenantID.String(),
		Scope:        c.Scope,
		FullName:     c.Identity.FullName,
		Email:        c.Identity.Email,
		Role:         c.Identity.Role,
		ExpiresAt:    c.ExpiresAt,
	}
}

type listResponse struct {
	Invitations []*models.InvitationRecord `json:"invitations"`
}
