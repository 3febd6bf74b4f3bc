// Package service orchestrates the invitation lifecycle: issue, deliver,
// redeem, revoke, and hash-based lookup. All persistence goes through the
// store contract; all policy goes through the authz engine; identity fields
// only ever exist inside the encrypted token.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"peopleflow/internal/authz"
	"peopleflow/internal/delivery"
	invitationmetrics "peopleflow/internal/invitation/metrics"
	"peopleflow/internal/invitation/models"
	"peopleflow/internal/invitation/privacy"
	"peopleflow/internal/invitation/token"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/email"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/platform/sentinel"
	"peopleflow/pkg/requestcontext"
)

// defaultInviteTTL bounds how long a token stays redeemable.
const defaultInviteTTL = 7 * 24 * time.Hour

// retentionGrace is how long a record may outlive its token before the
// sweeper purges it. Kept short: once the token is dead the record only
// serves compliance lookups.
const retentionGrace = 30 * 24 * time.Hour

// Store is the persistence dependency (see internal/invitation/store).
type Store interface {
	CreateIfAbsent(ctx context.Context, record *models.InvitationRecord) error
	FindByID(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error)
	FindByLookupHash(ctx context.Context, tenantID id.TenantID, lookupHash string) (*models.InvitationRecord, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.InvitationRecord, error)
	Execute(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID,
		validate func(*models.InvitationRecord) error,
		mutate func(*models.InvitationRecord)) (*models.InvitationRecord, error)
}

// TokenRevoker pushes revoked token ids onto the fast-path revocation list.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Dispatcher hands tokens to the delivery collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg delivery.Message) error
}

// AuditPublisher records invitation lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the invitation orchestrator.
type Service struct {
	store      Store
	codec      *token.Codec
	engine     *authz.Engine
	revoker    TokenRevoker
	dispatcher Dispatcher
	auditor    AuditPublisher
	logger     *slog.Logger
	metrics    *invitationmetrics.Metrics
	inviteTTL  time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher attaches the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithMetrics attaches invitation metrics.
func WithMetrics(m *invitationmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTokenRevoker attaches the fast-path revocation list.
func WithTokenRevoker(r TokenRevoker) Option {
	return func(s *Service) { s.revoker = r }
}

// WithDispatcher attaches the delivery dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithInviteTTL overrides the token lifetime.
func WithInviteTTL(ttl time.Duration) Option {
	return func(s *Service) { s.inviteTTL = ttl }
}

// New constructs the invitation service.
func New(store Store, codec *token.Codec, engine *authz.Engine, opts ...Option) *Service {
	s := &Service{
		store:     store,
		codec:     codec,
		engine:    engine,
		inviteTTL: defaultInviteTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StatusSource adapts a Store to the codec's revocation cross-reference.
type StatusSource struct {
	Store Store
}

// Status resolves the backing record's effective status by lookup hash.
func (s StatusSource) Status(ctx context.Context, tenantID id.TenantID, lookupHash string) (models.InvitationStatus, error) {
	record, err := s.Store.FindByLookupHash(ctx, tenantID, lookupHash)
	if err != nil {
		return "", err
	}
	return record.EffectiveStatus(requestcontext.Now(ctx)), nil
}

// InviteRequest carries everything needed to issue an invitation. Identity
// fields are encrypted into the token and never persisted elsewhere.
type InviteRequest struct {
	TenantID         id.TenantID
	FullName         string
	Email            string
	Role             string
	Scope            []string
	RetentionPurpose id.RetentionPurpose
	Restrictions     token.Restrictions
}

// Invite issues a new invitation: dedupe by lookup hash, encode the token,
// persist the record, and hand the token to the delivery collaborator.
// Delivery failure does not fail issuance; the attempt bookkeeping and the
// operator queue carry it.
func (s *Service) Invite(ctx context.Context, caller authz.Caller, req InviteRequest) (*models.InvitationRecord, error) {
	if err := s.engine.Require(ctx, caller, authz.OpInvite, authz.TenantResource(req.TenantID)); err != nil {
		return nil, err
	}
	if !email.IsPlausible(req.Email) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}
	if !req.RetentionPurpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "a retention purpose is required")
	}

	lookupHash := privacy.Hash(req.Email)
	domainTag := privacy.DeriveDomainTag(req.Email)

	// Dedupe before paying for encryption. The store's unique index remains
	// the authority under races.
	if existing, err := s.store.FindByLookupHash(ctx, req.TenantID, lookupHash); err == nil && existing.IsPending() {
		s.incrementDedupeHits()
		return nil, dErrors.New(dErrors.CodeConflict, "this person has already been invited")
	}

	now := requestcontext.Now(ctx)
	invitationID := id.NewInvitationID()

	fullName := req.FullName
	if fullName == "" {
		first, last := email.DeriveNameFromAddress(req.Email)
		fullName = first + " " + last
	}

	signed, err := s.codec.Encode(ctx, token.Claims{
		InvitationID: invitationID,
		TenantID:     req.TenantID,
		Scope:        req.Scope,
		LookupHash:   lookupHash,
		Restrictions: req.Restrictions,
		Identity: token.Identity{
			FullName: fullName,
			Email:    email.Normalize(req.Email),
			Role:     req.Role,
		},
	}, s.inviteTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode invitation token")
	}

	expiresAt := now.Add(s.inviteTTL)
	record, err := models.NewInvitationRecord(
		invitationID, req.TenantID, signed, lookupHash, domainTag,
		req.RetentionPurpose, expiresAt, expiresAt.Add(retentionGrace), now,
	)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateIfAbsent(ctx, record); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) || err == sentinel.ErrAlreadyUsed || err == sentinel.ErrConflict {
			s.incrementDedupeHits()
			return nil, dErrors.New(dErrors.CodeConflict, "this person has already been invited")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist invitation")
	}

	s.emit(ctx, audit.EventInvitationIssued, record, caller.UserID.String(), "")
	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}

	s.dispatch(ctx, record, signed, email.Normalize(req.Email), fullName)
	return record, nil
}

// dispatch hands off to the delivery collaborator. Failures are surfaced
// through attempt bookkeeping and the operator queue, not to the inviter.
func (s *Service) dispatch(ctx context.Context, record *models.InvitationRecord, signed, recipient, fullName string) {
	if s.dispatcher == nil {
		return
	}
	msg := delivery.Message{
		InvitationID:     record.ID,
		TenantID:         record.TenantID,
		Recipient:        recipient,
		Token:            signed,
		RenderedTemplate: renderInviteTemplate(fullName),
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "invitation created but delivery failed",
			"invitation_id", record.ID,
			"error", err,
		)
	}
}

func renderInviteTemplate(fullName string) string {
	return fmt.Sprintf("Hi %s, you have been invited. Use the enclosed link to get started.", fullName)
}

// Redeem verifies a token end to end and marks the invitation redeemed.
// First redemption wins; later attempts fail with CodeTokenRevoked. Callers
// present only the token; no session exists yet.
func (s *Service) Redeem(ctx context.Context, signed string) (*token.Claims, error) {
	start := time.Now()
	claims, err := s.codec.Decode(ctx, signed)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDecode(start)
	}

	now := requestcontext.Now(ctx)
	record, err := s.store.Execute(ctx, claims.TenantID, claims.InvitationID,
		func(r *models.InvitationRecord) error { return r.CanRedeem(now) },
		func(r *models.InvitationRecord) { r.ApplyRedemption(now) },
	)
	if err != nil {
		if err == sentinel.ErrNotFound {
			// Swept between decode and redemption; same clean failure the
			// codec gives for a missing record.
			return nil, dErrors.New(dErrors.CodeTokenRevoked, "invitation no longer exists")
		}
		return nil, err
	}

	s.emit(ctx, audit.EventInvitationRedeemed, record, "", "")
	s.emit(ctx, audit.EventIdentityDecoded, record, "", "redemption")
	if s.metrics != nil {
		s.metrics.IncrementRedeemed()
	}
	return claims, nil
}

// DecodeIdentity is the audited staff surface for reading a stored token's
// identity fields. The presentation layer never sees decrypted identity
// through any other path.
func (s *Service) DecodeIdentity(ctx context.Context, caller authz.Caller, tenantID id.TenantID, invitationID id.InvitationID) (*token.Claims, error) {
	record, err := s.store.FindByID(ctx, tenantID, invitationID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := s.engine.Require(ctx, caller, authz.OpDecodeIdentity, record); err != nil {
		return nil, err
	}

	claims, err := s.codec.Decode(ctx, record.Token)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventIdentityDecoded, record, caller.UserID.String(), "staff access")
	return claims, nil
}

// Revoke transitions a pending invitation to revoked and pushes the token
// onto the fast-path revocation list for its remaining lifetime.
func (s *Service) Revoke(ctx context.Context, caller authz.Caller, tenantID id.TenantID, invitationID id.InvitationID) (*models.InvitationRecord, error) {
	record, err := s.store.FindByID(ctx, tenantID, invitationID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := s.engine.Require(ctx, caller, authz.OpRevoke, record); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record, err = s.store.Execute(ctx, tenantID, invitationID,
		func(r *models.InvitationRecord) error { return r.CanRevoke() },
		func(r *models.InvitationRecord) { r.ApplyRevocation(now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if s.revoker != nil {
		if remaining := record.ExpiresAt.Sub(now); remaining > 0 {
			if err := s.revoker.RevokeToken(ctx, record.ID.String(), remaining); err != nil && s.logger != nil {
				// The record status is authoritative; a cold TRL only
				// costs a store read on the next decode.
				s.logger.WarnContext(ctx, "failed to push token revocation list",
					"invitation_id", record.ID,
					"error", err,
				)
			}
		}
	}

	s.emit(ctx, audit.EventInvitationRevoked, record, caller.UserID.String(), "")
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	return record, nil
}

// LookupResult answers "has this identity already been invited?" without
// exposing anything but status.
type LookupResult struct {
	AlreadyInvited bool                    `json:"already_invited"`
	Status         models.InvitationStatus `json:"status,omitempty"`
}

// Lookup checks for an existing invitation by normalized identity hash. The
// plaintext identity is hashed immediately and never compared directly.
func (s *Service) Lookup(ctx context.Context, caller authz.Caller, tenantID id.TenantID, identity string) (*LookupResult, error) {
	if err := s.engine.Require(ctx, caller, authz.OpRead, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}

	record, err := s.store.FindByLookupHash(ctx, tenantID, privacy.Hash(identity))
	if err != nil {
		if err == sentinel.ErrNotFound {
			return &LookupResult{AlreadyInvited: false}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up invitation")
	}
	return &LookupResult{
		AlreadyInvited: true,
		Status:         record.EffectiveStatus(requestcontext.Now(ctx)),
	}, nil
}

// List returns a tenant's invitation records for display surfaces. Tokens
// are excluded from serialization; identity is only reachable through
// DecodeIdentity.
func (s *Service) List(ctx context.Context, caller authz.Caller, tenantID id.TenantID) ([]*models.InvitationRecord, error) {
	if err := s.engine.Require(ctx, caller, authz.OpRead, authz.TenantResource(tenantID)); err != nil {
		return nil, err
	}
	records, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list invitations")
	}
	return records, nil
}

// RecordDeliveryAttempt implements delivery.AttemptRecorder.
func (s *Service) RecordDeliveryAttempt(ctx context.Context, tenantID id.TenantID, invitationID id.InvitationID, lastErr string) error {
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, tenantID, invitationID,
		func(*models.InvitationRecord) error { return nil },
		func(r *models.InvitationRecord) { r.RecordDeliveryAttempt(lastErr, now) },
	)
	return err
}

func (s *Service) incrementDedupeHits() {
	if s.metrics != nil {
		s.metrics.IncrementDedupeHits()
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, record *models.InvitationRecord, actorID, reason string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Category:   audit.CategoryOf(action),
		Action:     string(action),
		TenantID:   record.TenantID,
		ActorID:    actorID,
		Subject:    record.ID.String(),
		LookupHash: record.LookupHash,
		Reason:     reason,
		RequestID:  requestcontext.RequestID(ctx),
		Device:     requestcontext.Device(ctx),
	})
}

func wrapStoreErr(err error) error {
	if err == sentinel.ErrNotFound {
		return dErrors.New(dErrors.CodeNotFound, "invitation not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "invitation store failure")
}
