// Package authz is the sole arbiter of cross-tenant visibility. Every data
// access path, regardless of resource type, calls through Engine.Authorize.
//
// The caller taxonomy is a closed set resolved exactly once at credential
// verification time. No caller-supplied field can widen its own scope:
// tenant binding is established at credential issuance and is immutable for
// the credential's lifetime.
package authz

import (
	"context"
	"log/slog"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/requestcontext"
)

// Role is the closed caller classification. Dynamic role strings from
// session metadata are parsed into this type once and never re-derived
// mid-request.
type Role string

const (
	// RoleOperator has full cross-tenant access for maintenance and support
	// tooling. Never delivered to tenant-facing surfaces.
	RoleOperator Role = "operator"

	// RoleTenantUser is scoped strictly to rows of its bound tenant.
	RoleTenantUser Role = "tenant_user"

	// RoleTenantSuperuser is a tenant user with the elevated-operations
	// flag, still bound to the same tenant.
	RoleTenantSuperuser Role = "tenant_superuser"
)

// ParseRole resolves a raw role string from a verified credential into the
// closed set. Unknown values fail with CodeUnauthorized so a mistyped or
// forged role can never grant access.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOperator, RoleTenantUser, RoleTenantSuperuser:
		return Role(s), nil
	default:
		return "", dErrors.New(dErrors.CodeUnauthorized, "unknown caller role")
	}
}

// Caller is the resolved identity every authorization decision is made for.
type Caller struct {
	UserID   id.UserID
	Role     Role
	TenantID id.TenantID
}

// IsOperator reports whether the caller carries cross-tenant privileges.
func (c Caller) IsOperator() bool {
	return c.Role == RoleOperator
}

// ResolveCaller converts the middleware-bound caller into the closed Caller
// type. This is the single place raw credential strings become typed claims;
// handlers call it once and pass the result down. A tenant user carrying the
// elevated flag resolves to superuser.
func ResolveCaller(ctx context.Context) (Caller, error) {
	info, ok := requestcontext.Caller(ctx)
	if !ok {
		return Caller{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	role, err := ParseRole(info.Role)
	if err != nil {
		return Caller{}, err
	}
	if role == RoleTenantUser && info.Elevated {
		role = RoleTenantSuperuser
	}
	userID, err := id.ParseUserID(info.UserID)
	if err != nil {
		return Caller{}, dErrors.New(dErrors.CodeUnauthorized, "credential carries no user identity")
	}
	caller := Caller{UserID: userID, Role: role}
	if role != RoleOperator {
		tenantID, err := id.ParseTenantID(info.TenantID)
		if err != nil {
			return Caller{}, dErrors.New(dErrors.CodeUnauthorized, "credential carries no tenant binding")
		}
		caller.TenantID = tenantID
	}
	return caller, nil
}

// Operation names a data-layer action for policy evaluation.
type Operation string

const (
	OpRead            Operation = "read"
	OpInvite          Operation = "invite"
	OpRedeem          Operation = "redeem"
	OpRevoke          Operation = "revoke"
	OpDecodeIdentity  Operation = "decode_identity"
	OpPurchaseCredits Operation = "purchase_credits"
	OpReserveCredits  Operation = "reserve_credits"
	OpActivate        Operation = "activate_workflow"
	OpTransition      Operation = "transition_workflow"
)

// elevatedOperations require the superuser flag (or operator role). Revoking
// invitations and buying credits are deliberate staff actions, not everyday
// tenant-user work.
var elevatedOperations = map[Operation]bool{
	OpRevoke:          true,
	OpDecodeIdentity:  true,
	OpPurchaseCredits: true,
	OpReserveCredits:  true,
}

// Resource is anything ownable by a tenant. Implemented by invitation
// records, workflow instances, and ledger balances.
type Resource interface {
	OwnerTenant() id.TenantID
}

// TenantResource is the trivial Resource for operations scoped to a tenant
// as a whole (balance reads, invitation listings).
type TenantResource id.TenantID

func (r TenantResource) OwnerTenant() id.TenantID { return id.TenantID(r) }

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// AuditPublisher records authorization denials for security review.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine evaluates the tenant-isolation policy. It is stateless; the options
// only attach observability.
type Engine struct {
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger for denial logging.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAuditPublisher attaches an audit sink for denial events.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Engine) { e.auditor = p }
}

// WithMetrics attaches denial counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs the policy engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize is the single policy-evaluation function. It is total: every
// input terminates with a decision, and every ambiguous or missing claim
// resolves to deny. It never silently narrows a request to a
// smaller-but-still-wrong scope; the caller gets the denial instead.
func (e *Engine) Authorize(ctx context.Context, caller Caller, op Operation, resource Resource) Decision {
	d := e.evaluate(caller, op, resource)
	if !d.Allowed {
		e.recordDenial(ctx, caller, op, d.Reason)
	}
	return d
}

// Require is Authorize for call sites that want an error: it returns a
// CodeForbidden domain error on denial.
func (e *Engine) Require(ctx context.Context, caller Caller, op Operation, resource Resource) error {
	if d := e.Authorize(ctx, caller, op, resource); !d.Allowed {
		return dErrors.New(dErrors.CodeForbidden, "operation not permitted")
	}
	return nil
}

func (e *Engine) evaluate(caller Caller, op Operation, resource Resource) Decision {
	if caller.UserID.IsNil() {
		return deny("missing caller identity")
	}

	switch caller.Role {
	case RoleOperator:
		// Full cross-tenant access for support tooling.
		return allow()

	case RoleTenantUser, RoleTenantSuperuser:
		if caller.TenantID.IsNil() {
			return deny("caller has no tenant binding")
		}
		if resource == nil {
			return deny("no resource to scope the operation to")
		}
		if resource.OwnerTenant() != caller.TenantID {
			return deny("resource belongs to another tenant")
		}
		if elevatedOperations[op] && caller.Role != RoleTenantSuperuser {
			return deny("operation requires elevated privileges")
		}
		return allow()

	default:
		// Unknown roles should have been rejected at credential
		// verification; treat any that slip through as hostile.
		return deny("unknown caller role")
	}
}

func (e *Engine) recordDenial(ctx context.Context, caller Caller, op Operation, reason string) {
	if e.metrics != nil {
		e.metrics.IncrementDenied(string(op))
	}
	if e.logger != nil {
		e.logger.WarnContext(ctx, "authorization denied",
			"user_id", caller.UserID,
			"tenant_id", caller.TenantID,
			"role", caller.Role,
			"operation", op,
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if e.auditor != nil {
		_ = e.auditor.Emit(ctx, audit.Event{
			Category:  audit.CategoryOf(audit.EventAuthorizationDenied),
			Action:    string(audit.EventAuthorizationDenied),
			TenantID:  caller.TenantID,
			ActorID:   caller.UserID.String(),
			Reason:    reason,
			RequestID: requestcontext.RequestID(ctx),
		})
	}
}
