package domain

import (
	"github.com/google/uuid"

	dErrors "peopleflow/pkg/domain-errors"
)

// Typed identifiers prevent cross-entity assignment at compile time. A
// WorkflowID can never be passed where a TenantID is expected, which matters
// in a codebase where tenant isolation is a security invariant.
type (
	// TenantID identifies an isolated customer organization. Every row in
	// the system is partitioned by this value.
	TenantID uuid.UUID

	// UserID identifies an authenticated caller (operator or tenant user).
	UserID uuid.UUID

	// InvitationID identifies an invitation record.
	InvitationID uuid.UUID

	// WorkflowID identifies an onboarding/offboarding workflow instance.
	WorkflowID uuid.UUID

	// TransactionID identifies an entry in the credit ledger.
	TransactionID uuid.UUID

	// EmployeeID identifies the subject an onboarding/offboarding workflow
	// (and therefore a consumed credit) is about.
	EmployeeID uuid.UUID
)

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id InvitationID) String() string  { return uuid.UUID(id).String() }
func (id WorkflowID) String() string    { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id EmployeeID) String() string    { return uuid.UUID(id).String() }

// Text marshalers keep the canonical UUID string form on the wire. Defined
// types do not inherit uuid.UUID's marshalers, so without these every JSON
// payload would carry ids as raw byte arrays.
func (id TenantID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id InvitationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id WorkflowID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EmployeeID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *TenantID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *InvitationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *WorkflowID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransactionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EmployeeID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id InvitationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id WorkflowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EmployeeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewTenantID generates a fresh random tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewUserID generates a fresh random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewInvitationID generates a fresh random invitation identifier.
func NewInvitationID() InvitationID { return InvitationID(uuid.New()) }

// NewWorkflowID generates a fresh random workflow identifier.
func NewWorkflowID() WorkflowID { return WorkflowID(uuid.New()) }

// NewTransactionID generates a fresh random ledger transaction identifier.
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

// NewEmployeeID generates a fresh random employee identifier.
func NewEmployeeID() EmployeeID { return EmployeeID(uuid.New()) }

// parseUUID enforces the shared parsing invariant: IDs must be valid,
// non-empty, non-nil UUIDs. Called at trust boundaries only; internal code
// passes typed IDs around directly.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", what)
	}
	return u, nil
}

// ParseTenantID constructs a TenantID from external input.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseInvitationID constructs an InvitationID from external input.
func ParseInvitationID(s string) (InvitationID, error) {
	u, err := parseUUID(s, "invitation id")
	return InvitationID(u), err
}

// ParseWorkflowID constructs a WorkflowID from external input.
func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID(s, "workflow id")
	return WorkflowID(u), err
}

// ParseTransactionID constructs a TransactionID from external input.
func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseUUID(s, "transaction id")
	return TransactionID(u), err
}

// ParseEmployeeID constructs an EmployeeID from external input.
func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID(s, "employee id")
	return EmployeeID(u), err
}
