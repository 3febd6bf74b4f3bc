package domain

import dErrors "peopleflow/pkg/domain-errors"

// RetentionPurpose is the documented legal basis for holding a record that
// carries personal data. It determines how long the record may be kept
// before the retention sweeper must purge it.
//
// Usage: construct via ParseRetentionPurpose at trust boundaries to enforce
// the allowlist; direct casting bypasses validation.
type RetentionPurpose string

// Supported retention purposes.
const (
	RetentionPurposeContract           RetentionPurpose = "contract_fulfillment"
	RetentionPurposeLegalObligation    RetentionPurpose = "legal_obligation"
	RetentionPurposeConsent            RetentionPurpose = "consent"
	RetentionPurposeLegitimateInterest RetentionPurpose = "legitimate_interest"
)

// validRetentionPurposes is the single source of truth for valid purposes.
var validRetentionPurposes = map[RetentionPurpose]bool{
	RetentionPurposeContract:           true,
	RetentionPurposeLegalObligation:    true,
	RetentionPurposeConsent:            true,
	RetentionPurposeLegitimateInterest: true,
}

// ParseRetentionPurpose constructs a RetentionPurpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRetentionPurpose(s string) (RetentionPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "retention purpose cannot be empty")
	}
	p := RetentionPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid retention purpose")
	}
	return p, nil
}

// IsValid checks if the purpose is one of the supported enum values.
func (p RetentionPurpose) IsValid() bool {
	return validRetentionPurposes[p]
}

func (p RetentionPurpose) String() string {
	return string(p)
}
