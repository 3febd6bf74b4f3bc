// Package httputil translates domain errors into the JSON error envelope all
// HTTP handlers share. Keeping the mapping in one place means a new domain
// error code gets consistent transport behavior everywhere at once.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "peopleflow/pkg/domain-errors"
)

// errorResponse is the wire shape of all error replies.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// statusFor maps domain error codes to HTTP status codes. Unknown codes map
// to 500 so unclassified failures never leak as client errors.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeTokenInvalid, dErrors.CodeTokenExpired:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyConsumed, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeTokenRevoked:
		return http.StatusGone
	case dErrors.CodeInsufficientCredit:
		// Precondition failure the caller can act on (buy credits), not a
		// fault. 402 matches the ledger semantics exactly.
		return http.StatusPaymentRequired
	case dErrors.CodeDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as the standard JSON error envelope. Internal errors
// omit the description so infrastructure details never reach clients; all
// other codes include the human-readable message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}

	WriteJSON(w, status, resp)
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields and
// returning a bad-request domain error on malformed input.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
