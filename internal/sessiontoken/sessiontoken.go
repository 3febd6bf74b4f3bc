// Package sessiontoken issues and validates the access tokens that
// authenticate API callers. These are short-lived session credentials,
// unrelated to invitation tokens, and signed with their own key.
package sessiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/requestcontext"
)

const issuer = "peopleflow"

// Claims carries the caller identity embedded in a session token.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role"`
	Elevated bool   `json:"elevated,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens.
type Manager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	return &Manager{signingKey: []byte(signingKey), ttl: ttl}
}

// Issue signs a session token for the given caller.
func (m *Manager) Issue(userID id.UserID, tenantID id.TenantID, role string, elevated bool) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID.String(),
		Role:     role,
		Elevated: elevated,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
	}
	if !tenantID.IsNil() {
		claims.TenantID = tenantID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// Validate parses a session token and returns the caller it authenticates.
// Role semantics are enforced downstream; this layer only vouches for the
// signature and lifetime.
func (m *Manager) Validate(tokenString string) (requestcontext.CallerInfo, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.CallerInfo{}, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return requestcontext.CallerInfo{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return requestcontext.CallerInfo{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	return requestcontext.CallerInfo{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
		Elevated: claims.Elevated,
	}, nil
}
