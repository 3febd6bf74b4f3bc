// Package token encodes and decodes invitation credentials.
//
// A token is a signed JWS envelope. The header carries the algorithm and key
// id; the claims section is cleartext scope material (tenant, permitted
// operations, expiry, lookup hash); the identity fields travel in a single
// encrypted sub-claim sealed with ChaCha20-Poly1305. The credential is
// self-contained: no server-side session exists before redemption.
//
// Verification order is fixed: signature → expiry → revocation-by-hash →
// decrypt. The identity sub-object is opened last, and never on a failed
// path, so a tampered or revoked token cannot leak partial plaintext.
package token

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/chacha20poly1305"

	"peopleflow/internal/invitation/models"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/sentinel"
	"peopleflow/pkg/requestcontext"
)

const issuer = "peopleflow"

// Identity is the encrypted sub-object. These fields exist nowhere in
// storage except inside the sealed claim.
type Identity struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

// Restrictions are optional cleartext constraints on token use.
type Restrictions struct {
	// NotBefore delays validity, e.g. invitations issued ahead of a start
	// date. Zero means valid immediately.
	NotBefore time.Time `json:"not_before,omitempty"`
	// Origins limits which web origins may redeem the token. Empty means
	// unrestricted.
	Origins []string `json:"origins,omitempty"`
}

// Claims is the decoded view of a token.
type Claims struct {
	InvitationID id.InvitationID
	TenantID     id.TenantID
	Scope        []string
	LookupHash   string
	Restrictions Restrictions
	Identity     Identity
	ExpiresAt    time.Time
}

// envelope is the wire shape of the cleartext claims section.
type envelope struct {
	TenantID          string   `json:"tid"`
	Scope             []string `json:"scope"`
	LookupHash        string   `json:"lkh"`
	Origins           []string `json:"origins,omitempty"`
	EncryptedIdentity string   `json:"enc"`
	jwt.RegisteredClaims
}

// StatusSource resolves the backing record's status by lookup hash. The
// codec never decrypts to find the record; the cleartext hash is the key.
type StatusSource interface {
	Status(ctx context.Context, tenantID id.TenantID, lookupHash string) (models.InvitationStatus, error)
}

// RevocationList is the fast-path revocation check keyed by token id.
// Optional; the status source remains authoritative.
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Codec signs, encrypts, verifies, and decrypts invitation tokens.
type Codec struct {
	signingKey  []byte
	keyID       string
	aead        cipher.AEAD
	statuses    StatusSource
	revocations RevocationList
	tracer      trace.Tracer
}

// Option configures a Codec.
type Option func(*Codec)

// WithRevocationList attaches the fast-path revocation check.
func WithRevocationList(list RevocationList) Option {
	return func(c *Codec) { c.revocations = list }
}

// NewCodec constructs a codec. identityKey must be exactly 32 bytes
// (chacha20poly1305 key size); signingKey signs the outer envelope.
func NewCodec(signingKey []byte, keyID string, identityKey []byte, statuses StatusSource, opts ...Option) (*Codec, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("token codec: signing key is required")
	}
	aead, err := chacha20poly1305.New(identityKey)
	if err != nil {
		return nil, errors.New("token codec: identity key must be 32 bytes")
	}
	c := &Codec{
		signingKey: signingKey,
		keyID:      keyID,
		aead:       aead,
		statuses:   statuses,
		tracer:     otel.Tracer("peopleflow/invitation/token"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode produces a signed, partially encrypted, stateless credential. The
// token id (jti) is the invitation id, which is also the revocation-list key.
func (c *Codec) Encode(ctx context.Context, claims Claims, ttl time.Duration) (string, error) {
	if claims.InvitationID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token requires an invitation id")
	}
	if claims.TenantID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token requires a tenant")
	}
	if ttl <= 0 {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token ttl must be positive")
	}

	sealed, err := c.sealIdentity(claims.InvitationID, claims.Identity)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal identity")
	}

	now := requestcontext.Now(ctx)
	registered := jwt.RegisteredClaims{
		ID:        claims.InvitationID.String(),
		Issuer:    issuer,
		Subject:   claims.TenantID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if !claims.Restrictions.NotBefore.IsZero() {
		registered.NotBefore = jwt.NewNumericDate(claims.Restrictions.NotBefore)
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, envelope{
		TenantID:          claims.TenantID.String(),
		Scope:             claims.Scope,
		LookupHash:        claims.LookupHash,
		Origins:           claims.Restrictions.Origins,
		EncryptedIdentity: sealed,
		RegisteredClaims:  registered,
	})
	t.Header["kid"] = c.keyID

	signed, err := t.SignedString(c.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Decode verifies and decrypts a token. It is a pure function over the token
// and the revocation state; all mutation happens in the invitation service.
//
// Errors: CodeTokenInvalid (bad signature or malformed), CodeTokenExpired,
// CodeTokenRevoked (revoked, or record gone: a deleted record reads as
// revoked so retention races fail cleanly). A redeemed record still decodes;
// rejecting reuse is the invitation service's call, made under the store's
// redemption transition.
func (c *Codec) Decode(ctx context.Context, tokenString string) (*Claims, error) {
	ctx, span := c.tracer.Start(ctx, "token.Decode")
	defer span.End()

	// Signature and expiry. The JWT library verifies the signature before
	// validating registered claims, preserving the required order.
	var env envelope
	parsed, err := jwt.ParseWithClaims(tokenString, &env, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token has expired")
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "token is not valid yet")
		}
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token signature verification failed")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token is not valid")
	}

	invitationID, err := id.ParseInvitationID(env.RegisteredClaims.ID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token carries no invitation id")
	}
	tenantID, err := id.ParseTenantID(env.TenantID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token carries no tenant id")
	}
	span.SetAttributes(attribute.String("tenant_id", tenantID.String()))

	// Revocation, by hash and token id — never by decrypting first.
	if err := c.checkRevocation(ctx, tenantID, env.LookupHash, env.RegisteredClaims.ID); err != nil {
		return nil, err
	}

	// Only now is the identity sub-object opened.
	identity, err := c.openIdentity(invitationID, env.EncryptedIdentity)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "identity payload cannot be decrypted")
	}

	claims := &Claims{
		InvitationID: invitationID,
		TenantID:     tenantID,
		Scope:        env.Scope,
		LookupHash:   env.LookupHash,
		Identity:     identity,
		ExpiresAt:    env.RegisteredClaims.ExpiresAt.Time,
	}
	if env.RegisteredClaims.NotBefore != nil {
		claims.Restrictions.NotBefore = env.RegisteredClaims.NotBefore.Time
	}
	claims.Restrictions.Origins = env.Origins
	return claims, nil
}

func (c *Codec) checkRevocation(ctx context.Context, tenantID id.TenantID, lookupHash, jti string) error {
	if c.revocations != nil {
		revoked, err := c.revocations.IsRevoked(ctx, jti)
		if err == nil && revoked {
			return dErrors.New(dErrors.CodeTokenRevoked, "invitation was revoked")
		}
		// Fast-path errors fall through to the authoritative source.
	}

	if c.statuses == nil {
		return dErrors.New(dErrors.CodeTokenRevoked, "revocation state unavailable")
	}
	status, err := c.statuses.Status(ctx, tenantID, lookupHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Deleted mid-use by the retention sweeper, or never existed.
			// Either way the caller sees a clean revocation.
			return dErrors.New(dErrors.CodeTokenRevoked, "invitation no longer exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check revocation state")
	}

	switch status {
	case models.StatusRevoked:
		return dErrors.New(dErrors.CodeTokenRevoked, "invitation was revoked")
	case models.StatusExpired:
		return dErrors.New(dErrors.CodeTokenExpired, "invitation has expired")
	default:
		return nil
	}
}

// sealIdentity encrypts the identity sub-object, binding the ciphertext to
// the invitation id so a sealed identity cannot be transplanted between
// tokens.
func (c *Codec) sealIdentity(invitationID id.InvitationID, identity Identity) (string, error) {
	plaintext, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	aad := uuid.UUID(invitationID)
	sealed := c.aead.Seal(nonce, nonce, plaintext, aad[:])
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) openIdentity(invitationID id.InvitationID, sealed string) (Identity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return Identity{}, err
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return Identity{}, errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	aad := uuid.UUID(invitationID)
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad[:])
	if err != nil {
		return Identity{}, err
	}
	var identity Identity
	if err := json.Unmarshal(plaintext, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}
