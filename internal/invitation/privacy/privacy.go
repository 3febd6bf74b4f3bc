// Package privacy derives the lookup hash and domain tag that let the
// platform answer "has this identity already been invited?" without ever
// storing or comparing the identity in plaintext.
//
// # Accepted risk: the lookup hash is unsalted
//
// Hash applies SHA-256 to the normalized identity with no salt and no
// tenant-specific key material. This is a deliberate product trade-off, not
// an oversight: a salt (or per-tenant pepper) would break deduplication,
// which requires that the same identity always hashes to the same value
// across requests and across time. The cost is reduced resistance to
// precomputed dictionary attacks — an attacker holding the hash column and a
// candidate list of addresses can confirm membership offline. That exposure
// is accepted and documented here; do not "fix" it by adding a salt without
// revisiting the deduplication requirement with the product owner.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"

	"peopleflow/pkg/email"
)

// Hash returns the deterministic one-way digest of an identity, after
// normalization (trim, case-fold). Case and whitespace variants of the same
// identity produce the same hash.
func Hash(identity string) string {
	sum := sha256.Sum256([]byte(email.Normalize(identity)))
	return hex.EncodeToString(sum[:])
}

// DeriveDomainTag extracts the coarse, non-identifying suffix of the
// identity (the organization domain) for aggregate analytics. The tag alone
// is lower sensitivity than the full identity but is still personal data and
// follows the same retention rules as the record carrying it.
func DeriveDomainTag(identity string) string {
	return email.Domain(identity)
}
