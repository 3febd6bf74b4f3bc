package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHash_Deterministic pins the deduplication invariant: case and
// whitespace variants of the same identity always produce the same hash.
func TestHash_Deterministic(t *testing.T) {
	variants := []string{
		"ana.lopez@example.com",
		"Ana.Lopez@example.com",
		"ANA.LOPEZ@EXAMPLE.COM",
		"  ana.lopez@example.com  ",
		"\tAna.Lopez@Example.Com\n",
	}

	want := Hash(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, Hash(v), "variant %q must hash identically", v)
	}
}

func TestHash_DistinctIdentities(t *testing.T) {
	assert.NotEqual(t, Hash("ana@example.com"), Hash("bea@example.com"))
	// Hex-encoded SHA-256 output is fixed width regardless of input length.
	assert.Len(t, Hash("a@b.co"), 64)
	assert.Len(t, Hash("a-very-long-address-for-someone@subdomain.example.org"), 64)
}

func TestDeriveDomainTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ana.Lopez@Example.COM", "example.com"},
		{"  dev@sub.example.org ", "sub.example.org"},
		{"no-at-sign", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveDomainTag(tt.in))
	}
}
