// Package email holds address helpers shared by the privacy index and the
// invitation service. Normalization here is the single definition the lookup
// hash depends on; changing it invalidates every stored hash.
package email

import (
	"strings"
	"unicode"
)

// Normalize returns the canonical form of an address used for hashing and
// deduplication: trimmed of surrounding whitespace and lowercased. Two
// invitations for case/whitespace variants of the same address must collapse
// to the same normalized value.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsPlausible reports whether the address has the minimal shape worth
// accepting at a trust boundary: non-empty local part, a single '@', and a
// domain containing a dot. Full RFC validation is deliberately out of scope;
// the delivery collaborator is the real arbiter.
func IsPlausible(address string) bool {
	address = Normalize(address)
	at := strings.LastIndexByte(address, '@')
	if at <= 0 || at == len(address)-1 {
		return false
	}
	domain := address[at+1:]
	if strings.ContainsAny(address[:at], " \t") {
		return false
	}
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// Domain returns the lowercased domain component of the address, or the
// empty string when the address has none. The domain alone is treated as
// lower-sensitivity than the full address but is still personal data.
func Domain(address string) string {
	address = Normalize(address)
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}

// DeriveNameFromAddress guesses a display name from the local part of an
// address, for rendering invitation emails when no name was supplied.
func DeriveNameFromAddress(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
