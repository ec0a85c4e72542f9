package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the content address of a DER blob: the lowercase hex
// SHA-256 of the bytes. Every certificate and CRL is keyed by this value, in
// the store and in the LDAP leaf DN.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// HexEqual compares two hex strings case-insensitively.
// Serial numbers and data-group hashes arrive in mixed case from different
// producers; raw string equality is never correct for them.
func HexEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// HexEqualConstantTime compares two hex strings case-insensitively in
// constant time. Used for data-group hash comparison, where the expected
// value comes from the signed security object.
func HexEqualConstantTime(a, b string) bool {
	ab, err := hex.DecodeString(strings.ToLower(a))
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(strings.ToLower(b))
	if err != nil {
		return false
	}
	if len(ab) != len(bb) {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
