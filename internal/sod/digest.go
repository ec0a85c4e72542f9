package sod

import (
	"crypto"
	_ "crypto/sha1" // registers SHA-1 for legacy SODs
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
)

// hashByName maps the ICAO-facing algorithm names to crypto hashes.
var hashByName = map[string]crypto.Hash{
	"SHA-1":   crypto.SHA1,
	"SHA-256": crypto.SHA256,
	"SHA-384": crypto.SHA384,
	"SHA-512": crypto.SHA512,
}

// HashFor resolves an algorithm name to a crypto.Hash.
func HashFor(algorithm string) (crypto.Hash, error) {
	h, ok := hashByName[algorithm]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported hash algorithm %q", ErrParse, algorithm)
	}
	return h, nil
}

// Digest hashes a raw data-group blob with the named algorithm and returns
// the lowercase hex digest, for comparison against the LDSSecurityObject.
func Digest(algorithm string, data []byte) (string, error) {
	h, err := HashFor(algorithm)
	if err != nil {
		return "", err
	}
	hasher := h.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
