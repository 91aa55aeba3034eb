package costore

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"regexp"
)

// IDPrefix is the fixed prefix carried by every content-addressed id.
const IDPrefix = "co_z"

// IDBodyLength is the number of base62 characters following the prefix.
const IDBodyLength = 24

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// idPattern matches a resolved content-addressed id.
var idPattern = regexp.MustCompile(`^co_z[0-9A-Za-z]{24}$`)

// IDPatternString returns the regular expression source for the content-id
// pattern. The schema engine embeds it when a cross-reference keyword is
// macro-expanded into a string constraint.
func IDPatternString() string {
	return idPattern.String()
}

// IsID reports whether s is a resolved content-addressed id. Every component
// assumes a string matching this pattern is a durable reference, never a
// human-readable placeholder.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// DeriveID computes the content-addressed id for a CoValue header. The hash
// covers the container kind, the schema reference and a creation nonce, so
// two values created with the same nonce derive the same id - the property
// the store relies on for deduplicating idempotent seeds.
func DeriveID(kind Kind, schemaID string, nonce string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", kind, schemaID, nonce)))
	return IDPrefix + encodeBase62(sum[:], IDBodyLength)
}

// encodeBase62 encodes the leading portion of digest as a fixed-length
// base62 string, left-padded with the zero digit.
func encodeBase62(digest []byte, length int) string {
	n := new(big.Int).SetBytes(digest)
	base := big.NewInt(int64(len(base62Alphabet)))
	mod := new(big.Int)

	out := make([]byte, 0, length)
	for n.Sign() > 0 && len(out) < length {
		n.DivMod(n, base, mod)
		out = append(out, base62Alphabet[mod.Int64()])
	}
	for len(out) < length {
		out = append(out, base62Alphabet[0])
	}

	// Reverse into most-significant-first order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
