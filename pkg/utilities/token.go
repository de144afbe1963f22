package utilities

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SHA256Hex returns the hex sha256 digest of s, used to store tokens at rest.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
