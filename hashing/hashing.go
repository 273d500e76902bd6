package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON encodes data with lexicographically sorted object keys and
// minimal separators. Callers pass map/slice values rather than structs so
// that key ordering is always under the encoder's control.
func CanonicalJSON(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

// HashData returns the hex SHA-256 digest of the canonical encoding of data.
func HashData(data interface{}) (string, error) {
	encoded, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}
	return HashBytes(encoded), nil
}

// HashBytes returns the hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
