package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests input to lowercase hex. Rate-limit buckets and
// idempotency replay guards key Redis entries through it, so raw user IDs,
// client IPs and caller-chosen idempotency tokens never appear verbatim in
// key names.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return string(out)
}
