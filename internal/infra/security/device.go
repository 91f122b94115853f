package security

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

// DeviceHasher fingerprints capture devices from their reported attributes.
type DeviceHasher struct{}

// HashDevice returns a stable digest of info independent of key order.
// Empty input yields an empty fingerprint.
func (DeviceHasher) HashDevice(info domain.DeviceInfo) string {
	if len(info) == 0 {
		return ""
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToLower(strings.TrimSpace(k)))
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(info[k]))
		b.WriteByte('\n')
	}
	return HashToken(b.String())[:32]
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
