package gateway

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/denisbrodbeck/machineid"
)

// MachineID returns a stable gateway identifier derived from the host
// machine ID: the first 16 hex digits of its SHA-256, EUI-64 sized.
// Returns "" if the machine ID is unavailable.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256([]byte("lora-gw:" + id))
	return hex.EncodeToString(sum[:8])
}
