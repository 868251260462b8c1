// Package lifecycle holds the decision logic for license keys. Every function
// here is pure: it takes a stored key snapshot, the current time and the
// caller's request, and returns a verdict plus the mutation (if any) the
// store must apply. Nothing in this package performs I/O.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// Verdict is the outcome of a redemption attempt.
type Verdict string

const (
	VerdictGranted          Verdict = "GRANTED"
	VerdictInvalid          Verdict = "INVALID"
	VerdictBannedOrRedeemed Verdict = "BANNED_OR_REDEEMED"
	VerdictExpired          Verdict = "EXPIRED"
	VerdictHardwareMismatch Verdict = "HARDWARE_MISMATCH"
)

// State is the logical state of a key, derived from its stored columns.
type State string

const (
	StateNotFound     State = "NOT_FOUND"
	StateActiveUnused State = "ACTIVE_UNUSED"
	StateActiveBound  State = "ACTIVE_BOUND"
	StateExpired      State = "EXPIRED"
	StateBanned       State = "BANNED"
)

// HardwarePolicy decides what happens when a key bound to one hardware id
// is presented with a different one.
type HardwarePolicy string

const (
	// HardwarePermissive grants the redemption and flags the mismatch.
	HardwarePermissive HardwarePolicy = "permissive"
	// HardwareStrict rejects the redemption with VerdictHardwareMismatch.
	HardwareStrict HardwarePolicy = "strict"
)

// ParseHardwarePolicy parses a configured policy name. Empty means permissive.
func ParseHardwarePolicy(s string) (HardwarePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(HardwarePermissive):
		return HardwarePermissive, nil
	case string(HardwareStrict):
		return HardwareStrict, nil
	default:
		return "", fmt.Errorf("unknown hardware policy %q (want permissive or strict)", s)
	}
}

// originTag prefixes every redemption actor descriptor. Administrative
// deactivations record a bare actor name and never carry it.
const originTag = "IP:"

// RedemptionActor formats the descriptor recorded on first use.
func RedemptionActor(origin, client string) string {
	if client == "" {
		client = "unknown"
	}
	return fmt.Sprintf("%s %s | Client: %s", originTag, origin, client)
}

// IsRedemptionActor reports whether a recorded actor came from a client
// redemption rather than an administrative ban.
func IsRedemptionActor(redeemedBy string) bool {
	return strings.HasPrefix(redeemedBy, originTag)
}

// Expired applies the single time comparison used everywhere: a key is
// expired once the current time is strictly after its deadline.
func Expired(k *model.Key, now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// StateOf derives the logical state of a key snapshot.
func StateOf(k *model.Key, now time.Time) State {
	switch {
	case k == nil:
		return StateNotFound
	case Expired(k, now):
		return StateExpired
	case !k.IsActive:
		return StateBanned
	case k.Redeemed():
		return StateActiveBound
	default:
		return StateActiveUnused
	}
}
