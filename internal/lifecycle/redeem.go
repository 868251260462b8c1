package lifecycle

import (
	"time"

	"github.com/keygate/keygate/internal/model"
)

// Request carries what a client supplied with a redemption attempt.
type Request struct {
	OriginAddress    string
	ClientDescriptor string
	HardwareID       string
}

// Mutation is the write a granted redemption requires. The store applies it
// conditionally: first-use columns only while unset, the hardware id only
// while unbound.
type Mutation struct {
	RecordFirstUse bool
	RedeemedAt     time.Time
	RedeemedBy     string
	RedeemedIP     string

	BindHardware bool
	HardwareID   string
}

// Decision is the result of evaluating a redemption request.
type Decision struct {
	Verdict  Verdict
	State    State
	Mutation *Mutation

	// HardwareMismatch is set when the supplied hardware id differs from the
	// bound one, whatever the policy decided.
	HardwareMismatch bool
}

// Granted reports whether the redemption succeeded.
func (d Decision) Granted() bool {
	return d.Verdict == VerdictGranted
}

// Redeem evaluates a redemption attempt against a key snapshot. A nil
// snapshot means no key matched.
//
// Expiry is evaluated before the active flag so an expired key always reports
// EXPIRED, banned or not. Keys remain reusable until they expire or are
// banned; only the first successful redemption records metadata.
func Redeem(k *model.Key, req Request, now time.Time, policy HardwarePolicy) Decision {
	state := StateOf(k, now)
	switch state {
	case StateNotFound:
		return Decision{Verdict: VerdictInvalid, State: state}
	case StateExpired:
		return Decision{Verdict: VerdictExpired, State: state}
	case StateBanned:
		return Decision{Verdict: VerdictBannedOrRedeemed, State: state}
	}

	d := Decision{Verdict: VerdictGranted, State: state}

	if req.HardwareID != "" && k.Bound() && *k.HardwareID != req.HardwareID {
		d.HardwareMismatch = true
		if policy == HardwareStrict {
			d.Verdict = VerdictHardwareMismatch
			return d
		}
	}

	var m Mutation
	if !k.Redeemed() {
		m.RecordFirstUse = true
		m.RedeemedAt = now
		m.RedeemedBy = RedemptionActor(req.OriginAddress, req.ClientDescriptor)
		m.RedeemedIP = req.OriginAddress
	}
	if req.HardwareID != "" && !k.Bound() {
		m.BindHardware = true
		m.HardwareID = req.HardwareID
	}
	if m.RecordFirstUse || m.BindHardware {
		d.Mutation = &m
	}
	return d
}

// Status applies the same checks as Redeem without producing a mutation.
func Status(k *model.Key, hardwareID string, now time.Time, policy HardwarePolicy) bool {
	d := Redeem(k, Request{HardwareID: hardwareID}, now, policy)
	return d.Granted()
}
