package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// BanOutcome is the result of evaluating a ban.
type BanOutcome string

const (
	BanNotFound        BanOutcome = "NOT_FOUND"
	BanAlreadyInactive BanOutcome = "ALREADY_INACTIVE"
	BanApply           BanOutcome = "BAN"
)

// BanMutation deactivates a key. The actor is recorded in the redemption
// columns only when no first-use metadata exists yet.
type BanMutation struct {
	Actor       string
	At          time.Time
	RecordActor bool
}

// BanDecision is the result of evaluating a ban request.
type BanDecision struct {
	Outcome  BanOutcome
	Mutation *BanMutation
}

// Ban evaluates an administrative ban. Banning an inactive key is a no-op.
func Ban(k *model.Key, actor string, now time.Time) BanDecision {
	switch {
	case k == nil:
		return BanDecision{Outcome: BanNotFound}
	case !k.IsActive:
		return BanDecision{Outcome: BanAlreadyInactive}
	}
	return BanDecision{
		Outcome: BanApply,
		Mutation: &BanMutation{
			Actor:       actor,
			At:          now,
			RecordActor: !k.Redeemed(),
		},
	}
}

// Duration is the validity period chosen at issuance.
type Duration string

const (
	DurationLifetime Duration = "lifetime"
	DurationDay      Duration = "day"
	DurationWeek     Duration = "week"
)

// Durations lists the accepted durations in display order.
var Durations = []Duration{DurationDay, DurationWeek, DurationLifetime}

// ParseDuration accepts day, week, lifetime, and none or empty as lifetime.
func ParseDuration(s string) (Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", string(DurationLifetime):
		return DurationLifetime, nil
	case string(DurationDay):
		return DurationDay, nil
	case string(DurationWeek):
		return DurationWeek, nil
	default:
		return "", fmt.Errorf("unknown duration %q (want day, week or lifetime)", s)
	}
}

// ExpiryFor computes the expiry deadline of a key issued at issuedAt.
// Lifetime keys have no deadline.
func ExpiryFor(d Duration, issuedAt time.Time) (*time.Time, error) {
	var ttl time.Duration
	switch d {
	case DurationLifetime:
		return nil, nil
	case DurationDay:
		ttl = 24 * time.Hour
	case DurationWeek:
		ttl = 7 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown duration %q", d)
	}
	t := issuedAt.Add(ttl)
	return &t, nil
}

// DisplayStatus is the human-facing status shown by info and list.
type DisplayStatus string

const (
	DisplayActive   DisplayStatus = "Active"
	DisplayInactive DisplayStatus = "Redeemed / Banned"
	DisplayExpired  DisplayStatus = "Expired"
)

// Display derives the display status with the same time rule as Redeem.
func Display(k *model.Key, now time.Time) DisplayStatus {
	switch StateOf(k, now) {
	case StateExpired:
		return DisplayExpired
	case StateBanned, StateNotFound:
		return DisplayInactive
	default:
		return DisplayActive
	}
}

// Label is the human-facing name of a duration.
func (d Duration) Label() string {
	switch d {
	case DurationDay:
		return "1 Day"
	case DurationWeek:
		return "7 Days"
	default:
		return "Lifetime"
	}
}
