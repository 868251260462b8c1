package service

import (
	"errors"
	"fmt"

	"github.com/keygate/keygate/internal/lifecycle"
)

// Stable client-facing messages.
const (
	MsgMissingKey       = "No key provided."
	MsgInvalid          = "This key is invalid."
	MsgBannedOrRedeemed = "This key has already been redeemed or banned."
	MsgExpired          = "This key has expired."
	MsgHardwareMismatch = "This key is bound to a different device."
	MsgGranted          = "Key successfully redeemed."
	MsgFault            = "A server error occurred."
)

// Message returns the stable message for a redemption verdict.
func Message(v lifecycle.Verdict) string {
	switch v {
	case lifecycle.VerdictGranted:
		return MsgGranted
	case lifecycle.VerdictInvalid:
		return MsgInvalid
	case lifecycle.VerdictBannedOrRedeemed:
		return MsgBannedOrRedeemed
	case lifecycle.VerdictExpired:
		return MsgExpired
	case lifecycle.VerdictHardwareMismatch:
		return MsgHardwareMismatch
	default:
		return MsgFault
	}
}

// ValidationError reports missing or malformed input from the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthorizationError is the expected business outcome of presenting an
// invalid, banned, expired or mismatched key. It is not a fault.
type AuthorizationError struct {
	Verdict lifecycle.Verdict
}

func (e *AuthorizationError) Error() string { return Message(e.Verdict) }

// NotFoundError is an administrative lookup miss.
type NotFoundError struct {
	Kind string // "key" or "nuke ticket"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

// StorageFault wraps an unexpected store failure. Its message is for logs;
// callers show MsgFault instead.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string { return fmt.Sprintf("storage fault: %s: %v", e.Op, e.Err) }

func (e *StorageFault) Unwrap() error { return e.Err }

// ErrNotTicketOwner is returned when someone other than the requester tries
// to confirm or cancel a nuke ticket.
var ErrNotTicketOwner = errors.New("only the operator who requested the nuke can confirm or cancel it")

// TicketStateError is returned when a nuke ticket is no longer pending.
type TicketStateError struct {
	ID    string
	State NukeState
}

func (e *TicketStateError) Error() string {
	switch e.State {
	case NukeExpired:
		return fmt.Sprintf("nuke ticket %s timed out; no keys were deleted", e.ID)
	case NukeCancelled:
		return fmt.Sprintf("nuke ticket %s was cancelled; no keys were deleted", e.ID)
	default:
		return fmt.Sprintf("nuke ticket %s is %s", e.ID, e.State)
	}
}
