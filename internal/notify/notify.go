// Package notify delivers best-effort notifications about key lifecycle
// events to operators. Delivery failures are logged and never propagate to
// the operation that produced the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KeyActivated Kind = "key.activated"
	KeyBanned    Kind = "key.banned"
	KeysNuked    Kind = "keys.nuked"
)

// Event describes something operators may want to hear about.
type Event struct {
	Kind  Kind      `json:"event"`
	Key   string    `json:"key,omitempty"`
	Actor string    `json:"actor,omitempty"`
	Count int64     `json:"count,omitempty"`
	At    time.Time `json:"at"`
}

// Summary renders the event as a one-line chat message.
func (e Event) Summary() string {
	switch e.Kind {
	case KeyActivated:
		return fmt.Sprintf("Key `%s` activated (%s)", e.Key, e.Actor)
	case KeyBanned:
		return fmt.Sprintf("Key `%s` banned by %s", e.Key, e.Actor)
	case KeysNuked:
		return fmt.Sprintf("All keys deleted by %s (%d removed)", e.Actor, e.Count)
	default:
		return string(e.Kind)
	}
}

// Notifier delivers an event to one sink.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
