package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultNukeWindow is how long a nuke request waits for confirmation.
const DefaultNukeWindow = 30 * time.Second

// NukeState is the state of a nuke confirmation ticket.
type NukeState string

const (
	NukePending   NukeState = "pending"
	NukeDeleting  NukeState = "deleting"
	NukeConfirmed NukeState = "confirmed"
	NukeCancelled NukeState = "cancelled"
	NukeExpired   NukeState = "expired"
	NukeFailed    NukeState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s NukeState) Terminal() bool {
	switch s {
	case NukeConfirmed, NukeCancelled, NukeExpired, NukeFailed:
		return true
	}
	return false
}

// NukeTicket is a snapshot of one confirmation handshake.
type NukeTicket struct {
	ID        string    `json:"ticket"`
	Actor     string    `json:"actor"`
	State     NukeState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
	Deleted   int64     `json:"deleted"`
	Error     string    `json:"error,omitempty"`
}

type ticket struct {
	NukeTicket
	done  chan struct{}
	timer *time.Timer
}

// Confirmations tracks pending nuke handshakes. Each ticket moves from
// pending to exactly one terminal state; a pending ticket that is not
// confirmed before its deadline expires on its own.
type Confirmations struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	tickets map[string]*ticket
}

// NewConfirmations creates a tracker whose tickets expire after window.
func NewConfirmations(window time.Duration, now func() time.Time) *Confirmations {
	if window <= 0 {
		window = DefaultNukeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Confirmations{window: window, now: now, tickets: make(map[string]*ticket)}
}

// Window returns the confirmation window.
func (c *Confirmations) Window() time.Duration {
	return c.window
}

// Open starts a new pending ticket for actor.
func (c *Confirmations) Open(actor string) NukeTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()

	now := c.now()
	t := &ticket{
		NukeTicket: NukeTicket{
			ID:        uuid.NewString(),
			Actor:     actor,
			State:     NukePending,
			CreatedAt: now,
			Deadline:  now.Add(c.window),
		},
		done: make(chan struct{}),
	}
	id := t.ID
	t.timer = time.AfterFunc(c.window, func() { c.expire(id) })
	c.tickets[id] = t
	return t.NukeTicket
}

// Get returns a snapshot of the ticket.
func (c *Confirmations) Get(id string) (NukeTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[id]
	if !ok {
		return NukeTicket{}, false
	}
	c.checkDeadline(t)
	return t.NukeTicket, true
}

// claim moves a pending ticket owned by actor into the deleting state.
func (c *Confirmations) claim(id, actor string) (NukeTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.pending(id, actor)
	if err != nil {
		return NukeTicket{}, err
	}
	t.timer.Stop()
	t.State = NukeDeleting
	return t.NukeTicket, nil
}

// finish resolves a deleting ticket as confirmed or failed.
func (c *Confirmations) finish(id string, deleted int64, err error) NukeTicket {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.tickets[id]
	if t == nil || t.State != NukeDeleting {
		return NukeTicket{}
	}
	if err != nil {
		t.Error = err.Error()
		c.resolve(t, NukeFailed)
	} else {
		t.Deleted = deleted
		c.resolve(t, NukeConfirmed)
	}
	return t.NukeTicket
}

// Cancel resolves a pending ticket as cancelled.
func (c *Confirmations) Cancel(id, actor string) (NukeTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.pending(id, actor)
	if err != nil {
		return NukeTicket{}, err
	}
	t.timer.Stop()
	c.resolve(t, NukeCancelled)
	return t.NukeTicket, nil
}

// Await blocks until the ticket reaches a terminal state or ctx is done.
func (c *Confirmations) Await(ctx context.Context, id string) (NukeTicket, error) {
	c.mu.Lock()
	t, ok := c.tickets[id]
	c.mu.Unlock()
	if !ok {
		return NukeTicket{}, &NotFoundError{Kind: "nuke ticket", ID: id}
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return NukeTicket{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return t.NukeTicket, nil
}

// pending returns the ticket if it is still pending and owned by actor.
// Caller holds c.mu.
func (c *Confirmations) pending(id, actor string) (*ticket, error) {
	t, ok := c.tickets[id]
	if !ok {
		return nil, &NotFoundError{Kind: "nuke ticket", ID: id}
	}
	if t.Actor != actor {
		return nil, ErrNotTicketOwner
	}
	c.checkDeadline(t)
	if t.State != NukePending {
		return nil, &TicketStateError{ID: id, State: t.State}
	}
	return t, nil
}

// checkDeadline expires a pending ticket whose deadline has passed by the
// injected clock, even if the timer has not fired yet. Caller holds c.mu.
func (c *Confirmations) checkDeadline(t *ticket) {
	if t.State == NukePending && c.now().After(t.Deadline) {
		t.timer.Stop()
		c.resolve(t, NukeExpired)
	}
}

func (c *Confirmations) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tickets[id]; ok && t.State == NukePending {
		c.resolve(t, NukeExpired)
	}
}

// resolve moves t into a terminal state. Caller holds c.mu.
func (c *Confirmations) resolve(t *ticket, state NukeState) {
	t.State = state
	close(t.done)
}

// prune drops terminal tickets well past their deadline. Caller holds c.mu.
func (c *Confirmations) prune() {
	cutoff := c.now().Add(-10 * c.window)
	for id, t := range c.tickets {
		if t.State.Terminal() && t.Deadline.Before(cutoff) {
			delete(c.tickets, id)
		}
	}
}
