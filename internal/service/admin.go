package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/notify"
)

// AdminStore is what administrative operations need from the key store.
type AdminStore interface {
	CreateKey(ctx context.Context, k *model.Key) error
	GetKey(ctx context.Context, keyString string) (*model.Key, error)
	ListKeys(ctx context.Context, limit, offset int) ([]model.Key, error)
	CountKeys(ctx context.Context) (int64, error)
	Ban(ctx context.Context, keyString string, m lifecycle.BanMutation) error
	DeleteAll(ctx context.Context) (int64, error)
}

// KeyInfo is a key plus the fields derived for display.
type KeyInfo struct {
	model.Key
	Status lifecycle.DisplayStatus `json:"status"`
	// DeactivatedByAdmin is set when the recorded actor is an operator ban
	// rather than a client redemption.
	DeactivatedByAdmin bool `json:"deactivated_by_admin"`
}

// ListOptions paginates List.
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 25
	MaxListLimit     = 1000
)

// BanResult is the outcome of a ban.
type BanResult string

const (
	BanBanned          BanResult = "BANNED"
	BanAlreadyInactive BanResult = "ALREADY_INACTIVE"
)

// NewKeyString returns a fresh credential: KEY- followed by an upper-case
// random UUID.
func NewKeyString() string {
	return "KEY-" + strings.ToUpper(uuid.NewString())
}

// AdminService implements issuance, inspection, ban and nuke.
type AdminService struct {
	store         AdminStore
	opts          Options
	confirmations *Confirmations
	newKeyString  func() string
}

func NewAdminService(store AdminStore, opts Options) *AdminService {
	opts = opts.withDefaults()
	return &AdminService{
		store:         store,
		opts:          opts,
		confirmations: NewConfirmations(opts.NukeWindow, opts.Now),
		newKeyString:  NewKeyString,
	}
}

// NukeWindow returns how long a nuke waits for confirmation.
func (s *AdminService) NukeWindow() time.Duration {
	return s.confirmations.Window()
}

// Generate issues a new active key valid for the given duration.
func (s *AdminService) Generate(ctx context.Context, duration, actor string) (*model.Key, error) {
	d, err := lifecycle.ParseDuration(duration)
	if err != nil {
		s.opts.Metrics.AdminAction("generate", "invalid")
		return nil, &ValidationError{Field: "duration", Message: err.Error()}
	}

	now := s.opts.Now().UTC()
	expires, err := lifecycle.ExpiryFor(d, now)
	if err != nil {
		return nil, &ValidationError{Field: "duration", Message: err.Error()}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, s.fault("generate", err)
	}
	k := &model.Key{
		ID:        id.String(),
		KeyString: s.newKeyString(),
		CreatedAt: now,
		ExpiresAt: expires,
	}
	if err := s.store.CreateKey(ctx, k); err != nil {
		s.opts.Metrics.AdminAction("generate", "failed")
		return nil, s.fault("generate", err)
	}

	s.opts.Metrics.AdminAction("generate", "created")
	s.opts.Logger.Info("key generated", "key", k.KeyString, "duration", d, "actor", actor)
	return k, nil
}

// Info returns every stored field of a key plus its display status.
func (s *AdminService) Info(ctx context.Context, key string) (*KeyInfo, error) {
	keyString := strings.TrimSpace(key)
	if keyString == "" {
		return nil, &ValidationError{Field: "key", Message: MsgMissingKey}
	}
	k, err := s.store.GetKey(ctx, keyString)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, &NotFoundError{Kind: "key", ID: keyString}
	}
	if err != nil {
		return nil, s.fault("info", err)
	}
	info := s.describe(*k)
	return &info, nil
}

// List returns keys newest first.
func (s *AdminService) List(ctx context.Context, opts ListOptions) ([]KeyInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	keys, err := s.store.ListKeys(ctx, limit, offset)
	if err != nil {
		return nil, s.fault("list", err)
	}
	out := make([]KeyInfo, len(keys))
	for i, k := range keys {
		out[i] = s.describe(k)
	}
	return out, nil
}

// Count returns the total number of stored keys.
func (s *AdminService) Count(ctx context.Context) (int64, error) {
	n, err := s.store.CountKeys(ctx)
	if err != nil {
		return 0, s.fault("count", err)
	}
	return n, nil
}

func (s *AdminService) describe(k model.Key) KeyInfo {
	info := KeyInfo{Key: k, Status: lifecycle.Display(&k, s.opts.Now())}
	if k.RedeemedBy != nil && !lifecycle.IsRedemptionActor(*k.RedeemedBy) {
		info.DeactivatedByAdmin = true
	}
	return info
}

// Ban permanently deactivates a key. Banning an inactive key is a no-op
// reported as BanAlreadyInactive.
func (s *AdminService) Ban(ctx context.Context, key, actor string) (BanResult, error) {
	keyString := strings.TrimSpace(key)
	if keyString == "" {
		return "", &ValidationError{Field: "key", Message: MsgMissingKey}
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", &ValidationError{Field: "actor", Message: "actor is required"}
	}

	snapshot, err := s.store.GetKey(ctx, keyString)
	if err != nil && !errors.Is(err, keystore.ErrNotFound) {
		return "", s.fault("ban", err)
	}

	d := lifecycle.Ban(snapshot, actor, s.opts.Now())
	switch d.Outcome {
	case lifecycle.BanNotFound:
		s.opts.Metrics.AdminAction("ban", "not_found")
		return "", &NotFoundError{Kind: "key", ID: keyString}
	case lifecycle.BanAlreadyInactive:
		s.opts.Metrics.AdminAction("ban", "already_inactive")
		return BanAlreadyInactive, nil
	}

	err = s.store.Ban(ctx, keyString, *d.Mutation)
	if errors.Is(err, keystore.ErrConflict) {
		// Deleted or banned between the read and the write.
		if _, gerr := s.store.GetKey(ctx, keyString); errors.Is(gerr, keystore.ErrNotFound) {
			return "", &NotFoundError{Kind: "key", ID: keyString}
		}
		s.opts.Metrics.AdminAction("ban", "already_inactive")
		return BanAlreadyInactive, nil
	}
	if err != nil {
		return "", s.fault("ban", err)
	}

	s.opts.Metrics.AdminAction("ban", "banned")
	s.opts.Logger.Info("key banned", "key", keyString, "actor", actor)
	s.opts.Notifier.Notify(ctx, notify.Event{Kind: notify.KeyBanned, Key: keyString, Actor: actor, At: d.Mutation.At})
	return BanBanned, nil
}

// RequestNuke opens a confirmation ticket. Nothing is deleted until the same
// actor confirms it within the window.
func (s *AdminService) RequestNuke(ctx context.Context, actor string) (*NukeTicket, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "actor is required"}
	}
	t := s.confirmations.Open(actor)
	s.opts.Metrics.AdminAction("nuke", "requested")
	s.opts.Logger.Warn("nuke requested", "ticket", t.ID, "actor", actor, "deadline", t.Deadline)
	return &t, nil
}

// ConfirmNuke deletes every key if the ticket is still pending. A deletion
// error resolves the ticket as failed and is returned as a StorageFault.
func (s *AdminService) ConfirmNuke(ctx context.Context, ticketID, actor string) (int64, error) {
	if _, err := s.confirmations.claim(ticketID, strings.TrimSpace(actor)); err != nil {
		s.opts.Metrics.AdminAction("nuke", "rejected")
		return 0, err
	}

	n, err := s.store.DeleteAll(ctx)
	s.confirmations.finish(ticketID, n, err)
	if err != nil {
		s.opts.Metrics.AdminAction("nuke", "failed")
		return 0, s.fault("nuke", err)
	}

	s.opts.Metrics.AdminAction("nuke", "confirmed")
	s.opts.Logger.Warn("all keys deleted", "ticket", ticketID, "actor", actor, "deleted", n)
	s.opts.Notifier.Notify(ctx, notify.Event{Kind: notify.KeysNuked, Actor: actor, Count: n, At: s.opts.Now()})
	return n, nil
}

// CancelNuke abandons a pending ticket. No keys are deleted.
func (s *AdminService) CancelNuke(ctx context.Context, ticketID, actor string) error {
	if _, err := s.confirmations.Cancel(ticketID, strings.TrimSpace(actor)); err != nil {
		return err
	}
	s.opts.Metrics.AdminAction("nuke", "cancelled")
	s.opts.Logger.Info("nuke cancelled", "ticket", ticketID, "actor", actor)
	return nil
}

// AwaitNuke blocks until the ticket is confirmed, cancelled, expired or failed.
func (s *AdminService) AwaitNuke(ctx context.Context, ticketID string) (NukeTicket, error) {
	return s.confirmations.Await(ctx, ticketID)
}

// NukeStatus returns the current snapshot of a ticket.
func (s *AdminService) NukeStatus(ticketID string) (NukeTicket, error) {
	t, ok := s.confirmations.Get(ticketID)
	if !ok {
		return NukeTicket{}, &NotFoundError{Kind: "nuke ticket", ID: ticketID}
	}
	return t, nil
}

func (s *AdminService) fault(op string, err error) error {
	s.opts.Logger.Error("storage fault", "op", op, "error", err)
	return &StorageFault{Op: op, Err: err}
}
