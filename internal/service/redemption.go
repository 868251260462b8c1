package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/notify"
)

// maxRedeemAttempts bounds the re-read loop when a conditional write loses a
// race with a concurrent redemption or ban.
const maxRedeemAttempts = 4

// RedemptionStore is what the redemption path needs from the key store.
type RedemptionStore interface {
	GetKey(ctx context.Context, keyString string) (*model.Key, error)
	ApplyRedemption(ctx context.Context, keyString string, m lifecycle.Mutation) error
}

// RedeemRequest is one client redemption attempt.
type RedeemRequest struct {
	Key              string
	OriginAddress    string
	ClientDescriptor string
	HardwareID       string
}

// Verdict is the result of a granted redemption.
type Verdict struct {
	Verdict          lifecycle.Verdict `json:"verdict"`
	Message          string            `json:"message"`
	FirstUse         bool              `json:"first_use"`
	HardwareMismatch bool              `json:"hardware_mismatch,omitempty"`
}

// Options carries the collaborators shared by the services. Zero values are
// usable: no notifications, no metrics, the default logger and wall clock.
type Options struct {
	HardwarePolicy lifecycle.HardwarePolicy
	NukeWindow     time.Duration
	Notifier       notify.Notifier
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HardwarePolicy == "" {
		o.HardwarePolicy = lifecycle.HardwarePermissive
	}
	if o.NukeWindow <= 0 {
		o.NukeWindow = DefaultNukeWindow
	}
	if o.Notifier == nil {
		o.Notifier = notify.Nop{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RedemptionService orchestrates redemption attempts and status checks.
// The notifier must not block; wrap slow sinks in notify.Async.
type RedemptionService struct {
	store RedemptionStore
	opts  Options
}

func NewRedemptionService(store RedemptionStore, opts Options) *RedemptionService {
	return &RedemptionService{store: store, opts: opts.withDefaults()}
}

// Policy returns the configured hardware mismatch policy.
func (s *RedemptionService) Policy() lifecycle.HardwarePolicy {
	return s.opts.HardwarePolicy
}

// Redeem validates a key and records first-use metadata exactly once.
// Denials are returned as *AuthorizationError, store failures as
// *StorageFault.
func (s *RedemptionService) Redeem(ctx context.Context, req RedeemRequest) (*Verdict, error) {
	keyString := strings.TrimSpace(req.Key)
	if keyString == "" {
		return nil, &ValidationError{Field: "key", Message: MsgMissingKey}
	}
	lreq := lifecycle.Request{
		OriginAddress:    req.OriginAddress,
		ClientDescriptor: req.ClientDescriptor,
		HardwareID:       strings.TrimSpace(req.HardwareID),
	}

	for attempt := 1; attempt <= maxRedeemAttempts; attempt++ {
		snapshot, err := s.load(ctx, keyString)
		if err != nil {
			return nil, s.redeemFault(err)
		}

		d := lifecycle.Redeem(snapshot, lreq, s.opts.Now(), s.opts.HardwarePolicy)
		if d.HardwareMismatch {
			s.opts.Metrics.HardwareMismatch()
			s.opts.Logger.Warn("hardware id mismatch",
				"key", keyString, "policy", s.opts.HardwarePolicy, "origin", req.OriginAddress)
		}
		if !d.Granted() {
			s.opts.Metrics.Redemption(string(d.Verdict))
			return nil, &AuthorizationError{Verdict: d.Verdict}
		}

		if d.Mutation != nil {
			err := s.store.ApplyRedemption(ctx, keyString, *d.Mutation)
			if errors.Is(err, keystore.ErrConflict) {
				s.opts.Logger.Debug("redemption lost a race, re-reading", "key", keyString, "attempt", attempt)
				continue
			}
			if err != nil {
				return nil, s.redeemFault(err)
			}
		}

		firstUse := d.Mutation != nil && d.Mutation.RecordFirstUse
		if firstUse {
			s.opts.Notifier.Notify(ctx, notify.Event{
				Kind:  notify.KeyActivated,
				Key:   keyString,
				Actor: d.Mutation.RedeemedBy,
				At:    d.Mutation.RedeemedAt,
			})
		}
		s.opts.Metrics.Redemption(string(d.Verdict))
		return &Verdict{
			Verdict:          d.Verdict,
			Message:          MsgGranted,
			FirstUse:         firstUse,
			HardwareMismatch: d.HardwareMismatch,
		}, nil
	}

	return nil, s.redeemFault(keystore.ErrConflict)
}

// CheckStatus applies the redemption checks without mutating anything.
func (s *RedemptionService) CheckStatus(ctx context.Context, key, hardwareID string) (bool, error) {
	keyString := strings.TrimSpace(key)
	if keyString == "" {
		return false, &ValidationError{Field: "key", Message: MsgMissingKey}
	}
	snapshot, err := s.load(ctx, keyString)
	if err != nil {
		return false, s.fault("status", err)
	}
	valid := lifecycle.Status(snapshot, strings.TrimSpace(hardwareID), s.opts.Now(), s.opts.HardwarePolicy)
	s.opts.Metrics.StatusCheck(valid)
	return valid, nil
}

// load returns nil, nil when the key does not exist.
func (s *RedemptionService) load(ctx context.Context, keyString string) (*model.Key, error) {
	k, err := s.store.GetKey(ctx, keyString)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, nil
	}
	return k, err
}

func (s *RedemptionService) redeemFault(err error) error {
	s.opts.Metrics.Redemption("FAULT")
	return s.fault("redeem", err)
}

func (s *RedemptionService) fault(op string, err error) error {
	s.opts.Logger.Error("storage fault", "op", op, "error", err)
	return &StorageFault{Op: op, Err: err}
}
