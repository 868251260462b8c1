package lifecycle

import (
	"testing"
	"time"

	"github.com/keygate/keygate/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func freshKey() *model.Key {
	return &model.Key{ID: "id-1", KeyString: "KEY-1", IsActive: true, CreatedAt: t0}
}

func TestRedeemVerdicts(t *testing.T) {
	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)

	tests := []struct {
		name    string
		key     *model.Key
		want    Verdict
		state   State
		mutates bool
	}{
		{"missing", nil, VerdictInvalid, StateNotFound, false},
		{"fresh", freshKey(), VerdictGranted, StateActiveUnused, true},
		{"future expiry", &model.Key{IsActive: true, ExpiresAt: &future}, VerdictGranted, StateActiveUnused, true},
		{"expired", &model.Key{IsActive: true, ExpiresAt: &past}, VerdictExpired, StateExpired, false},
		{"banned", &model.Key{IsActive: false}, VerdictBannedOrRedeemed, StateBanned, false},
		{"banned and expired", &model.Key{IsActive: false, ExpiresAt: &past}, VerdictExpired, StateExpired, false},
		{"banned before expiry", &model.Key{IsActive: false, ExpiresAt: &future}, VerdictBannedOrRedeemed, StateBanned, false},
		{"already redeemed", &model.Key{IsActive: true, RedeemedAt: &past, RedeemedBy: strPtr("IP: 1.1.1.1 | Client: x")}, VerdictGranted, StateActiveBound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Redeem(tt.key, Request{OriginAddress: "10.0.0.1", ClientDescriptor: "curl"}, t0, HardwarePermissive)
			if d.Verdict != tt.want {
				t.Errorf("Verdict = %s, want %s", d.Verdict, tt.want)
			}
			if d.State != tt.state {
				t.Errorf("State = %s, want %s", d.State, tt.state)
			}
			if (d.Mutation != nil) != tt.mutates {
				t.Errorf("Mutation = %+v, want mutation=%v", d.Mutation, tt.mutates)
			}
		})
	}
}

func TestRedeemExpiryBoundaryIsStrict(t *testing.T) {
	k := freshKey()
	k.ExpiresAt = timePtr(t0)

	if d := Redeem(k, Request{}, t0, HardwarePermissive); d.Verdict != VerdictGranted {
		t.Errorf("at deadline: Verdict = %s, want GRANTED", d.Verdict)
	}
	if d := Redeem(k, Request{}, t0.Add(time.Nanosecond), HardwarePermissive); d.Verdict != VerdictExpired {
		t.Errorf("after deadline: Verdict = %s, want EXPIRED", d.Verdict)
	}
}

func TestRedeemFirstUseMutation(t *testing.T) {
	d := Redeem(freshKey(), Request{
		OriginAddress:    "203.0.113.7",
		ClientDescriptor: "launcher/1.2",
		HardwareID:       "HW-A",
	}, t0, HardwarePermissive)

	if d.Mutation == nil {
		t.Fatal("expected a mutation on first use")
	}
	m := d.Mutation
	if !m.RecordFirstUse {
		t.Error("expected RecordFirstUse")
	}
	if !m.RedeemedAt.Equal(t0) {
		t.Errorf("RedeemedAt = %v, want %v", m.RedeemedAt, t0)
	}
	if m.RedeemedBy != "IP: 203.0.113.7 | Client: launcher/1.2" {
		t.Errorf("RedeemedBy = %q", m.RedeemedBy)
	}
	if m.RedeemedIP != "203.0.113.7" {
		t.Errorf("RedeemedIP = %q", m.RedeemedIP)
	}
	if !m.BindHardware || m.HardwareID != "HW-A" {
		t.Errorf("hardware binding = %v/%q, want true/HW-A", m.BindHardware, m.HardwareID)
	}
}

func TestRedeemBindsHardwareOnLaterUse(t *testing.T) {
	k := freshKey()
	k.RedeemedAt = timePtr(t0.Add(-time.Hour))
	k.RedeemedBy = strPtr("IP: 1.2.3.4 | Client: a")

	d := Redeem(k, Request{HardwareID: "HW-B"}, t0, HardwarePermissive)
	if d.Mutation == nil {
		t.Fatal("expected hardware binding mutation")
	}
	if d.Mutation.RecordFirstUse {
		t.Error("first-use metadata must not be recorded twice")
	}
	if !d.Mutation.BindHardware || d.Mutation.HardwareID != "HW-B" {
		t.Errorf("binding = %+v", d.Mutation)
	}
}

func TestRedeemHardwareMismatch(t *testing.T) {
	k := freshKey()
	k.RedeemedAt = timePtr(t0.Add(-time.Hour))
	k.HardwareID = strPtr("HW-A")

	t.Run("permissive", func(t *testing.T) {
		d := Redeem(k, Request{HardwareID: "HW-B"}, t0, HardwarePermissive)
		if d.Verdict != VerdictGranted {
			t.Errorf("Verdict = %s, want GRANTED", d.Verdict)
		}
		if !d.HardwareMismatch {
			t.Error("expected HardwareMismatch flag")
		}
		if d.Mutation != nil {
			t.Errorf("bound hardware id must not be overwritten, got %+v", d.Mutation)
		}
	})

	t.Run("strict", func(t *testing.T) {
		d := Redeem(k, Request{HardwareID: "HW-B"}, t0, HardwareStrict)
		if d.Verdict != VerdictHardwareMismatch {
			t.Errorf("Verdict = %s, want HARDWARE_MISMATCH", d.Verdict)
		}
		if d.Mutation != nil {
			t.Error("rejected redemption must not mutate")
		}
	})

	t.Run("same id", func(t *testing.T) {
		d := Redeem(k, Request{HardwareID: "HW-A"}, t0, HardwareStrict)
		if d.Verdict != VerdictGranted || d.HardwareMismatch {
			t.Errorf("Verdict = %s mismatch=%v, want GRANTED without mismatch", d.Verdict, d.HardwareMismatch)
		}
	})

	t.Run("no id supplied", func(t *testing.T) {
		d := Redeem(k, Request{}, t0, HardwareStrict)
		if d.Verdict != VerdictGranted {
			t.Errorf("Verdict = %s, want GRANTED", d.Verdict)
		}
	})
}

func TestStatusNeverMutatesAndMatchesRedeem(t *testing.T) {
	past := t0.Add(-time.Minute)
	if !Status(freshKey(), "", t0, HardwarePermissive) {
		t.Error("fresh key should be valid")
	}
	if Status(nil, "", t0, HardwarePermissive) {
		t.Error("missing key should be invalid")
	}
	if Status(&model.Key{IsActive: false}, "", t0, HardwarePermissive) {
		t.Error("banned key should be invalid")
	}
	if Status(&model.Key{IsActive: true, ExpiresAt: &past}, "", t0, HardwarePermissive) {
		t.Error("expired key should be invalid")
	}
}

func TestBan(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		if d := Ban(nil, "admin", t0); d.Outcome != BanNotFound {
			t.Errorf("Outcome = %s, want NOT_FOUND", d.Outcome)
		}
	})

	t.Run("fresh key records actor", func(t *testing.T) {
		d := Ban(freshKey(), "admin#1", t0)
		if d.Outcome != BanApply || d.Mutation == nil {
			t.Fatalf("got %+v, want BAN with mutation", d)
		}
		if !d.Mutation.RecordActor || d.Mutation.Actor != "admin#1" {
			t.Errorf("mutation = %+v", d.Mutation)
		}
	})

	t.Run("redeemed key keeps redemption actor", func(t *testing.T) {
		k := freshKey()
		k.RedeemedAt = timePtr(t0)
		k.RedeemedBy = strPtr("IP: 1.1.1.1 | Client: c")
		d := Ban(k, "admin", t0)
		if d.Outcome != BanApply {
			t.Fatalf("Outcome = %s, want BAN", d.Outcome)
		}
		if d.Mutation.RecordActor {
			t.Error("ban must not overwrite existing redemption metadata")
		}
	})

	t.Run("already inactive", func(t *testing.T) {
		d := Ban(&model.Key{IsActive: false}, "admin", t0)
		if d.Outcome != BanAlreadyInactive || d.Mutation != nil {
			t.Errorf("got %+v, want ALREADY_INACTIVE without mutation", d)
		}
	})
}

func TestExpiryFor(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"", nil},
		{"none", nil},
		{"lifetime", nil},
		{"day", timePtr(t0.Add(24 * time.Hour))},
		{"WEEK", timePtr(t0.Add(7 * 24 * time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			if err != nil {
				t.Fatalf("ParseDuration(%q): %v", tt.in, err)
			}
			got, err := ExpiryFor(d, t0)
			if err != nil {
				t.Fatalf("ExpiryFor: %v", err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", *got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("got %v, want %v", got, *tt.want)
			}
		})
	}

	if _, err := ParseDuration("month"); err == nil {
		t.Error("expected error for unknown duration")
	}
}

func TestDayKeyExpiresAfterADay(t *testing.T) {
	exp, _ := ExpiryFor(DurationDay, t0)
	k := freshKey()
	k.ExpiresAt = exp

	if d := Redeem(k, Request{}, t0, HardwarePermissive); d.Verdict != VerdictGranted {
		t.Errorf("immediate redeem: %s, want GRANTED", d.Verdict)
	}
	if d := Redeem(k, Request{}, t0.Add(25*time.Hour), HardwarePermissive); d.Verdict != VerdictExpired {
		t.Errorf("redeem after 25h: %s, want EXPIRED", d.Verdict)
	}
}

func TestDisplayLabels(t *testing.T) {
	for status, want := range map[DisplayStatus]string{
		DisplayActive:   "Active",
		DisplayInactive: "Redeemed / Banned",
		DisplayExpired:  "Expired",
	} {
		if string(status) != want {
			t.Errorf("label = %q, want %q", status, want)
		}
	}
}

func TestDisplay(t *testing.T) {
	past := t0.Add(-time.Second)
	tests := []struct {
		name string
		key  *model.Key
		want DisplayStatus
	}{
		{"active", freshKey(), DisplayActive},
		{"banned", &model.Key{IsActive: false}, DisplayInactive},
		{"expired", &model.Key{IsActive: true, ExpiresAt: &past}, DisplayExpired},
		{"expired and banned", &model.Key{IsActive: false, ExpiresAt: &past}, DisplayExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Display(tt.key, t0); got != tt.want {
				t.Errorf("Display = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedemptionActor(t *testing.T) {
	got := RedemptionActor("1.2.3.4", "")
	if got != "IP: 1.2.3.4 | Client: unknown" {
		t.Errorf("RedemptionActor = %q", got)
	}
	if !IsRedemptionActor(got) {
		t.Error("redemption descriptor should be recognised")
	}
	if IsRedemptionActor("admin#42") {
		t.Error("administrative actor should not be recognised as redemption")
	}
}

func TestParseHardwarePolicy(t *testing.T) {
	for in, want := range map[string]HardwarePolicy{"": HardwarePermissive, "Strict": HardwareStrict, "permissive": HardwarePermissive} {
		got, err := ParseHardwarePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseHardwarePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseHardwarePolicy("lenient"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
