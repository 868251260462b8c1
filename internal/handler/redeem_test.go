package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

func TestRedeemMissingKey(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	rr := env.form(t, "/redeem", "", "")
	assertStatus(t, rr, http.StatusBadRequest)

	var resp model.RedeemResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != "error" || resp.Message != service.MsgMissingKey {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRedeemUnknownKey(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	rr := env.form(t, "/redeem", "key=KEY-DOES-NOT-EXIST", "")
	assertStatus(t, rr, http.StatusForbidden)

	var resp model.RedeemResponse
	decodeJSON(t, rr, &resp)
	if resp.Message != service.MsgInvalid {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestRedeemRecordsFirstUse(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	key := env.seedKey(t, "lifetime")

	rr := env.form(t, "/redeem", "key="+key, "MyApp/1.0")
	assertStatus(t, rr, http.StatusOK)
	var resp model.RedeemResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != "success" || resp.Message != service.MsgGranted {
		t.Fatalf("resp = %+v", resp)
	}

	k, err := env.store.GetKey(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if k.RedeemedBy == nil || *k.RedeemedBy != "IP: 198.51.100.4 | Client: MyApp/1.0" {
		t.Errorf("redeemed_by = %v", k.RedeemedBy)
	}
	if k.RedeemedIP == nil || *k.RedeemedIP != "198.51.100.4" {
		t.Errorf("redeemed_ip = %v", k.RedeemedIP)
	}
	if !k.IsActive {
		t.Error("redemption must not deactivate the key")
	}
	first := *k.RedeemedAt

	// Keys stay usable; metadata is not overwritten.
	env.clock.Advance(time.Hour)
	assertStatus(t, env.form(t, "/redeem", "key="+key, "Other/2.0"), http.StatusOK)
	k, _ = env.store.GetKey(context.Background(), key)
	if !k.RedeemedAt.Equal(first) || !strings.Contains(*k.RedeemedBy, "MyApp/1.0") {
		t.Errorf("first-use metadata changed: %v %v", k.RedeemedAt, *k.RedeemedBy)
	}
}

func TestRedeemUnknownClient(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	key := env.seedKey(t, "")

	rr := env.form(t, "/redeem", "key="+key, "")
	assertStatus(t, rr, http.StatusOK)

	k, _ := env.store.GetKey(context.Background(), key)
	if k.RedeemedBy == nil || !strings.HasSuffix(*k.RedeemedBy, "| Client: unknown") {
		t.Errorf("redeemed_by = %v", k.RedeemedBy)
	}
}

func TestRedeemJSONBody(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	key := env.seedKey(t, "week")

	rr := env.do(t, "POST", "/redeem", toJSON(t, map[string]string{"key": key, "hwid": "HW-1"}))
	assertStatus(t, rr, http.StatusOK)

	k, _ := env.store.GetKey(context.Background(), key)
	if k.HardwareID == nil || *k.HardwareID != "HW-1" {
		t.Errorf("hwid = %v", k.HardwareID)
	}
}

func TestRedeemDenials(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	ctx := context.Background()

	banned := env.seedKey(t, "lifetime")
	if _, err := env.admin.Ban(ctx, banned, "ops"); err != nil {
		t.Fatal(err)
	}
	expiring := env.seedKey(t, "day")
	env.clock.Advance(25 * time.Hour)

	tests := []struct {
		name string
		key  string
		msg  string
	}{
		{"banned", banned, service.MsgBannedOrRedeemed},
		{"expired", expiring, service.MsgExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.form(t, "/redeem", "key="+tt.key, "")
			assertStatus(t, rr, http.StatusForbidden)
			var resp model.RedeemResponse
			decodeJSON(t, rr, &resp)
			if resp.Status != "error" || resp.Message != tt.msg {
				t.Errorf("resp = %+v, want message %q", resp, tt.msg)
			}
		})
	}
}

func TestRedeemHardwarePolicy(t *testing.T) {
	tests := []struct {
		policy lifecycle.HardwarePolicy
		want   int
	}{
		{lifecycle.HardwarePermissive, http.StatusOK},
		{lifecycle.HardwareStrict, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			env := newTestEnv(t, tt.policy)
			key := env.seedKey(t, "lifetime")

			assertStatus(t, env.form(t, "/redeem", "key="+key+"&hwid=HW-A", ""), http.StatusOK)
			rr := env.form(t, "/redeem", "key="+key+"&hwid=HW-B", "")
			assertStatus(t, rr, tt.want)
			if tt.want == http.StatusForbidden {
				var resp model.RedeemResponse
				decodeJSON(t, rr, &resp)
				if resp.Message != service.MsgHardwareMismatch {
					t.Errorf("message = %q", resp.Message)
				}
			}

			k, _ := env.store.GetKey(context.Background(), key)
			if *k.HardwareID != "HW-A" {
				t.Errorf("bound hwid changed to %q", *k.HardwareID)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, lifecycle.HardwarePermissive)
	key := env.seedKey(t, "lifetime")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		status string
	}{
		{"valid via query", "GET", "/status?key=" + key, "", http.StatusOK, "valid"},
		{"valid via form", "POST", "/status", "key=" + key, http.StatusOK, "valid"},
		{"unknown key", "GET", "/status?key=KEY-NOPE", "", http.StatusOK, "invalid"},
		{"missing key", "GET", "/status", "", http.StatusBadRequest, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rr *httptest.ResponseRecorder
			if tt.method == "GET" {
				rr = env.do(t, "GET", tt.path, nil)
			} else {
				rr = env.form(t, tt.path, tt.body, "")
			}
			assertStatus(t, rr, tt.code)
			var resp map[string]string
			decodeJSON(t, rr, &resp)
			if resp["status"] != tt.status {
				t.Errorf("status = %q, want %q", resp["status"], tt.status)
			}
		})
	}

	k, _ := env.store.GetKey(context.Background(), key)
	if k.RedeemedAt != nil || k.RedeemedBy != nil {
		t.Error("status checks must not record redemption metadata")
	}
}
