package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Redemption("GRANTED")
	m.Redemption("GRANTED")
	m.Redemption("EXPIRED")
	m.StatusCheck(true)
	m.StatusCheck(false)
	m.AdminAction("ban", "banned")
	m.Notification(nil)
	m.Notification(errors.New("boom"))
	m.HardwareMismatch()

	if got := testutil.ToFloat64(m.redemptions.WithLabelValues("GRANTED")); got != 2 {
		t.Errorf("GRANTED = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.redemptions.WithLabelValues("EXPIRED")); got != 1 {
		t.Errorf("EXPIRED = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.statusChecks.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid status checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.adminActions.WithLabelValues("ban", "banned")); got != 1 {
		t.Errorf("ban actions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed notifications = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.hardwareMismatches); got != 1 {
		t.Errorf("hardware mismatches = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Redemption("GRANTED")
	m.StatusCheck(true)
	m.AdminAction("nuke", "confirmed")
	m.Notification(nil)
	m.HardwareMismatch()
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Redemption("INVALID")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `keygate_redemptions_total{verdict="INVALID"} 1`) {
		t.Errorf("metrics output missing redemption counter:\n%s", body)
	}
}
