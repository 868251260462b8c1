package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
)

const testJWTSecret = "test-secret-for-handler-tests"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *keystore.Store
	clock   *testClock
	authSvc *service.AuthService
	admin   *service.AdminService
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory key store and
// a Chi router carrying the client and admin routes.
func newTestEnv(t *testing.T, policy lifecycle.HardwarePolicy) *testEnv {
	t.Helper()

	store, err := keystore.Open(context.Background(), keystore.Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Now().UTC()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := service.Options{HardwarePolicy: policy, Logger: logger, Now: clock.Now}

	authSvc := service.NewAuthService(testJWTSecret)
	admin := service.NewAdminService(store, opts)
	rh := NewRedeemHandler(service.NewRedemptionService(store, opts), logger)
	ah := NewAdminHandler(admin, logger)

	r := chi.NewRouter()
	r.Post("/redeem", rh.Redeem)
	r.Get("/status", rh.Status)
	r.Post("/status", rh.Status)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(authSvc))
		r.Get("/keys", ah.ListKeys)
		r.Post("/keys", ah.GenerateKey)
		r.Get("/keys/{key}", ah.GetKey)
		r.Post("/keys/{key}/ban", ah.BanKey)
		r.Post("/nuke", ah.RequestNuke)
		r.Get("/nuke/{ticket}", ah.GetNuke)
		r.Post("/nuke/{ticket}/confirm", ah.ConfirmNuke)
		r.Delete("/nuke/{ticket}", ah.CancelNuke)
	})
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeSpec)

	return &testEnv{
		store:   store,
		clock:   clock,
		authSvc: authSvc,
		admin:   admin,
		router:  r,
	}
}

// seedKey issues a key through the admin service.
func (e *testEnv) seedKey(t *testing.T, duration string) string {
	t.Helper()
	k, err := e.admin.Generate(context.Background(), duration, "seed")
	if err != nil {
		t.Fatalf("seedKey: %v", err)
	}
	return k.KeyString
}

func (e *testEnv) token(t *testing.T, actor string) string {
	t.Helper()
	tok, err := e.authSvc.IssueJWT(context.Background(), actor, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return tok
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// form posts a url-encoded body the way client applications do.
func (e *testEnv) form(t *testing.T, path, body, userAgent string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.RemoteAddr = "198.51.100.4:40000"
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// adminDo executes an authenticated admin API request as actor.
func (e *testEnv) adminDo(t *testing.T, actor, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token(t, actor))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
