package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	delay  time.Duration
}

func (r *recorder) Notify(ctx context.Context, ev Event) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookPostsContent(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := Event{Kind: KeyActivated, Key: "KEY-1", Actor: "IP: 1.2.3.4 | Client: x", At: time.Now()}
	if err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(got.Content, "KEY-1") {
		t.Errorf("content = %q, want key mentioned", got.Content)
	}
	if got.Event.Kind != KeyActivated {
		t.Errorf("event kind = %q", got.Event.Kind)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, 0).Notify(context.Background(), Event{Kind: KeyBanned})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("got %v, want status error", err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("sink down")}

	err := Multi{ok, bad}.Notify(context.Background(), Event{Kind: KeysNuked})
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("got %v, want joined error", err)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", ok.count(), bad.count())
	}
}

func TestAsyncDoesNotBlock(t *testing.T) {
	slow := &recorder{delay: 200 * time.Millisecond}
	var (
		mu      sync.Mutex
		results []error
	)
	a := NewAsync(slow, time.Second, discardLogger(), func(err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})

	start := time.Now()
	if err := a.Notify(context.Background(), Event{Kind: KeyActivated}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Notify blocked for %v", elapsed)
	}

	a.Wait()
	if slow.count() != 1 {
		t.Errorf("deliveries = %d, want 1", slow.count())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0] != nil {
		t.Errorf("observed results = %v, want [nil]", results)
	}
}

func TestAsyncTimeoutAndFailureAreSwallowed(t *testing.T) {
	slow := &recorder{delay: time.Second}
	var observed error
	a := NewAsync(slow, 20*time.Millisecond, discardLogger(), func(err error) { observed = err })

	if err := a.Notify(context.Background(), Event{Kind: KeyBanned}); err != nil {
		t.Fatalf("Notify returned %v, want nil", err)
	}
	a.Wait()
	if !errors.Is(observed, context.DeadlineExceeded) {
		t.Errorf("observed %v, want deadline exceeded", observed)
	}
}

func TestEventSummary(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: KeyBanned, Key: "KEY-2", Actor: "ops"}, "Key `KEY-2` banned by ops"},
		{Event{Kind: KeysNuked, Actor: "ops", Count: 3}, "All keys deleted by ops (3 removed)"},
	}
	for _, tt := range tests {
		if got := tt.ev.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

func TestRedisUnreachable(t *testing.T) {
	r := NewRedis("127.0.0.1:1", "")
	defer r.Close()
	if r.channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", r.channel, DefaultChannel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err == nil {
		t.Error("Ping: expected error for a closed port")
	}
	if err := r.Notify(ctx, Event{Kind: KeyActivated, Key: "KEY-1"}); err == nil {
		t.Error("Notify: expected error for a closed port")
	}
}
