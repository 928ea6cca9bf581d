package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Requests: 2,
		Window:   time.Minute,
		Logger:   testLogger(),
	})(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if got := send("192.168.1.1:12345"); got != want {
			t.Errorf("request %d: got status %d, want %d", i+1, got, want)
		}
	}

	if got := send("192.168.1.2:12345"); got != http.StatusOK {
		t.Errorf("other client: got status %d, want %d", got, http.StatusOK)
	}
}

func TestNoRateLimit(t *testing.T) {
	handler := NoRateLimit()(okHandler())

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestKeyByAccount(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), AccountIDKey, id))

	key, err := KeyByAccount(req)
	if err != nil || key != "account:"+id.String() {
		t.Errorf("KeyByAccount() = %q, %v", key, err)
	}

	anon := httptest.NewRequest(http.MethodGet, "/test", nil)
	anon.RemoteAddr = "10.0.0.1:999"
	key, err = KeyByAccount(anon)
	if err != nil || key != "10.0.0.1" {
		t.Errorf("KeyByAccount(anonymous) = %q, %v", key, err)
	}
}

func TestAdminLimiterKeysByAccount(t *testing.T) {
	limiters := CreateRateLimiters(config.RateLimitConfig{
		Enabled:                true,
		AdminRequestsPerMinute: 1,
		AdminWindowMinutes:     1,
	}, testLogger())
	handler := limiters[LimiterAdmin](okHandler())

	send := func(account uuid.UUID) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req = req.WithContext(context.WithValue(req.Context(), AccountIDKey, account))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	a, b := uuid.New(), uuid.New()
	if send(a) != http.StatusOK || send(b) != http.StatusOK {
		t.Error("different accounts behind one IP should have separate budgets")
	}
	if send(a) != http.StatusTooManyRequests {
		t.Error("second request for the same account should be limited")
	}
}

func TestCreateRateLimiters_Disabled(t *testing.T) {
	limiters := CreateRateLimiters(config.RateLimitConfig{Enabled: false}, testLogger())

	for _, name := range []string{LimiterPublic, LimiterAdmin} {
		handler := limiters[name](okHandler())
		for i := 0; i < 50; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("%s request %d: got status %d", name, i, w.Code)
			}
		}
	}
}

func TestCreateRateLimiters_Enabled(t *testing.T) {
	limiters := CreateRateLimiters(config.RateLimitConfig{
		Enabled:                 true,
		PublicRequestsPerMinute: 5,
		PublicWindowMinutes:     1,
		AdminRequestsPerMinute:  5,
		AdminWindowMinutes:      1,
	}, testLogger())

	for _, name := range []string{LimiterPublic, LimiterAdmin} {
		if limiters[name] == nil {
			t.Errorf("%s limiter should not be nil", name)
		}
	}
}
