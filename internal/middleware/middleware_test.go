package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/herderhub/herderhub-api/internal/auth"
)

func whoami(t *testing.T, got *UserCtx) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromCtx(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth(t *testing.T) {
	tm := auth.NewTokenManager("a-secret", "r-secret", time.Minute, time.Hour)
	pair, err := tm.GeneratePair("u-1", "admin")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		env      string
		header   string
		want     int
		wantUser UserCtx
	}{
		{name: "missing header", env: "dev", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", env: "dev", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "access token", env: "prod", header: "Bearer " + pair.AccessToken, want: http.StatusNoContent, wantUser: UserCtx{UserID: "u-1", Role: "admin"}},
		{name: "lowercase scheme", env: "prod", header: "bearer " + pair.AccessToken, want: http.StatusNoContent, wantUser: UserCtx{UserID: "u-1", Role: "admin"}},
		{name: "refresh token rejected", env: "prod", header: "Bearer " + pair.RefreshToken, want: http.StatusUnauthorized},
		{name: "dev shortcut", env: "dev", header: "Bearer dev-u-9", want: http.StatusNoContent, wantUser: UserCtx{UserID: "u-9", Role: "user"}},
		{name: "dev shortcut outside dev", env: "prod", header: "Bearer dev-u-9", want: http.StatusUnauthorized},
		{name: "empty dev id", env: "dev", header: "Bearer dev-", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got UserCtx
			h := NewAuthMiddleware(tm, tt.env).Auth(whoami(t, &got))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if got != tt.wantUser {
				t.Errorf("user = %+v, want %+v", got, tt.wantUser)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole("admin")(ok)

	tests := []struct {
		name string
		user *UserCtx
		want int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "plain user", user: &UserCtx{UserID: "u", Role: "user"}, want: http.StatusForbidden},
		{name: "admin", user: &UserCtx{UserID: "a", Role: "admin"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), *tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id %q, header %q", seen, rr.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Errorf("incoming id not kept: %q", seen)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(1)(ok)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	// burst is 2
	for i := 0; i < 2; i++ {
		if code := hit("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := hit("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("third request from same IP: status %d, want 429", code)
	}
	if code := hit("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other client throttled: status %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(0)(ok)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
}
