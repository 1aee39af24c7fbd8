// ABOUTME: Tests for HTTP identity middleware
// ABOUTME: Covers header parsing, anonymous fallthrough, resolver errors, and RequireSubject

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubResolver struct {
	id    int64
	err   error
	calls int
	token string
}

func (s *stubResolver) ResolveToken(_ context.Context, token string) (int64, error) {
	s.calls++
	s.token = token
	return s.id, s.err
}

// captureSubject records what the wrapped handler saw.
func captureSubject(got *Subject, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentityMiddleware_ValidToken(t *testing.T) {
	resolver := &stubResolver{id: 42}
	var got Subject
	var seen bool

	handler := IdentityMiddleware(resolver, slog.Default())(captureSubject(&got, &seen))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !seen {
		t.Fatal("handler saw no Subject")
	}
	if got.UserID != 42 {
		t.Errorf("UserID = %d, want 42", got.UserID)
	}
	if resolver.token != "abc.def.ghi" {
		t.Errorf("resolver token = %q, want %q", resolver.token, "abc.def.ghi")
	}
}

func TestIdentityMiddleware_Anonymous(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		wantResolved bool
	}{
		{name: "no header", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "scheme only", header: "Bearer"},
		{name: "blank token", header: "Bearer    "},
		{name: "resolver rejects", header: "Bearer bad-token", wantResolved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{err: ErrExpiredToken}
			var got Subject
			var seen bool

			handler := IdentityMiddleware(resolver, nil)(captureSubject(&got, &seen))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if seen {
				t.Errorf("handler saw Subject %+v, want anonymous", got)
			}
			if (resolver.calls > 0) != tt.wantResolved {
				t.Errorf("resolver calls = %d, wantResolved %v", resolver.calls, tt.wantResolved)
			}
		})
	}
}

func TestIdentityMiddleware_SchemeCaseInsensitive(t *testing.T) {
	resolver := &stubResolver{id: 5}
	var got Subject
	var seen bool

	handler := IdentityMiddleware(resolver, nil)(captureSubject(&got, &seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !seen || got.UserID != 5 {
		t.Errorf("Subject = %+v (seen %v), want UserID 5", got, seen)
	}
}

func TestTokenSubjectResolver(t *testing.T) {
	tokens := newTestTokens(t)
	resolver := TokenSubjectResolver{Tokens: tokens}

	token, _ := tokens.IssueFor(11)
	id, err := resolver.ResolveToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	if id != 11 {
		t.Errorf("ResolveToken() = %d, want 11", id)
	}

	nonNumeric, _ := tokens.Issue(map[string]any{"sub": "alice"}, 0)
	if _, err := resolver.ResolveToken(context.Background(), nonNumeric); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ResolveToken(non-numeric) error = %v, want ErrInvalidToken", err)
	}
}

func TestRequireSubject(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireSubject(inner)

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("WWW-Authenticate = %q, want Bearer", rec.Header().Get("WWW-Authenticate"))
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["detail"] != "Not authenticated" {
			t.Errorf("detail = %q, want %q", body["detail"], "Not authenticated")
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req = req.WithContext(WithSubject(req.Context(), Subject{UserID: 1}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
	})
}

func TestTokenFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrExpiredToken, "expired"},
		{ErrInvalidSignature, "invalid_signature"},
		{ErrMissingClaim, "missing_claim"},
		{ErrInvalidToken, "malformed"},
		{errors.New("db down"), "unresolved"},
	}
	for _, tt := range tests {
		if got := tokenFailureKind(tt.err); got != tt.want {
			t.Errorf("tokenFailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
