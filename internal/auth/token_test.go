// ABOUTME: Unit tests for JWT token issuance and validation
// ABOUTME: Tests valid tokens, tampered and foreign tokens, expiry, and constructor checks

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSecret is a 32-byte secret that meets MinSecretLength requirement.
var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, "HS256", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestTokens(t)

	token, err := svc.Issue(map[string]any{"sub": "42", "role": "student"}, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if claims.Subject != "42" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "42")
	}
	if got := claims.Raw["role"]; got != "student" {
		t.Errorf("Raw[role] = %v, want student", got)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt) != time.Hour {
		t.Errorf("lifetime = %s, want 1h", claims.ExpiresAt.Sub(claims.IssuedAt))
	}
}

func TestTokenService_IssueFor(t *testing.T) {
	svc := newTestTokens(t)

	token, err := svc.IssueFor(7)
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "7" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "7")
	}
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newTestTokens(t)

	other, err := NewTokenService([]byte("a-completely-different-secret-32"), "HS256", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	foreign, _ := other.IssueFor(1)

	valid, _ := svc.IssueFor(1)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty token", token: "", wantErr: ErrInvalidToken},
		{name: "garbage token", token: "not-a-jwt-token", wantErr: ErrInvalidToken},
		{name: "malformed JWT", token: "header.payload.signature", wantErr: ErrInvalidToken},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidSignature},
		{name: "tampered signature", token: tampered, wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTestTokens(t)

	token, err := svc.Issue(map[string]any{"sub": "1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Validate(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenService_ClockAdvance(t *testing.T) {
	svc := newTestTokens(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	token, err := svc.IssueFor(3)
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(59 * time.Minute) }
	if _, err := svc.Validate(token); err != nil {
		t.Fatalf("Validate() before expiry error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(61 * time.Minute) }
	if _, err := svc.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenService_MissingClaims(t *testing.T) {
	svc := newTestTokens(t)

	t.Run("no subject", func(t *testing.T) {
		token, _ := svc.Issue(map[string]any{"role": "x"}, 0)
		_, err := svc.Validate(token)
		if !errors.Is(err, ErrMissingClaim) {
			t.Errorf("Validate() error = %v, want ErrMissingClaim", err)
		}
	})

	t.Run("no expiry", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"})
		token, err := raw.SignedString(testSecret)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
		}
	})
}

func TestTokenService_RejectsOtherAlgorithm(t *testing.T) {
	svc := newTestTokens(t)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name      string
		secret    []byte
		algorithm string
		ttl       time.Duration
		wantErr   bool
		wantTTL   time.Duration
	}{
		{name: "defaults", secret: testSecret, wantTTL: DefaultTokenTTL},
		{name: "HS384", secret: testSecret, algorithm: "HS384", ttl: time.Minute, wantTTL: time.Minute},
		{name: "HS512", secret: testSecret, algorithm: "HS512", ttl: time.Minute, wantTTL: time.Minute},
		{name: "short secret", secret: []byte("short"), wantErr: true},
		{name: "asymmetric algorithm", secret: testSecret, algorithm: "RS256", wantErr: true},
		{name: "none algorithm", secret: testSecret, algorithm: "none", wantErr: true},
		{name: "negative ttl", secret: testSecret, ttl: -time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTokenService(tt.secret, tt.algorithm, tt.ttl)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewTokenService() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenService() error = %v", err)
			}
			if svc.TTL() != tt.wantTTL {
				t.Errorf("TTL() = %s, want %s", svc.TTL(), tt.wantTTL)
			}
		})
	}
}
