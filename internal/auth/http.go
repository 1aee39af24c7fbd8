// ABOUTME: HTTP middleware that resolves a bearer token into a request Subject
// ABOUTME: Invalid or missing tokens leave the request anonymous; RequireSubject enforces auth

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// SubjectResolver turns a raw bearer token into a user ID.
type SubjectResolver interface {
	ResolveToken(ctx context.Context, token string) (int64, error)
}

// TokenSubjectResolver resolves subjects from token claims alone, without
// checking whether the account still exists.
type TokenSubjectResolver struct {
	Tokens TokenValidator
}

// ResolveToken validates the token and parses its subject.
func (r TokenSubjectResolver) ResolveToken(_ context.Context, token string) (int64, error) {
	claims, err := r.Tokens.Validate(token)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// tokenFailureKind names a resolution failure for debug logs.
func tokenFailureKind(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrInvalidToken):
		return "malformed"
	default:
		return "unresolved"
	}
}

// IdentityMiddleware attaches a Subject to the request context when the
// Authorization header carries a token the resolver accepts. It never rejects
// a request; endpoints that need identity wrap themselves in RequireSubject.
func IdentityMiddleware(resolver SubjectResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "identity")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				next.ServeHTTP(w, r) // Continue as anonymous
				return
			}

			userID, err := resolver.ResolveToken(r.Context(), token)
			if err != nil {
				logger.Debug("bearer token rejected", "reason", tokenFailureKind(err), "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSubject(r.Context(), Subject{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSubject rejects anonymous requests with 401.
// Must be used after IdentityMiddleware.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
