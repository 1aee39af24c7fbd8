// ABOUTME: Request-scoped subject for tracking identity through HTTP handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for propagating auth via context

package auth

import (
	"context"
	"strconv"
)

// Subject is the authenticated caller resolved from a bearer token.
// Its absence from a context means the request is anonymous.
type Subject struct {
	UserID int64
}

// String returns the user ID in the form used for the token "sub" claim.
func (s Subject) String() string {
	return strconv.FormatInt(s.UserID, 10)
}

// subjectContextKey is the key type for storing Subject in context.Context.
type subjectContextKey struct{}

// WithSubject returns a new context with the Subject attached.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, s)
}

// SubjectFromContext retrieves the Subject from the context.
// The second result is false for anonymous requests.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectContextKey{}).(Subject)
	return s, ok
}

// MustSubjectFromContext retrieves the Subject, panicking if not present.
// Only use behind RequireSubject.
func MustSubjectFromContext(ctx context.Context) Subject {
	s, ok := SubjectFromContext(ctx)
	if !ok {
		panic("auth: Subject not found in context")
	}
	return s
}
