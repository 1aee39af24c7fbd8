// Package auth provides account authentication for sensei-gateway.
//
// # Passwords
//
// Passwords are hashed with argon2id and stored as self-describing PHC
// strings:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
//
// Verification also accepts bcrypt hashes ($2a$, $2b$, $2y$). Any hash that
// is not argon2id with the current parameters is rewritten on the next
// successful login.
//
// # Tokens
//
// Access tokens are HMAC-signed JWTs (HS256 by default) carrying the user ID
// as a decimal "sub" claim plus "iat" and "exp". Tokens are stateless; logout
// does not revoke them.
//
//	tokens, err := NewTokenService(secret, "HS256", 24*time.Hour)
//	token, err := tokens.IssueFor(userID)
//	claims, err := tokens.Validate(token)
//
// # Service
//
// Service implements register, login, change password, delete, and token
// resolution on top of a store.UserStore. Failures are returned as
// *apperr.Error values whose Kind selects the HTTP status and whose Message
// is safe to show callers.
//
// # HTTP
//
// IdentityMiddleware reads "Authorization: Bearer <token>" and, when the
// resolver accepts the token, attaches a Subject to the request context.
// Requests without a usable token continue anonymously. RequireSubject
// rejects anonymous requests with 401.
//
//	handler = IdentityMiddleware(service, logger)(mux)
//	mux.Handle("GET /users/me", RequireSubject(meHandler))
package auth
