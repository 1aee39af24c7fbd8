// Package store provides persistent storage for sensei-gateway user accounts.
//
// # Architecture
//
// UserStore is the narrow contract the authentication service depends on.
// Store adds connection lifecycle (Ping, Close). Two implementations exist:
//
//   - SQLStore: database/sql over modernc.org/sqlite or pgx (postgres)
//   - MockStore: in-memory maps, used by tests and the "memory" driver
//
// Open selects an implementation from Options.Driver.
//
// # Active Records
//
// Users are never removed. SoftDeleteUser sets is_active to false and every
// lookup filters on is_active, so a deleted account is unreachable through
// the interface. Username and email uniqueness is enforced by partial unique
// indexes over active rows only, so a deleted name may be registered again.
//
// # Errors
//
//   - ErrNotFound: no active user matched
//   - ErrAlreadyExists: the storage uniqueness constraint fired
//
// CreateUser relies on the constraint rather than a pre-check, so concurrent
// registrations of the same name resolve to one success and ErrAlreadyExists.
//
// # Migrations
//
// Migrations are embedded SQL files under migrations/<dialect>/ and are
// applied with goose every time a SQLStore opens.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
