// ABOUTME: Store interface and data types for sensei-gateway persistence
// ABOUTME: Defines the User record, partial updates, and the UserStore contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or is inactive
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an active user already holds the username or email
var ErrAlreadyExists = errors.New("user already exists")

// User is a stored account. PasswordHash never holds plaintext.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate describes a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
	IsActive     *bool
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil && u.IsActive == nil
}

// UserStore persists identity records. All lookups only see active users.
type UserStore interface {
	// CreateUser inserts an active user. Returns ErrAlreadyExists when the
	// storage uniqueness constraint on username or email fires.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser applies update to an active user and returns the new row.
	// Returns ErrNotFound when the user is missing or inactive.
	UpdateUser(ctx context.Context, id int64, update UserUpdate) (*User, error)

	// SoftDeleteUser marks the user inactive and returns the inactive row.
	SoftDeleteUser(ctx context.Context, id int64) (*User, error)
}

// Store is a UserStore that owns a connection.
type Store interface {
	UserStore

	Ping(ctx context.Context) error
	Close() error
}

// Ptr returns a pointer to v, for building UserUpdate values.
func Ptr[T any](v T) *T {
	return &v
}
