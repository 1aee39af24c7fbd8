// ABOUTME: User persistence for SQLStore with active-only lookups and soft delete
// ABOUTME: Uniqueness is decided by the partial unique indexes, not by pre-checks

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, username, email, password_hash, is_active, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsActive,
		scanTime{&u.CreatedAt},
		scanTime{&u.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new active user.
// Returns ErrAlreadyExists if an active user holds the username or email.
func (s *SQLStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now()
	query := s.rebind(`
		INSERT INTO users (username, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns)

	u, err := scanUser(s.db.QueryRowContext(ctx, query,
		username,
		email,
		passwordHash,
		true,
		s.timeArg(now),
		s.timeArg(now),
	))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", u.ID)
	return u, nil
}

// GetUserByID retrieves an active user by ID.
// Returns ErrNotFound if the user doesn't exist or was deleted.
func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUserBy(ctx, "id", id)
}

// GetUserByUsername retrieves an active user by username.
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserBy(ctx, "username", username)
}

// GetUserByEmail retrieves an active user by email.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserBy(ctx, "email", email)
}

// getUserBy looks up one active user. column is always a literal from this file.
func (s *SQLStore) getUserBy(ctx context.Context, column string, value any) (*User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ? AND is_active = ?`)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, value, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by %s: %w", column, err)
	}
	return u, nil
}

// UpdateUser applies a partial update to an active user.
// Returns ErrNotFound if no active user has the ID, ErrAlreadyExists on a
// uniqueness conflict.
func (s *SQLStore) UpdateUser(ctx context.Context, id int64, update UserUpdate) (*User, error) {
	if update.IsEmpty() {
		return s.GetUserByID(ctx, id)
	}

	var sets []string
	var args []any
	if update.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *update.Username)
	}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *update.Email)
	}
	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *update.PasswordHash)
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *update.IsActive)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timeArg(time.Now()), id, true)

	query := s.rebind(`
		UPDATE users SET ` + strings.Join(sets, ", ") + `
		WHERE id = ? AND is_active = ?
		RETURNING ` + userColumns)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Debug("updated user", "id", id, "fields", len(sets)-1)
	return u, nil
}

// SoftDeleteUser marks a user inactive. The row is kept.
func (s *SQLStore) SoftDeleteUser(ctx context.Context, id int64) (*User, error) {
	return s.UpdateUser(ctx, id, UserUpdate{IsActive: Ptr(false)})
}
