// ABOUTME: Mock Store implementation for testing and the memory driver
// ABOUTME: Keeps users in maps and enforces active-only uniqueness like the SQL indexes

package store

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation.
type MockStore struct {
	mu     sync.RWMutex
	users  map[int64]*User // keyed by user ID, inactive rows included
	nextID int64
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:  make(map[int64]*User),
		nextID: 1,
	}
}

// CreateUser stores a new active user.
func (m *MockStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflictLocked(0, username, email) {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	u := &User{
		ID:           m.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.nextID++
	m.users[u.ID] = u

	result := *u
	return &result, nil
}

// conflictLocked reports whether another active user holds username or email.
// Must be called with mu held.
func (m *MockStore) conflictLocked(selfID int64, username, email string) bool {
	for _, u := range m.users {
		if !u.IsActive || u.ID == selfID {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}

// GetUserByID retrieves an active user by ID.
func (m *MockStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

// GetUserByUsername retrieves an active user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

// GetUserByEmail retrieves an active user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *MockStore) find(match func(*User) bool) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.IsActive && match(u) {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser applies a partial update to an active user.
func (m *MockStore) UpdateUser(ctx context.Context, id int64, update UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, ErrNotFound
	}

	next := *u
	if update.Username != nil {
		next.Username = *update.Username
	}
	if update.Email != nil {
		next.Email = *update.Email
	}
	if update.PasswordHash != nil {
		next.PasswordHash = *update.PasswordHash
	}
	if update.IsActive != nil {
		next.IsActive = *update.IsActive
	}

	if next.IsActive && (update.Username != nil || update.Email != nil) &&
		m.conflictLocked(id, next.Username, next.Email) {
		return nil, ErrAlreadyExists
	}

	if !update.IsEmpty() {
		next.UpdatedAt = time.Now().UTC()
	}
	m.users[id] = &next

	result := next
	return &result, nil
}

// SoftDeleteUser marks a user inactive.
func (m *MockStore) SoftDeleteUser(ctx context.Context, id int64) (*User, error) {
	return m.UpdateUser(ctx, id, UserUpdate{IsActive: Ptr(false)})
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
