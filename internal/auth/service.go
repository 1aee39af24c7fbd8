// ABOUTME: Authentication service orchestrating registration, login, and account changes
// ABOUTME: Converts store and token failures into kind-tagged errors for the API layer

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/algosensei/sensei-gateway/internal/apperr"
	"github.com/algosensei/sensei-gateway/internal/store"
)

// Caller-visible messages.
const (
	msgUserExists      = "User with given username or email already exists."
	msgCreateFailed    = "Failed to create user."
	msgAccountMismatch = "Email and username do not match the same account"
	msgBadCredentials  = "Incorrect email/username or password"
	msgOldPassword     = "Old password is incorrect"
	msgUpdateFailed    = "Failed to update password."
	msgDeleteFailed    = "Failed to delete user."
	msgUserNotFound    = "User not found"
	msgInvalidToken    = "Could not validate credentials"
	msgLookupFailed    = "Failed to look up user."
)

// Identity is the public view of a user. It never carries the password hash.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

func identityOf(u *store.User) *Identity {
	return &Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		IsActive: u.IsActive,
	}
}

// TokenPair is the login result.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RegisterInput holds a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Validate checks field shapes before any lookup happens.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.RuneLength(1, 30)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// LoginInput holds a login request. At least one of Username and Email is set.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// Validate checks field shapes.
func (in LoginInput) Validate() error {
	if in.Username == "" && in.Email == "" {
		return errors.New("username or email is required")
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// ChangePasswordInput holds a password change request.
type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// Validate checks field shapes.
func (in ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OldPassword, validation.Required),
		validation.Field(&in.NewPassword, validation.Required),
	)
}

// Service implements account operations on top of a UserStore.
type Service struct {
	users  store.UserStore
	hasher PasswordHasher
	tokens *TokenService
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires the authentication service.
func NewService(users store.UserStore, hasher PasswordHasher, tokens *TokenService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With("component", "auth"),
	}
}

// Register creates an account. The existence pre-check is advisory; the
// store's uniqueness constraint decides concurrent races.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	const op = "auth.Register"

	if err := in.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, op, err.Error(), err)
	}

	exists, err := s.anyActive(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperr.Internal(op, msgCreateFailed, err)
	}
	if exists {
		return nil, apperr.AlreadyExists(op, msgUserExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(op, msgCreateFailed, err)
	}

	u, err := s.users.CreateUser(ctx, in.Username, in.Email, hash)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperr.AlreadyExists(op, msgUserExists)
		}
		return nil, apperr.Internal(op, msgCreateFailed, err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return identityOf(u), nil
}

func (s *Service) anyActive(ctx context.Context, username, email string) (bool, error) {
	if u, err := s.lookup(ctx, s.users.GetUserByUsername, username); err != nil || u != nil {
		return u != nil, err
	}
	u, err := s.lookup(ctx, s.users.GetUserByEmail, email)
	return u != nil, err
}

// lookup calls get when key is set and folds ErrNotFound into a nil user.
func (s *Service) lookup(ctx context.Context, get func(context.Context, string) (*store.User, error), key string) (*store.User, error) {
	if key == "" {
		return nil, nil
	}
	u, err := get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// Login verifies credentials and issues a token. Unknown accounts and wrong
// passwords fail with the same message.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	const op = "auth.Login"

	if err := in.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, op, err.Error(), err)
	}

	byEmail, err := s.lookup(ctx, s.users.GetUserByEmail, in.Email)
	if err != nil {
		return nil, apperr.Internal(op, msgLookupFailed, err)
	}
	byName, err := s.lookup(ctx, s.users.GetUserByUsername, in.Username)
	if err != nil {
		return nil, apperr.Internal(op, msgLookupFailed, err)
	}

	if byEmail != nil && byName != nil && byEmail.ID != byName.ID {
		return nil, apperr.Unauthorized(op, msgAccountMismatch)
	}

	user := byEmail
	if user == nil {
		user = byName
	}

	if user == nil {
		// Spend the same hashing time as a real check.
		s.hasher.Verify(in.Password, s.placeholderHash())
		return nil, apperr.Unauthorized(op, msgBadCredentials)
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, apperr.Unauthorized(op, msgBadCredentials)
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, in.Password)
	}

	token, err := s.tokens.IssueFor(user.ID)
	if err != nil {
		return nil, apperr.Internal(op, "Failed to issue token.", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return &TokenPair{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

// placeholderHash is verified against when no account matched.
func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("placeholder-password")
		if err != nil {
			s.logger.Warn("failed to build placeholder hash", "error", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// upgradeHash rewrites a legacy or weaker hash after a successful login.
func (s *Service) upgradeHash(ctx context.Context, userID int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", userID, "error", err)
		return
	}
	if _, err := s.users.UpdateUser(ctx, userID, store.UserUpdate{PasswordHash: &hash}); err != nil {
		s.logger.Warn("storing rehashed password failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Info("upgraded password hash", "user_id", userID)
}

// GetUser returns the active account for id.
func (s *Service) GetUser(ctx context.Context, id int64) (*Identity, error) {
	const op = "auth.GetUser"

	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(op, msgUserNotFound)
		}
		return nil, apperr.Internal(op, msgLookupFailed, err)
	}
	return identityOf(u), nil
}

// ChangePassword replaces the password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, id int64, in ChangePasswordInput) (*Identity, error) {
	const op = "auth.ChangePassword"

	if err := in.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, op, err.Error(), err)
	}

	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(op, msgUserNotFound)
		}
		return nil, apperr.Internal(op, msgLookupFailed, err)
	}

	if !s.hasher.Verify(in.OldPassword, u.PasswordHash) {
		return nil, apperr.Unauthorized(op, msgOldPassword)
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, apperr.Internal(op, msgUpdateFailed, err)
	}

	updated, err := s.users.UpdateUser(ctx, id, store.UserUpdate{PasswordHash: &hash})
	if err != nil {
		return nil, apperr.Internal(op, msgUpdateFailed, err)
	}

	s.logger.Info("password changed", "user_id", id)
	return identityOf(updated), nil
}

// Delete soft-deletes the account and returns the now inactive identity.
func (s *Service) Delete(ctx context.Context, id int64) (*Identity, error) {
	const op = "auth.Delete"

	u, err := s.users.SoftDeleteUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(op, msgUserNotFound)
		}
		return nil, apperr.Internal(op, msgDeleteFailed, err)
	}

	s.logger.Info("user deleted", "user_id", id)
	return identityOf(u), nil
}

// ResolveToken validates token and confirms its subject is still an active
// account. Every failure is Unauthorized; the token error stays in the cause.
func (s *Service) ResolveToken(ctx context.Context, token string) (int64, error) {
	const op = "auth.ResolveToken"

	id, err := TokenSubjectResolver{Tokens: s.tokens}.ResolveToken(ctx, token)
	if err != nil {
		return 0, &apperr.Error{Kind: apperr.KindUnauthorized, Op: op, Message: msgInvalidToken, Cause: err}
	}

	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.Unauthorized(op, msgInvalidToken)
		}
		return 0, apperr.Internal(op, msgLookupFailed, err)
	}
	return id, nil
}

// Logout is a placeholder. Tokens are stateless and stay valid until they
// expire; revocation would need a server-side denylist.
func (s *Service) Logout(ctx context.Context, id int64) error {
	s.logger.Debug("logout requested", "user_id", id)
	return nil
}
