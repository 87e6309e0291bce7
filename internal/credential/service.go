package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"workclock/internal/apperr"
	"workclock/internal/model"
	"workclock/internal/store"
)

// UserStore is the slice of the user table this package needs.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, digest string) (int64, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

// Identity is returned on successful authentication.
type Identity struct {
	UserID   int64
	UserName string
}

// Service registers and authenticates users.
type Service struct {
	users UserStore
}

// NewService creates a service backed by a user store.
func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// Register creates a user and returns its id.
func (s *Service) Register(ctx context.Context, name, email, digest string) (int64, error) {
	if name == "" || email == "" || digest == "" {
		return 0, apperr.ErrMissingFields
	}
	id, err := s.users.CreateUser(ctx, name, email, digest)
	if err != nil {
		if errors.Is(err, store.ErrConstraintViolation) {
			return 0, apperr.ErrDuplicateEmail
		}
		return 0, apperr.Store(fmt.Errorf("create user: %w", err))
	}
	return id, nil
}

// Authenticate returns the identity whose email and digest both match.
func (s *Service) Authenticate(ctx context.Context, email, digest string) (Identity, error) {
	u, err := Lookup(ctx, s.users, email, digest)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: u.ID, UserName: u.Name}, nil
}

// Lookup finds the user matching email and digest exactly. A missing user
// and a wrong digest are indistinguishable to the caller.
func Lookup(ctx context.Context, users UserStore, email, digest string) (model.User, error) {
	if email == "" || digest == "" {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	u, err := users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, apperr.ErrInvalidCredentials
		}
		return model.User{}, apperr.Store(fmt.Errorf("find user: %w", err))
	}
	if subtle.ConstantTimeCompare([]byte(u.CredentialDigest), []byte(digest)) != 1 {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	return u, nil
}
