package enrollment

import (
	"context"
	"errors"
	"fmt"

	"workclock/internal/apperr"
	"workclock/internal/credential"
	"workclock/internal/model"
	"workclock/internal/store"
)

// UserStore reads users and writes the enrolled photo column.
type UserStore interface {
	credential.UserStore
	SetEnrolledPhoto(ctx context.Context, email string, photo model.Photo) error
}

// Status reports whether a user exists and what photo is enrolled.
type Status struct {
	Exists        bool
	EnrolledPhoto model.Photo
}

// Service manages the reference photo used to gate clock events.
type Service struct {
	users UserStore
}

// NewService creates a service backed by a user store.
func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// CheckUser looks the user up with the same predicate as login. Unknown
// credentials return Exists=false with a nil error; store failures return
// Exists=false together with the error so the caller can audit it.
func (s *Service) CheckUser(ctx context.Context, email, digest string) (Status, error) {
	u, err := credential.Lookup(ctx, s.users, email, digest)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return Status{Exists: true, EnrolledPhoto: u.EnrolledPhoto}, nil
}

// AddPhoto sets the enrolled photo of the user with this email.
func (s *Service) AddPhoto(ctx context.Context, email string, photo model.Photo) error {
	if email == "" || photo.IsZero() {
		return apperr.ErrMissingFields
	}
	if err := s.users.SetEnrolledPhoto(ctx, email, photo); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrUserNotFound
		}
		return apperr.Store(fmt.Errorf("set enrolled photo: %w", err))
	}
	return nil
}
