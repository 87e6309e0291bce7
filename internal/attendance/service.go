package attendance

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"workclock/internal/apperr"
	"workclock/internal/model"
	"workclock/internal/store"
)

// MinPhotoLength is the shortest photo payload accepted for a clock event.
// It only guards against empty or truncated uploads.
const MinPhotoLength = 100

// Repository persists attendance data.
type Repository interface {
	FindUserByID(ctx context.Context, id int64) (model.User, error)
	AppendEvent(ctx context.Context, evt model.ClockEvent, check func(model.AttendanceState) error) (model.ClockEvent, error)
	LatestEvent(ctx context.Context, userID int64) (*model.ClockEvent, error)
	ListEvents(ctx context.Context, userID int64, limit, offset int) ([]model.ClockEvent, error)
}

// ClockInRequest carries the fields of a clock-in.
type ClockInRequest struct {
	UserID    int64
	Timestamp string
	Latitude  *float64
	Longitude *float64
	Photo     model.Photo
}

// ClockOutRequest carries the fields of a clock-out.
type ClockOutRequest struct {
	UserID    int64
	Timestamp string
	Photo     model.Photo
}

// Service validates and records clock events.
type Service struct {
	repo               Repository
	matcher            PhotoMatcher
	enforceTransitions bool
}

// NewService creates a service backed by a repository. A nil matcher
// means exact byte comparison.
func NewService(repo Repository, matcher PhotoMatcher, enforceTransitions bool) *Service {
	if matcher == nil {
		matcher = ExactMatcher{}
	}
	return &Service{repo: repo, matcher: matcher, enforceTransitions: enforceTransitions}
}

// ClockIn records an IN event once the submitted photo matches the enrolled one.
func (s *Service) ClockIn(ctx context.Context, req ClockInRequest) (model.ClockEvent, error) {
	return s.record(ctx, model.ClockEvent{
		UserID:     req.UserID,
		Type:       model.EventIn,
		OccurredAt: req.Timestamp,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Photo:      req.Photo,
	})
}

// ClockOut records an OUT event once the submitted photo matches the enrolled one.
func (s *Service) ClockOut(ctx context.Context, req ClockOutRequest) (model.ClockEvent, error) {
	return s.record(ctx, model.ClockEvent{
		UserID:     req.UserID,
		Type:       model.EventOut,
		OccurredAt: req.Timestamp,
		Photo:      req.Photo,
	})
}

func (s *Service) record(ctx context.Context, evt model.ClockEvent) (model.ClockEvent, error) {
	if evt.UserID <= 0 || evt.OccurredAt == "" {
		return model.ClockEvent{}, apperr.ErrMissingFields
	}

	u, err := s.findUser(ctx, evt.UserID)
	if err != nil {
		return model.ClockEvent{}, err
	}

	if utf8.RuneCount(evt.Photo) < MinPhotoLength {
		return model.ClockEvent{}, apperr.ErrInvalidPhoto
	}

	// An empty reference never matches, whatever the policy.
	if u.EnrolledPhoto.IsZero() {
		return model.ClockEvent{}, apperr.ErrPhotoMismatch
	}
	ok, err := s.matcher.Match(ctx, evt.Photo, u.EnrolledPhoto)
	if err != nil {
		return model.ClockEvent{}, apperr.Unavailable(fmt.Errorf("match photo: %w", err))
	}
	if !ok {
		return model.ClockEvent{}, apperr.ErrPhotoMismatch
	}

	var check func(model.AttendanceState) error
	if s.enforceTransitions {
		check = transitionGuard(evt.Type)
	}
	saved, err := s.repo.AppendEvent(ctx, evt, check)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidTransition):
			return model.ClockEvent{}, err
		case errors.Is(err, store.ErrNotFound):
			return model.ClockEvent{}, apperr.ErrUserNotFound
		}
		return model.ClockEvent{}, apperr.Store(fmt.Errorf("append event: %w", err))
	}
	return saved, nil
}

// transitionGuard rejects a repeated IN or a repeated OUT. An OUT with no
// prior events is accepted.
func transitionGuard(next model.EventType) func(model.AttendanceState) error {
	return func(current model.AttendanceState) error {
		if (next == model.EventIn && current == model.StateIn) ||
			(next == model.EventOut && current == model.StateOut) {
			return apperr.ErrInvalidTransition
		}
		return nil
	}
}

// State returns the derived attendance state of a user.
func (s *Service) State(ctx context.Context, userID int64) (model.AttendanceState, error) {
	if _, err := s.findUser(ctx, userID); err != nil {
		return model.StateUnknown, err
	}
	latest, err := s.repo.LatestEvent(ctx, userID)
	if err != nil {
		return model.StateUnknown, apperr.Store(fmt.Errorf("latest event: %w", err))
	}
	return model.StateOf(latest), nil
}

// History returns a user's events, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]model.ClockEvent, error) {
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

func (s *Service) findUser(ctx context.Context, id int64) (model.User, error) {
	if id <= 0 {
		return model.User{}, apperr.ErrMissingFields
	}
	u, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, apperr.ErrUserNotFound
		}
		return model.User{}, apperr.Store(fmt.Errorf("find user: %w", err))
	}
	return u, nil
}
