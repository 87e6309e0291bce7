package attendance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"workclock/internal/apperr"
	"workclock/internal/faceclient"
	"workclock/internal/model"
	"workclock/internal/store/memory"
)

var enrolled = model.Photo("data:image/jpeg;base64," + strings.Repeat("QUJD", 40))

func ptr(f float64) *float64 { return &f }

type AttendanceServiceSuite struct {
	suite.Suite
	store   *memory.Store
	service *Service
	userID  int64
	ctx     context.Context
}

func TestAttendanceServiceSuite(t *testing.T) {
	suite.Run(t, new(AttendanceServiceSuite))
}

func (s *AttendanceServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	id, err := s.store.CreateUser(s.ctx, "A", "a@x.com", "d1")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetEnrolledPhoto(s.ctx, "a@x.com", enrolled))
	s.userID = id
	s.service = NewService(s.store, nil, true)
}

func (s *AttendanceServiceSuite) clockIn(photo model.Photo) (model.ClockEvent, error) {
	return s.service.ClockIn(s.ctx, ClockInRequest{
		UserID:    s.userID,
		Timestamp: "2024-01-01T00:00:00Z",
		Latitude:  ptr(10.0),
		Longitude: ptr(20.0),
		Photo:     photo,
	})
}

func (s *AttendanceServiceSuite) TestClockInRecordsOneEvent() {
	evt, err := s.clockIn(enrolled)
	s.Require().NoError(err)

	events := s.store.Events()
	s.Require().Len(events, 1)
	s.Equal(evt.ID, events[0].ID)
	s.Equal(model.EventIn, events[0].Type)
	s.Equal("2024-01-01T00:00:00Z", events[0].OccurredAt)
	s.Equal(10.0, *events[0].Latitude)
	s.Equal(20.0, *events[0].Longitude)
	s.Equal(enrolled, events[0].Photo)
}

func (s *AttendanceServiceSuite) TestValidationOrder() {
	s.Run("missing user id", func() {
		_, err := s.service.ClockIn(s.ctx, ClockInRequest{Timestamp: "t", Photo: enrolled})
		s.Require().ErrorIs(err, apperr.ErrMissingFields)
	})

	s.Run("missing timestamp", func() {
		_, err := s.service.ClockOut(s.ctx, ClockOutRequest{UserID: s.userID, Photo: enrolled})
		s.Require().ErrorIs(err, apperr.ErrMissingFields)
	})

	s.Run("unknown user is checked before the photo", func() {
		_, err := s.service.ClockOut(s.ctx, ClockOutRequest{UserID: 4242, Timestamp: "t", Photo: model.Photo("short")})
		s.Require().ErrorIs(err, apperr.ErrUserNotFound)
	})

	s.Run("short photo", func() {
		_, err := s.clockIn(model.Photo("short"))
		s.Require().ErrorIs(err, apperr.ErrInvalidPhoto)
	})

	s.Run("absent photo", func() {
		_, err := s.clockIn(nil)
		s.Require().ErrorIs(err, apperr.ErrInvalidPhoto)
	})

	s.Empty(s.store.Events())
}

func (s *AttendanceServiceSuite) TestPhotoMismatch() {
	s.Run("one character differs", func() {
		tampered := append(model.Photo(nil), enrolled...)
		tampered[len(tampered)-1] = 'X'

		_, err := s.clockIn(tampered)
		s.Require().ErrorIs(err, apperr.ErrPhotoMismatch)
		s.Equal(401, apperr.From(err).Status)
	})

	s.Run("no enrolled photo never matches", func() {
		id, err := s.store.CreateUser(s.ctx, "B", "b@x.com", "d1")
		s.Require().NoError(err)

		_, err = s.service.ClockOut(s.ctx, ClockOutRequest{UserID: id, Timestamp: "t", Photo: enrolled})
		s.Require().ErrorIs(err, apperr.ErrPhotoMismatch)
	})

	s.Empty(s.store.Events())
}

func (s *AttendanceServiceSuite) TestClockOutForUnknownUserWritesNothing() {
	_, err := s.service.ClockOut(s.ctx, ClockOutRequest{UserID: 999, Timestamp: "t", Photo: enrolled})
	s.Require().ErrorIs(err, apperr.ErrUserNotFound)
	s.Equal(404, apperr.From(err).Status)
	s.Empty(s.store.Events())

	u, err := s.store.FindUserByID(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(enrolled, u.EnrolledPhoto)
}

func (s *AttendanceServiceSuite) TestTransitionGuard() {
	state, err := s.service.State(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(model.StateUnknown, state)

	_, err = s.clockIn(enrolled)
	s.Require().NoError(err)

	_, err = s.clockIn(enrolled)
	s.Require().ErrorIs(err, apperr.ErrInvalidTransition)

	_, err = s.service.ClockOut(s.ctx, ClockOutRequest{UserID: s.userID, Timestamp: "t2", Photo: enrolled})
	s.Require().NoError(err)

	_, err = s.service.ClockOut(s.ctx, ClockOutRequest{UserID: s.userID, Timestamp: "t3", Photo: enrolled})
	s.Require().ErrorIs(err, apperr.ErrInvalidTransition)

	state, err = s.service.State(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(model.StateOut, state)
	s.Len(s.store.Events(), 2)
}

func (s *AttendanceServiceSuite) TestClockOutFromUnknownIsAllowed() {
	_, err := s.service.ClockOut(s.ctx, ClockOutRequest{UserID: s.userID, Timestamp: "t", Photo: enrolled})
	s.Require().NoError(err)
}

func (s *AttendanceServiceSuite) TestPermissivePolicyAllowsRepeatedIn() {
	permissive := NewService(s.store, nil, false)
	for i := 0; i < 2; i++ {
		_, err := permissive.ClockIn(s.ctx, ClockInRequest{UserID: s.userID, Timestamp: "t", Photo: enrolled})
		s.Require().NoError(err)
	}
	s.Len(s.store.Events(), 2)
}

func (s *AttendanceServiceSuite) TestConcurrentClockIn() {
	const workers = 32

	race := func(svc *Service) int32 {
		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ClockIn(s.ctx, ClockInRequest{UserID: s.userID, Timestamp: "t", Photo: enrolled})
				if err == nil {
					ok.Add(1)
				} else {
					s.ErrorIs(err, apperr.ErrInvalidTransition)
				}
			}()
		}
		wg.Wait()
		return ok.Load()
	}

	s.Run("guarded: exactly one wins", func() {
		s.Equal(int32(1), race(s.service))
		s.Len(s.store.Events(), 1)
	})

	s.Run("permissive: every request is recorded", func() {
		before := len(s.store.Events())
		s.Equal(int32(workers), race(NewService(s.store, nil, false)))
		s.Len(s.store.Events(), before+workers)
	})
}

func (s *AttendanceServiceSuite) TestStoreFailures() {
	s.store.FailOn(memory.OpAppendEvent, errors.New("connection lost"))
	_, err := s.clockIn(enrolled)
	s.Require().ErrorIs(err, apperr.ErrStore)
	s.store.FailOn(memory.OpAppendEvent, nil)

	s.store.FailOn(memory.OpFindUserByID, errors.New("connection lost"))
	_, err = s.clockIn(enrolled)
	s.Require().ErrorIs(err, apperr.ErrStore)
}

func (s *AttendanceServiceSuite) TestHistory() {
	_, err := s.clockIn(enrolled)
	s.Require().NoError(err)
	_, err = s.service.ClockOut(s.ctx, ClockOutRequest{UserID: s.userID, Timestamp: "later", Photo: enrolled})
	s.Require().NoError(err)

	events, err := s.service.History(s.ctx, s.userID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(model.EventOut, events[0].Type)

	_, err = s.service.History(s.ctx, 777, 10, 0)
	s.Require().ErrorIs(err, apperr.ErrUserNotFound)
}

type fakeComparer struct {
	match bool
	err   error
	calls int
}

func (f *fakeComparer) Compare(_ context.Context, _, _ string) (*faceclient.CompareResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &faceclient.CompareResult{Match: f.match}, nil
}

func (s *AttendanceServiceSuite) TestFaceServiceMatcher() {
	different := model.Photo(strings.Repeat("Z", 150))

	s.Run("accepts a non-identical photo the service matches", func() {
		svc := NewService(s.store, NewFaceServiceMatcher(&fakeComparer{match: true}), false)
		_, err := svc.ClockIn(s.ctx, ClockInRequest{UserID: s.userID, Timestamp: "t", Photo: different})
		s.Require().NoError(err)
	})

	s.Run("rejects when the service says no", func() {
		svc := NewService(s.store, NewFaceServiceMatcher(&fakeComparer{match: false}), false)
		_, err := svc.ClockIn(s.ctx, ClockInRequest{UserID: s.userID, Timestamp: "t", Photo: different})
		s.Require().ErrorIs(err, apperr.ErrPhotoMismatch)
	})

	s.Run("service failure is never a pass", func() {
		svc := NewService(s.store, NewFaceServiceMatcher(&fakeComparer{err: errors.New("down")}), false)
		_, err := svc.ClockIn(s.ctx, ClockInRequest{UserID: s.userID, Timestamp: "t", Photo: different})
		s.Require().ErrorIs(err, apperr.ErrUnavailable)
	})

	s.Run("empty reference skips the service", func() {
		id, err := s.store.CreateUser(s.ctx, "C", "c@x.com", "d1")
		s.Require().NoError(err)
		fc := &fakeComparer{match: true}
		svc := NewService(s.store, NewFaceServiceMatcher(fc), false)

		_, err = svc.ClockIn(s.ctx, ClockInRequest{UserID: id, Timestamp: "t", Photo: different})
		s.Require().ErrorIs(err, apperr.ErrPhotoMismatch)
		s.Zero(fc.calls)
	})
}
