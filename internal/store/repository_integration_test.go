//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"workclock/internal/model"
)

var errAlreadyIn = errors.New("already in")

type RepositorySuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *DB
	repo      *Repository
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration tests in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("workclock"),
		tcpostgres.WithUsername("workclock"),
		tcpostgres.WithPassword("workclock"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = NewDB(ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, s.db.Client))
	s.Require().NoError(Migrate(ctx, s.db.Client), "migration is idempotent")
	s.repo = NewRepository(s.db.Client)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.db.Client.Exec(`TRUNCATE users, clock_events, audit_entries RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) TestDuplicateEmail() {
	ctx := context.Background()
	_, err := s.repo.CreateUser(ctx, "A", "a@x.com", "d1")
	s.Require().NoError(err)

	_, err = s.repo.CreateUser(ctx, "B", "a@x.com", "d2")
	s.Require().ErrorIs(err, ErrConstraintViolation)
}

func (s *RepositorySuite) TestUserRoundTrip() {
	ctx := context.Background()
	id, err := s.repo.CreateUser(ctx, "A", "a@x.com", "d1")
	s.Require().NoError(err)

	u, err := s.repo.FindUserByEmail(ctx, "a@x.com")
	s.Require().NoError(err)
	s.Equal(id, u.ID)
	s.True(u.EnrolledPhoto.IsZero())

	s.Require().NoError(s.repo.SetEnrolledPhoto(ctx, "a@x.com", model.Photo("P...")))
	u, err = s.repo.FindUserByID(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.Photo("P..."), u.EnrolledPhoto)

	s.ErrorIs(s.repo.SetEnrolledPhoto(ctx, "ghost@x.com", model.Photo("P")), ErrNotFound)
	_, err = s.repo.FindUserByID(ctx, 999)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestConcurrentGuardedAppend() {
	ctx := context.Background()
	id, err := s.repo.CreateUser(ctx, "A", "a@x.com", "d1")
	s.Require().NoError(err)

	guard := func(st model.AttendanceState) error {
		if st == model.StateIn {
			return errAlreadyIn
		}
		return nil
	}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.repo.AppendEvent(ctx, model.ClockEvent{UserID: id, Type: model.EventIn, OccurredAt: "t", Photo: model.Photo("p")}, guard)
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	events, err := s.repo.ListEvents(ctx, id, 0, 0)
	s.Require().NoError(err)
	s.Len(events, 1)

	latest, err := s.repo.LatestEvent(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.StateIn, model.StateOf(latest))
}

func (s *RepositorySuite) TestAppendAudit() {
	ctx := context.Background()
	status := 400
	err := s.repo.AppendAudit(ctx, model.AuditEntry{
		Endpoint:        "/api/login",
		Method:          "POST",
		RequestSnapshot: `{"email":"a@x.com"}`,
		ErrorMessage:    "Invalid email or password",
		StatusCode:      &status,
		RequestID:       "req-1",
	})
	s.Require().NoError(err)

	var n int
	s.Require().NoError(s.db.Client.QueryRow(`SELECT COUNT(*) FROM audit_entries WHERE request_snapshot->>'email' = 'a@x.com'`).Scan(&n))
	s.Equal(1, n)
}
