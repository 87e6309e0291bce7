// Package memory is an in-process implementation of the store contracts.
// It backs the unit tests and STORE_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"workclock/internal/model"
	"workclock/internal/store"
)

// Operation names accepted by FailOn.
const (
	OpCreateUser       = "CreateUser"
	OpFindUserByEmail  = "FindUserByEmail"
	OpFindUserByID     = "FindUserByID"
	OpSetEnrolledPhoto = "SetEnrolledPhoto"
	OpAppendEvent      = "AppendEvent"
	OpLatestEvent      = "LatestEvent"
	OpListEvents       = "ListEvents"
	OpAppendAudit      = "AppendAudit"
)

// Store keeps users, events and audit entries in maps guarded by one mutex.
type Store struct {
	mu      sync.Mutex
	users   map[int64]model.User
	byEmail map[string]int64
	events  []model.ClockEvent
	audits  []model.AuditEntry
	failOn  map[string]error
	nextID  struct{ user, event, audit int64 }
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:   make(map[int64]model.User),
		byEmail: make(map[string]int64),
		failOn:  make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

func clonePhoto(p model.Photo) model.Photo {
	if p == nil {
		return nil
	}
	return append(model.Photo(nil), p...)
}

func cloneUser(u model.User) model.User {
	u.EnrolledPhoto = clonePhoto(u.EnrolledPhoto)
	return u
}

func cloneEvent(e model.ClockEvent) model.ClockEvent {
	e.Photo = clonePhoto(e.Photo)
	return e
}

func (s *Store) CreateUser(_ context.Context, name, email, digest string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpCreateUser]; err != nil {
		return 0, err
	}
	if _, ok := s.byEmail[email]; ok {
		return 0, store.ErrConstraintViolation
	}
	s.nextID.user++
	u := model.User{
		ID:               s.nextID.user,
		Name:             name,
		Email:            email,
		CredentialDigest: digest,
		CreatedAt:        time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u.ID, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpFindUserByEmail]; err != nil {
		return model.User{}, err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) FindUserByID(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpFindUserByID]; err != nil {
		return model.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) SetEnrolledPhoto(_ context.Context, email string, photo model.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpSetEnrolledPhoto]; err != nil {
		return err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	u := s.users[id]
	u.EnrolledPhoto = clonePhoto(photo)
	s.users[id] = u
	return nil
}

func (s *Store) AppendEvent(_ context.Context, evt model.ClockEvent, check func(model.AttendanceState) error) (model.ClockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpAppendEvent]; err != nil {
		return model.ClockEvent{}, err
	}
	if _, ok := s.users[evt.UserID]; !ok {
		return model.ClockEvent{}, store.ErrNotFound
	}
	if check != nil {
		if err := check(model.StateOf(s.latestLocked(evt.UserID))); err != nil {
			return model.ClockEvent{}, err
		}
	}
	s.nextID.event++
	evt.ID = s.nextID.event
	evt.CreatedAt = time.Now().UTC()
	evt = cloneEvent(evt)
	s.events = append(s.events, evt)
	return cloneEvent(evt), nil
}

func (s *Store) latestLocked(userID int64) *model.ClockEvent {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].UserID == userID {
			evt := cloneEvent(s.events[i])
			return &evt
		}
	}
	return nil
}

func (s *Store) LatestEvent(_ context.Context, userID int64) (*model.ClockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpLatestEvent]; err != nil {
		return nil, err
	}
	return s.latestLocked(userID), nil
}

func (s *Store) ListEvents(_ context.Context, userID int64, limit, offset int) ([]model.ClockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpListEvents]; err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var res []model.ClockEvent
	for _, evt := range s.events {
		if evt.UserID == userID {
			res = append(res, cloneEvent(evt))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[OpAppendAudit]; err != nil {
		return err
	}
	s.nextID.audit++
	entry.ID = s.nextID.audit
	s.audits = append(s.audits, entry)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Events returns every stored clock event in insertion order.
func (s *Store) Events() []model.ClockEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ClockEvent, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, cloneEvent(evt))
	}
	return out
}

// AuditEntries returns every stored audit entry in insertion order.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEntry(nil), s.audits...)
}
