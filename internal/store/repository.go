package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"workclock/internal/model"
)

// Repository persists users, clock events and audit entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateUser inserts a user and returns the assigned id.
func (r *Repository) CreateUser(ctx context.Context, name, email, digest string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, credential_digest)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, email, digest).Scan(&id)
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

// FindUserByEmail returns the user with exactly this email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, credential_digest, enrolled_photo, created_at
		FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

// FindUserByID returns a single user by id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, credential_digest, enrolled_photo, created_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u     model.User
		photo sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CredentialDigest, &photo, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	if photo.Valid {
		u.EnrolledPhoto = model.Photo(photo.String)
	}
	return u, nil
}

// SetEnrolledPhoto replaces the reference photo of the user with this email.
func (r *Repository) SetEnrolledPhoto(ctx context.Context, email string, photo model.Photo) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET enrolled_photo = $2 WHERE email = $1`, email, photo.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent inserts a clock event. The user row is locked for the length
// of the transaction, so check sees the latest state and concurrent appends
// for the same user serialize. A nil check appends unconditionally.
func (r *Repository) AppendEvent(ctx context.Context, evt model.ClockEvent, check func(model.AttendanceState) error) (model.ClockEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ClockEvent{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, evt.UserID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClockEvent{}, ErrNotFound
		}
		return model.ClockEvent{}, err
	}

	if check != nil {
		latest, err := latestEvent(ctx, tx, evt.UserID)
		if err != nil {
			return model.ClockEvent{}, err
		}
		if err := check(model.StateOf(latest)); err != nil {
			return model.ClockEvent{}, err
		}
	}

	var photo any
	if !evt.Photo.IsZero() {
		photo = evt.Photo.String()
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO clock_events (user_id, type, occurred_at, latitude, longitude, photo)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, evt.UserID, string(evt.Type), evt.OccurredAt, evt.Latitude, evt.Longitude, photo)
	if err := row.Scan(&evt.ID, &evt.CreatedAt); err != nil {
		return model.ClockEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ClockEvent{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

// LatestEvent returns the most recently inserted event for a user, or nil.
func (r *Repository) LatestEvent(ctx context.Context, userID int64) (*model.ClockEvent, error) {
	return latestEvent(ctx, r.db, userID)
}

func latestEvent(ctx context.Context, q rowQuerier, userID int64) (*model.ClockEvent, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, type, occurred_at, latitude, longitude, photo, created_at
		FROM clock_events
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, userID)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (model.ClockEvent, error) {
	var (
		evt   model.ClockEvent
		typ   string
		photo sql.NullString
	)
	if err := s.Scan(&evt.ID, &evt.UserID, &typ, &evt.OccurredAt, &evt.Latitude, &evt.Longitude, &photo, &evt.CreatedAt); err != nil {
		return model.ClockEvent{}, err
	}
	evt.Type = model.EventType(typ)
	if photo.Valid {
		evt.Photo = model.Photo(photo.String)
	}
	return evt, nil
}

// ListEvents returns a user's events, newest first.
func (r *Repository) ListEvents(ctx context.Context, userID int64, limit, offset int) ([]model.ClockEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, occurred_at, latitude, longitude, photo, created_at
		FROM clock_events
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.ClockEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

// AppendAudit writes one audit entry.
func (r *Repository) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (timestamp, endpoint, method, request_snapshot, error_message, trace, user_id, status_code, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.Timestamp, entry.Endpoint, entry.Method, entry.RequestSnapshot, entry.ErrorMessage,
		entry.Trace, entry.UserID, entry.StatusCode, entry.RequestID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
