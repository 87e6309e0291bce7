package model

import "time"

// Photo is an opaque encoded image payload. It is compared as raw bytes and
// never decoded by the service.
type Photo []byte

// IsZero reports whether no photo is present.
func (p Photo) IsZero() bool { return len(p) == 0 }

// String returns the payload as submitted.
func (p Photo) String() string { return string(p) }

// User is a registered worker identity.
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	CredentialDigest string    `json:"-"`
	EnrolledPhoto    Photo     `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// EventType is the direction of a clock event.
type EventType string

const (
	EventIn  EventType = "IN"
	EventOut EventType = "OUT"
)

// ClockEvent is one append-only attendance record.
type ClockEvent struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Type       EventType `json:"type"`
	OccurredAt string    `json:"occurredAt"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Photo      Photo     `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AttendanceState is derived from the latest clock event of a user.
type AttendanceState string

const (
	StateUnknown AttendanceState = "UNKNOWN"
	StateIn      AttendanceState = "IN"
	StateOut     AttendanceState = "OUT"
)

// StateOf returns the derived state for the latest event, which may be nil.
func StateOf(latest *ClockEvent) AttendanceState {
	if latest == nil {
		return StateUnknown
	}
	switch latest.Type {
	case EventIn:
		return StateIn
	case EventOut:
		return StateOut
	}
	return StateUnknown
}

// AuditEntry is a diagnostic record written once per failed operation.
type AuditEntry struct {
	ID              int64
	Timestamp       time.Time
	Endpoint        string
	Method          string
	RequestSnapshot string
	ErrorMessage    string
	Trace           *string
	UserID          *int64
	StatusCode      *int
	RequestID       string
}
