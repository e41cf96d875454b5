package training

import (
	"context"
	"time"
)

// Store persists the session aggregate. The service owns all invariants;
// implementations only read and write state. GetSession returns an error
// matching ErrNotFound for unknown ids.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSession(ctx context.Context, s Session) error

	PutAttendance(ctx context.Context, rec AttendanceRecord) error
	ListAttendance(ctx context.Context, sessionID string) ([]AttendanceRecord, error)

	PutSignatureRequest(ctx context.Context, req SignatureRequest) error
	GetSignatureRequest(ctx context.Context, sessionID string, period Period) (SignatureRequest, error)
	ListOpenSignatureRequests(ctx context.Context, olderThan time.Time) ([]SignatureRequest, error)

	PutPresence(ctx context.Context, n PresenceNotice) error
	ListPresence(ctx context.Context, sessionID string) ([]PresenceNotice, error)
}
