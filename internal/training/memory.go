package training

import (
	"context"
	"sync"
	"time"
)

type attendanceKey struct {
	sessionID     string
	participantID string
	period        Period
}

type requestKey struct {
	sessionID string
	period    Period
}

type presenceKey struct {
	sessionID     string
	participantID string
}

// MemoryStore is the default backend when no database is configured. It keeps
// the whole aggregate in maps guarded by one RWMutex, which is enough for the
// request/response model the service runs under.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]Session
	order      []string
	attendance map[attendanceKey]AttendanceRecord
	requests   map[requestKey]SignatureRequest
	presence   map[presenceKey]PresenceNotice
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]Session),
		attendance: make(map[attendanceKey]AttendanceRecord),
		requests:   make(map[requestKey]SignatureRequest),
		presence:   make(map[presenceKey]PresenceNotice),
	}
}

// CreateSession stores a new session.
func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// GetSession fetches a session by id.
func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, notFoundErr("session", id)
	}
	return cloneSession(s), nil
}

// ListSessions returns all sessions in creation order.
func (m *MemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneSession(m.sessions[id]))
	}
	return out, nil
}

// UpdateSession replaces a stored session.
func (m *MemoryStore) UpdateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return notFoundErr("session", s.ID)
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// PutAttendance upserts one attendance record.
func (m *MemoryStore) PutAttendance(_ context.Context, rec AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[attendanceKey{rec.SessionID, rec.ParticipantID, rec.Period}] = rec
	return nil
}

// ListAttendance returns all records for a session.
func (m *MemoryStore) ListAttendance(_ context.Context, sessionID string) ([]AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AttendanceRecord
	for k, rec := range m.attendance {
		if k.sessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PutSignatureRequest upserts the request for (session, period).
func (m *MemoryStore) PutSignatureRequest(_ context.Context, req SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[requestKey{req.SessionID, req.Period}] = cloneRequest(req)
	return nil
}

// GetSignatureRequest fetches the request for (session, period).
func (m *MemoryStore) GetSignatureRequest(_ context.Context, sessionID string, period Period) (SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[requestKey{sessionID, period}]
	if !ok {
		return SignatureRequest{}, notFoundErr("signature request", sessionID+"/"+string(period))
	}
	return cloneRequest(req), nil
}

// ListOpenSignatureRequests returns sent requests whose deadline passed.
func (m *MemoryStore) ListOpenSignatureRequests(_ context.Context, olderThan time.Time) ([]SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SignatureRequest
	for _, req := range m.requests {
		if req.Status == RequestSent && !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(olderThan) {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

// PutPresence upserts a presence notice.
func (m *MemoryStore) PutPresence(_ context.Context, n PresenceNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence[presenceKey{n.SessionID, n.ParticipantID}] = n
	return nil
}

// ListPresence returns all notices for a session.
func (m *MemoryStore) ListPresence(_ context.Context, sessionID string) ([]PresenceNotice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PresenceNotice
	for k, n := range m.presence {
		if k.sessionID == sessionID {
			out = append(out, n)
		}
	}
	return out, nil
}

func cloneSession(s Session) Session {
	s.Participants = append([]string(nil), s.Participants...)
	s.Periods = append([]Period(nil), s.Periods...)
	return s
}

func cloneRequest(r SignatureRequest) SignatureRequest {
	r.Signers = append([]string(nil), r.Signers...)
	return r
}
