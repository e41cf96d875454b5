package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionDraft is the caller-supplied input for creating a session. Either
// Date is set, or RecurringWeekday with a RangeFrom/RangeTo window is; the
// draft is rejected when neither is present.
type SessionDraft struct {
	Title            string
	Description      string
	InstructorID     string
	Location         string
	Capacity         int
	Date             time.Time
	RecurringWeekday *time.Weekday
	RangeFrom        time.Time
	RangeTo          time.Time
	StartTime        TimeOfDay
	EndTime          TimeOfDay
	Periods          []Period
	Participants     []string
}

// PeriodStats counts attendance outcomes for one period.
type PeriodStats struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// SessionStats aggregates attendance counts per period for display.
type SessionStats struct {
	SessionID string                 `json:"session_id"`
	Periods   map[Period]PeriodStats `json:"periods"`
}

// Service owns the session lifecycle, the attendance ledger, the signature
// tracker and the presence notices. Mutations on the same session are
// serialized through a per-id lock so a complete() cannot race a record()
// past the freeze check.
type Service struct {
	store        Store
	signatureTTL time.Duration
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a service over a store. signatureTTL bounds how long a
// signature request stays collectable before the expiry sweep closes it.
func NewService(store Store, signatureTTL time.Duration) *Service {
	if signatureTTL <= 0 {
		signatureTTL = 48 * time.Hour
	}
	return &Service{
		store:        store,
		signatureTTL: signatureTTL,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create validates a draft and stores a new session in scheduled state.
func (s *Service) Create(ctx context.Context, draft SessionDraft) (Session, error) {
	var fields []string
	if draft.Title == "" {
		fields = append(fields, "title")
	}
	if draft.InstructorID == "" {
		fields = append(fields, "instructor_id")
	}
	if draft.Capacity <= 0 {
		fields = append(fields, "capacity")
	}
	date := draft.Date
	if date.IsZero() {
		if draft.RecurringWeekday == nil || draft.RangeFrom.IsZero() || draft.RangeTo.IsZero() {
			fields = append(fields, "date")
		} else {
			first, ok := firstWeekday(*draft.RecurringWeekday, draft.RangeFrom, draft.RangeTo)
			if !ok {
				fields = append(fields, "recurring_weekday")
			}
			date = first
		}
	}
	if draft.EndTime <= draft.StartTime {
		fields = append(fields, "end_time")
	}
	participants := dedupe(draft.Participants)
	if len(participants) > draft.Capacity && draft.Capacity > 0 {
		fields = append(fields, "participants")
	}
	if len(fields) > 0 {
		return Session{}, validationErr("missing or invalid fields", fields...)
	}

	periods := draft.Periods
	if len(periods) == 0 {
		periods = []Period{PeriodMorning, PeriodAfternoon}
	}

	now := s.now().UTC()
	session := Session{
		ID:           uuid.NewString(),
		Title:        draft.Title,
		Description:  draft.Description,
		InstructorID: draft.InstructorID,
		Location:     draft.Location,
		Capacity:     draft.Capacity,
		Date:         date,
		StartTime:    draft.StartTime,
		EndTime:      draft.EndTime,
		Periods:      periods,
		Status:       StatusScheduled,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get returns a session if it is visible to the identity. Invisible sessions
// read as not found so their existence does not leak across roles.
func (s *Service) Get(ctx context.Context, identity Identity, id string) (Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !Visible(session, identity) {
		return Session{}, notFoundErr("session", id)
	}
	return session, nil
}

// List returns the sessions visible to the identity, in creation order.
func (s *Service) List(ctx context.Context, identity Identity) ([]Session, error) {
	all, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return VisibleSessions(all, identity), nil
}

// Start moves a scheduled session to in-progress. Starting an already
// in-progress session is a no-op success.
func (s *Service) Start(ctx context.Context, id string) (Session, error) {
	return s.transition(ctx, id, StatusInProgress, map[SessionStatus]bool{
		StatusScheduled: true,
	})
}

// Complete moves a session to completed, freezing its attendance records and
// signature requests. A scheduled session may be completed directly for
// retroactive entry.
func (s *Service) Complete(ctx context.Context, id string) (Session, error) {
	return s.transition(ctx, id, StatusCompleted, map[SessionStatus]bool{
		StatusScheduled:  true,
		StatusInProgress: true,
	})
}

// Cancel moves a non-terminal session to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (Session, error) {
	return s.transition(ctx, id, StatusCancelled, map[SessionStatus]bool{
		StatusScheduled:  true,
		StatusInProgress: true,
	})
}

func (s *Service) transition(ctx context.Context, id string, to SessionStatus, allowedFrom map[SessionStatus]bool) (Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.Status == to {
		// Idempotent: repeating a transition to the same target succeeds.
		return session, nil
	}
	if !allowedFrom[session.Status] {
		return Session{}, transitionErr(id, session.Status, to)
	}
	session.Status = to
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("update session %s: %w", id, err)
	}
	return session, nil
}

// Enroll adds a participant, respecting capacity. Enrolling an already
// enrolled participant is a no-op success.
func (s *Service) Enroll(ctx context.Context, sessionID, participantID string) (Session, error) {
	if participantID == "" {
		return Session{}, validationErr("participant id required", "participant_id")
	}
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Status.Terminal() {
		return Session{}, frozenErr(sessionID, session.Status)
	}
	if session.HasParticipant(participantID) {
		return session, nil
	}
	if len(session.Participants) >= session.Capacity {
		return Session{}, validationErr(
			fmt.Sprintf("session %s is full (%d/%d)", sessionID, len(session.Participants), session.Capacity),
			"participants")
	}
	session.Participants = append(session.Participants, participantID)
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return session, nil
}

// Withdraw removes a participant from a non-terminal session.
func (s *Service) Withdraw(ctx context.Context, sessionID, participantID string) (Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Status.Terminal() {
		return Session{}, frozenErr(sessionID, session.Status)
	}
	if !session.HasParticipant(participantID) {
		return Session{}, notFoundErr("participant", participantID)
	}
	kept := session.Participants[:0]
	for _, p := range session.Participants {
		if p != participantID {
			kept = append(kept, p)
		}
	}
	session.Participants = kept
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return session, nil
}

// RecordAttendance upserts the attendance fact for (session, participant,
// period). Last write wins; no history is retained. lateMinutes must be
// present and non-negative when status is late, and is ignored otherwise.
func (s *Service) RecordAttendance(ctx context.Context, sessionID, participantID string, period Period, status AttendanceStatus, lateMinutes *int) (AttendanceRecord, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return AttendanceRecord{}, err
	}
	if session.Status.Terminal() {
		return AttendanceRecord{}, frozenErr(sessionID, session.Status)
	}
	if !session.SpansPeriod(period) {
		return AttendanceRecord{}, validationErr(
			fmt.Sprintf("session %s does not span %s", sessionID, period), "period")
	}
	if !session.HasParticipant(participantID) {
		return AttendanceRecord{}, notFoundErr("participant", participantID)
	}

	rec := AttendanceRecord{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Period:        period,
		Status:        status,
		RecordedAt:    s.now().UTC(),
	}
	if status == AttendanceLate {
		if lateMinutes == nil || *lateMinutes < 0 {
			return AttendanceRecord{}, validationErr("late requires non-negative minutes", "late_minutes")
		}
		rec.LateMinutes = *lateMinutes
	}
	if err := s.store.PutAttendance(ctx, rec); err != nil {
		return AttendanceRecord{}, fmt.Errorf("record attendance: %w", err)
	}
	return rec, nil
}

// Stats aggregates per-period attendance counts for a session.
func (s *Service) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return SessionStats{}, err
	}
	records, err := s.store.ListAttendance(ctx, sessionID)
	if err != nil {
		return SessionStats{}, err
	}
	stats := SessionStats{SessionID: sessionID, Periods: make(map[Period]PeriodStats)}
	for _, rec := range records {
		ps := stats.Periods[rec.Period]
		switch rec.Status {
		case AttendancePresent:
			ps.Present++
		case AttendanceLate:
			ps.Late++
		case AttendanceAbsent:
			ps.Absent++
		}
		stats.Periods[rec.Period] = ps
	}
	return stats, nil
}

// RequestSignature creates the signature request for (session, period) and
// returns the domain event the notification collaborator consumes. A pending
// unexpired request for the same period is rejected as a duplicate; an
// expired one is replaced.
func (s *Service) RequestSignature(ctx context.Context, sessionID string, period Period) (SignatureRequest, SignatureRequestedEvent, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SignatureRequest{}, SignatureRequestedEvent{}, err
	}
	if session.Status.Terminal() {
		return SignatureRequest{}, SignatureRequestedEvent{}, frozenErr(sessionID, session.Status)
	}
	if !session.SpansPeriod(period) {
		return SignatureRequest{}, SignatureRequestedEvent{}, validationErr(
			fmt.Sprintf("session %s does not span %s", sessionID, period), "period")
	}

	now := s.now().UTC()
	existing, err := s.store.GetSignatureRequest(ctx, sessionID, period)
	switch {
	case err == nil:
		expired := existing.Status == RequestExpired ||
			(existing.Status == RequestSent && !existing.ExpiresAt.IsZero() && existing.ExpiresAt.Before(now))
		if !expired {
			return SignatureRequest{}, SignatureRequestedEvent{}, duplicateErr(sessionID, period)
		}
	case isNotFound(err):
		// first request for this period
	default:
		return SignatureRequest{}, SignatureRequestedEvent{}, err
	}

	req := SignatureRequest{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Period:    period,
		Status:    RequestSent,
		SentAt:    now,
		ExpiresAt: now.Add(s.signatureTTL),
	}
	if err := s.store.PutSignatureRequest(ctx, req); err != nil {
		return SignatureRequest{}, SignatureRequestedEvent{}, fmt.Errorf("store signature request: %w", err)
	}

	evt := SignatureRequestedEvent{
		RequestID:    req.ID,
		SessionID:    sessionID,
		SessionTitle: session.Title,
		Period:       period,
		SentAt:       now,
		Participants: append([]string(nil), session.Participants...),
	}
	return req, evt, nil
}

// RecordSignature marks one participant as having signed. The request flips
// to signed once every currently enrolled participant has signed. Signing
// twice is a no-op success; signing a completed or cancelled session is
// rejected like any other mutation.
func (s *Service) RecordSignature(ctx context.Context, sessionID string, period Period, participantID string) (SignatureRequest, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SignatureRequest{}, err
	}
	if session.Status.Terminal() {
		return SignatureRequest{}, frozenErr(sessionID, session.Status)
	}
	if !session.HasParticipant(participantID) {
		return SignatureRequest{}, notFoundErr("participant", participantID)
	}

	req, err := s.store.GetSignatureRequest(ctx, sessionID, period)
	if err != nil {
		return SignatureRequest{}, err
	}
	now := s.now().UTC()
	if req.Status == RequestSent && !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(now) {
		req.Status = RequestExpired
		if err := s.store.PutSignatureRequest(ctx, req); err != nil {
			return SignatureRequest{}, fmt.Errorf("expire signature request: %w", err)
		}
	}
	if req.Status != RequestSent {
		return SignatureRequest{}, validationErr(
			fmt.Sprintf("signature request for %s/%s is %s", sessionID, period, req.Status), "status")
	}
	if req.HasSigner(participantID) {
		return req, nil
	}
	req.Signers = append(req.Signers, participantID)
	if signedByAll(session, req) {
		req.Status = RequestSigned
	}
	if err := s.store.PutSignatureRequest(ctx, req); err != nil {
		return SignatureRequest{}, fmt.Errorf("store signature request: %w", err)
	}
	return req, nil
}

// IsRequested reports whether a collectable request exists for the period.
func (s *Service) IsRequested(ctx context.Context, sessionID string, period Period) (bool, error) {
	req, err := s.store.GetSignatureRequest(ctx, sessionID, period)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if req.Status != RequestSent {
		return false, nil
	}
	if !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(s.now().UTC()) {
		return false, nil
	}
	return true, nil
}

// RecordPresence upserts a participant's declared intent for a session.
func (s *Service) RecordPresence(ctx context.Context, sessionID, participantID string, decision PresenceDecision) (PresenceNotice, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return PresenceNotice{}, err
	}
	if session.Status.Terminal() {
		return PresenceNotice{}, frozenErr(sessionID, session.Status)
	}
	if !session.HasParticipant(participantID) {
		return PresenceNotice{}, notFoundErr("participant", participantID)
	}
	notice := PresenceNotice{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Decision:      decision,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.store.PutPresence(ctx, notice); err != nil {
		return PresenceNotice{}, fmt.Errorf("store presence notice: %w", err)
	}
	return notice, nil
}

// ExpireStale flips sent requests whose deadline has passed to expired and
// returns how many were closed. Callers run it on whatever sweep interval
// suits them; there is no timer inside the service.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stale, err := s.store.ListOpenSignatureRequests(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, candidate := range stale {
		unlock := s.lock(candidate.SessionID)
		// The listing ran outside the session lock, so the request may have
		// been signed or reissued since; only expire what is still the same
		// sent request with a past deadline.
		req, err := s.store.GetSignatureRequest(ctx, candidate.SessionID, candidate.Period)
		if err != nil {
			unlock()
			if isNotFound(err) {
				continue
			}
			return expired, err
		}
		if req.ID != candidate.ID || req.Status != RequestSent ||
			req.ExpiresAt.IsZero() || !req.ExpiresAt.Before(now) {
			unlock()
			continue
		}
		req.Status = RequestExpired
		err = s.store.PutSignatureRequest(ctx, req)
		unlock()
		if err != nil {
			return expired, fmt.Errorf("expire request %s: %w", req.ID, err)
		}
		expired++
	}
	return expired, nil
}

func signedByAll(session Session, req SignatureRequest) bool {
	for _, p := range session.Participants {
		if !req.HasSigner(p) {
			return false
		}
	}
	return len(session.Participants) > 0
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// firstWeekday returns the first date with the given weekday inside
// [from, to], truncated to UTC midnight.
func firstWeekday(day time.Weekday, from, to time.Time) (time.Time, bool) {
	d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	for !d.After(end) {
		if d.Weekday() == day {
			return d, true
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}
