package training

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Period subdivides a session day. Attendance and signature requests are
// scoped to a period, never to the whole day.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// ParsePeriod validates a period value coming from an external caller.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodMorning:
		return PeriodMorning, nil
	case PeriodAfternoon:
		return PeriodAfternoon, nil
	}
	return "", validationErr(fmt.Sprintf("unknown period %q", s), "period")
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusScheduled  SessionStatus = "scheduled"
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from the status.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AttendanceStatus is the recorded presence of a participant for one period.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// ParseAttendanceStatus validates an attendance status from a caller.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch AttendanceStatus(strings.ToLower(strings.TrimSpace(s))) {
	case AttendancePresent:
		return AttendancePresent, nil
	case AttendanceLate:
		return AttendanceLate, nil
	case AttendanceAbsent:
		return AttendanceAbsent, nil
	}
	return "", validationErr(fmt.Sprintf("unknown attendance status %q", s), "status")
}

// RequestStatus is the lifecycle state of a SignatureRequest.
type RequestStatus string

const (
	RequestSent    RequestStatus = "sent"
	RequestSigned  RequestStatus = "signed"
	RequestExpired RequestStatus = "expired"
)

// PresenceDecision is a participant's declared intent ahead of a session.
// It replaces the ambiguous "absent flag set / unset / missing" encoding.
type PresenceDecision string

const (
	PresenceUndecided    PresenceDecision = "undecided"
	PresenceWillAttend   PresenceDecision = "will-attend"
	PresenceWillBeAbsent PresenceDecision = "will-be-absent"
)

// ParsePresenceDecision validates a presence decision from a caller.
func ParsePresenceDecision(s string) (PresenceDecision, error) {
	switch PresenceDecision(strings.ToLower(strings.TrimSpace(s))) {
	case PresenceUndecided:
		return PresenceUndecided, nil
	case PresenceWillAttend:
		return PresenceWillAttend, nil
	case PresenceWillBeAbsent:
		return PresenceWillBeAbsent, nil
	}
	return "", validationErr(fmt.Sprintf("unknown presence decision %q", s), "decision")
}

// Role classifies the acting identity for visibility decisions.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleManager       Role = "manager"
	RoleInstructor    Role = "instructor"
	RoleParticipant   Role = "participant"
)

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdministrator:
		return RoleAdministrator, nil
	case RoleManager:
		return RoleManager, nil
	case RoleInstructor:
		return RoleInstructor, nil
	case RoleParticipant:
		return RoleParticipant, nil
	}
	return "", validationErr(fmt.Sprintf("unknown role %q", s), "role")
}

// Identity is the acting user as resolved by the auth layer.
type Identity struct {
	ID   string
	Role Role
}

// TimeOfDay is minutes since midnight. Sessions carry wall-clock start and
// end times independent of the session date.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, validationErr(fmt.Sprintf("invalid time %q", s), "time")
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, validationErr(fmt.Sprintf("time %q out of range", s), "time")
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON renders the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// HoursUntil returns the fractional hours from t to end.
func (t TimeOfDay) HoursUntil(end TimeOfDay) float64 {
	return float64(end-t) / 60.0
}

// Session is a scheduled training event. The Session plus its attendance
// records and signature requests form one consistency unit.
type Session struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	InstructorID string        `json:"instructor_id"`
	Location     string        `json:"location,omitempty"`
	Capacity     int           `json:"capacity"`
	Date         time.Time     `json:"date"`
	StartTime    TimeOfDay     `json:"start_time"`
	EndTime      TimeOfDay     `json:"end_time"`
	Periods      []Period      `json:"periods"`
	Status       SessionStatus `json:"status"`
	Participants []string      `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SpansPeriod reports whether the session covers the given period.
func (s Session) SpansPeriod(p Period) bool {
	for _, sp := range s.Periods {
		if sp == p {
			return true
		}
	}
	return false
}

// HasParticipant reports whether the participant is enrolled.
func (s Session) HasParticipant(id string) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Hours returns the session duration in fractional hours.
func (s Session) Hours() float64 {
	return s.StartTime.HoursUntil(s.EndTime)
}

// AttendanceRecord is one attendance fact per (session, participant, period).
// Re-recording the same key overwrites; no history is kept.
type AttendanceRecord struct {
	SessionID     string           `json:"session_id"`
	ParticipantID string           `json:"participant_id"`
	Period        Period           `json:"period"`
	Status        AttendanceStatus `json:"status"`
	LateMinutes   int              `json:"late_minutes,omitempty"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// SignatureRequest tracks one ask-for-signature per (session, period).
// Signers holds the participants who have signed so far; the request flips
// to signed when Signers covers the session's enrolled participants.
type SignatureRequest struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Period    Period        `json:"period"`
	Status    RequestStatus `json:"status"`
	SentAt    time.Time     `json:"sent_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Signers   []string      `json:"signers,omitempty"`
}

// HasSigner reports whether the participant already signed.
func (r SignatureRequest) HasSigner(id string) bool {
	for _, s := range r.Signers {
		if s == id {
			return true
		}
	}
	return false
}

// PresenceNotice records a participant's declared intent for a session.
type PresenceNotice struct {
	SessionID     string           `json:"session_id"`
	ParticipantID string           `json:"participant_id"`
	Decision      PresenceDecision `json:"decision"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SignatureRequestedEvent is published when a signature request is created,
// for the notification collaborator to consume exactly once.
type SignatureRequestedEvent struct {
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	SessionTitle string    `json:"session_title"`
	Period       Period    `json:"period"`
	SentAt       time.Time `json:"sent_at"`
	Participants []string  `json:"participants"`
}

// EventSignatureRequested is the queue message type for the event above.
const EventSignatureRequested = "signature.requested"
