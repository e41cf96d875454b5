package training

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists the session aggregate in Postgres. It satisfies the
// same Store contract as MemoryStore; invariants live in the Service, so the
// queries here are plain reads and upserts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSession inserts a session and its participant rows.
func (p *PostgresStore) CreateSession(ctx context.Context, s Session) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO training_sessions
			(id, title, description, instructor_id, location, capacity,
			 session_date, start_minutes, end_minutes, periods, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, s.ID, s.Title, s.Description, s.InstructorID, s.Location, s.Capacity,
		s.Date, int(s.StartTime), int(s.EndTime), joinPeriods(s.Periods), s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if err := replaceParticipants(ctx, tx, s.ID, s.Participants); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSession returns a session with its participants in enrolment order.
func (p *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, title, description, instructor_id, location, capacity,
		       session_date, start_minutes, end_minutes, periods, status, created_at, updated_at
		FROM training_sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, notFoundErr("session", id)
		}
		return Session{}, err
	}
	s.Participants, err = p.participants(ctx, id)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// ListSessions returns all sessions in creation order.
func (p *PostgresStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, instructor_id, location, capacity,
		       session_date, start_minutes, end_minutes, periods, status, created_at, updated_at
		FROM training_sessions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Participants, err = p.participants(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateSession rewrites a session row and its participant set.
func (p *PostgresStore) UpdateSession(ctx context.Context, s Session) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE training_sessions
		SET title=$2, description=$3, instructor_id=$4, location=$5, capacity=$6,
		    session_date=$7, start_minutes=$8, end_minutes=$9, periods=$10, status=$11, updated_at=$12
		WHERE id = $1
	`, s.ID, s.Title, s.Description, s.InstructorID, s.Location, s.Capacity,
		s.Date, int(s.StartTime), int(s.EndTime), joinPeriods(s.Periods), s.Status, s.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("session", s.ID)
	}
	if err := replaceParticipants(ctx, tx, s.ID, s.Participants); err != nil {
		return err
	}
	return tx.Commit()
}

// PutAttendance upserts one attendance record.
func (p *PostgresStore) PutAttendance(ctx context.Context, rec AttendanceRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, participant_id, period, status, late_minutes, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, participant_id, period) DO UPDATE SET
			status = EXCLUDED.status,
			late_minutes = EXCLUDED.late_minutes,
			recorded_at = EXCLUDED.recorded_at
	`, rec.SessionID, rec.ParticipantID, rec.Period, rec.Status, rec.LateMinutes, rec.RecordedAt)
	return err
}

// ListAttendance returns all records for a session.
func (p *PostgresStore) ListAttendance(ctx context.Context, sessionID string) ([]AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, participant_id, period, status, late_minutes, recorded_at
		FROM attendance_records WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		if err := rows.Scan(&rec.SessionID, &rec.ParticipantID, &rec.Period, &rec.Status, &rec.LateMinutes, &rec.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutSignatureRequest upserts the request keyed by (session, period).
func (p *PostgresStore) PutSignatureRequest(ctx context.Context, req SignatureRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO signature_requests (id, session_id, period, status, sent_at, expires_at, signers)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id, period) DO UPDATE SET
			id = EXCLUDED.id,
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			expires_at = EXCLUDED.expires_at,
			signers = EXCLUDED.signers
	`, req.ID, req.SessionID, req.Period, req.Status, req.SentAt, req.ExpiresAt, strings.Join(req.Signers, ","))
	return err
}

// GetSignatureRequest fetches the request for (session, period).
func (p *PostgresStore) GetSignatureRequest(ctx context.Context, sessionID string, period Period) (SignatureRequest, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, session_id, period, status, sent_at, expires_at, signers
		FROM signature_requests WHERE session_id = $1 AND period = $2
	`, sessionID, period)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SignatureRequest{}, notFoundErr("signature request", sessionID+"/"+string(period))
		}
		return SignatureRequest{}, err
	}
	return req, nil
}

// ListOpenSignatureRequests returns sent requests whose deadline passed.
func (p *PostgresStore) ListOpenSignatureRequests(ctx context.Context, olderThan time.Time) ([]SignatureRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, period, status, sent_at, expires_at, signers
		FROM signature_requests
		WHERE status = $1 AND expires_at < $2
	`, RequestSent, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignatureRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// PutPresence upserts a presence notice.
func (p *PostgresStore) PutPresence(ctx context.Context, n PresenceNotice) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO presence_notices (session_id, participant_id, decision, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id, participant_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			updated_at = EXCLUDED.updated_at
	`, n.SessionID, n.ParticipantID, n.Decision, n.UpdatedAt)
	return err
}

// ListPresence returns all notices for a session.
func (p *PostgresStore) ListPresence(ctx context.Context, sessionID string) ([]PresenceNotice, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, participant_id, decision, updated_at
		FROM presence_notices WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PresenceNotice
	for rows.Next() {
		var n PresenceNotice
		if err := rows.Scan(&n.SessionID, &n.ParticipantID, &n.Decision, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PostgresStore) participants(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT participant_id FROM session_participants
		WHERE session_id = $1 ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func replaceParticipants(ctx context.Context, tx *sql.Tx, sessionID string, participants []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_participants WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	for i, pid := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_participants (session_id, participant_id, position)
			VALUES ($1,$2,$3)
		`, sessionID, pid, i); err != nil {
			return fmt.Errorf("insert participant %s: %w", pid, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var start, end int
	var periods string
	if err := row.Scan(&s.ID, &s.Title, &s.Description, &s.InstructorID, &s.Location, &s.Capacity,
		&s.Date, &start, &end, &periods, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	s.StartTime = TimeOfDay(start)
	s.EndTime = TimeOfDay(end)
	s.Periods = splitPeriods(periods)
	return s, nil
}

func scanRequest(row rowScanner) (SignatureRequest, error) {
	var req SignatureRequest
	var signers string
	if err := row.Scan(&req.ID, &req.SessionID, &req.Period, &req.Status, &req.SentAt, &req.ExpiresAt, &signers); err != nil {
		return SignatureRequest{}, err
	}
	if signers != "" {
		req.Signers = strings.Split(signers, ",")
	}
	return req, nil
}

func joinPeriods(periods []Period) string {
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func splitPeriods(s string) []Period {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]Period, len(parts))
	for i, p := range parts {
		out[i] = Period(p)
	}
	return out
}
