package callsession

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo persists call sessions.
//
// NOTE: This repository assumes the following table exists:
// - call_sessions with a UNIQUE index on session_id and a UNIQUE partial
//   index on token (WHERE token IS NOT NULL).
//
// The unique indexes are the sole concurrency-correctness mechanism for
// concurrent webhook retries: insert-or-update races resolve inside
// Postgres, not in application code.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const sessionColumns = `
id, tenant_id, session_id, call_id, token, domain, caller_id, destination,
from_number, to_number, direction, status, vapp_server, started_at,
call_start_time, call_answer_time, answer_time, webhook_created_at,
webhook_modified_at, duration_seconds, state, metadata, created_at, updated_at`

func (r *PostgresRepo) UpsertByToken(ctx context.Context, s CallSession) (CallSession, error) {
	if s.Token == "" {
		return CallSession{}, errors.New("callsession: token is required for upsert")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	// Unconditional overwrite: every webhook-carried field is rewritten on
	// each delivery, nils included. No recency guard.
	q := `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW(), NOW())
ON CONFLICT (token) WHERE token IS NOT NULL DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	session_id = EXCLUDED.session_id,
	call_id = EXCLUDED.call_id,
	domain = EXCLUDED.domain,
	caller_id = EXCLUDED.caller_id,
	destination = EXCLUDED.destination,
	direction = EXCLUDED.direction,
	status = EXCLUDED.status,
	vapp_server = EXCLUDED.vapp_server,
	call_start_time = EXCLUDED.call_start_time,
	call_answer_time = EXCLUDED.call_answer_time,
	answer_time = EXCLUDED.answer_time,
	webhook_created_at = EXCLUDED.webhook_created_at,
	webhook_modified_at = EXCLUDED.webhook_modified_at,
	duration_seconds = EXCLUDED.duration_seconds,
	metadata = EXCLUDED.metadata,
	updated_at = NOW()
RETURNING ` + sessionColumns

	row := r.db.QueryRowContext(ctx, q,
		s.ID,
		s.TenantID,
		s.SessionID,
		nullStr(s.CallID),
		nullStr(s.Token),
		nullStr(s.Domain),
		nullStr(s.CallerID),
		nullStr(s.Destination),
		nullStr(s.FromNumber),
		nullStr(s.ToNumber),
		s.Direction,
		string(s.Status),
		nullStr(s.VappServer),
		nullTime(s.StartedAt),
		nullTime(s.CallStartTime),
		nullTime(s.CallAnswerTime),
		nullTime(s.AnswerTime),
		nullTime(s.WebhookCreatedAt),
		nullTime(s.WebhookModifiedAt),
		nullInt(s.DurationSeconds),
		nullJSON(s.State),
		nullJSON(s.Metadata),
	)
	out, err := scanSession(row)
	if err != nil {
		return CallSession{}, fmt.Errorf("upserting call session: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) CreateIfAbsentBySessionID(ctx context.Context, s CallSession) (CallSession, bool, error) {
	if s.SessionID == "" {
		return CallSession{}, false, errors.New("callsession: session_id is required")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	q := `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW(), NOW())
ON CONFLICT (session_id) DO NOTHING
RETURNING ` + sessionColumns

	row := r.db.QueryRowContext(ctx, q,
		s.ID,
		s.TenantID,
		s.SessionID,
		nullStr(s.CallID),
		nullStr(s.Token),
		nullStr(s.Domain),
		nullStr(s.CallerID),
		nullStr(s.Destination),
		nullStr(s.FromNumber),
		nullStr(s.ToNumber),
		s.Direction,
		string(s.Status),
		nullStr(s.VappServer),
		nullTime(s.StartedAt),
		nullTime(s.CallStartTime),
		nullTime(s.CallAnswerTime),
		nullTime(s.AnswerTime),
		nullTime(s.WebhookCreatedAt),
		nullTime(s.WebhookModifiedAt),
		nullInt(s.DurationSeconds),
		nullJSON(s.State),
		nullJSON(s.Metadata),
	)
	out, err := scanSession(row)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, false, fmt.Errorf("creating call session: %w", err)
	}

	// Row already existed; return it unchanged.
	existing, err := r.getBySessionID(ctx, s.SessionID)
	if err != nil {
		return CallSession{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepo) getBySessionID(ctx context.Context, sessionID string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE session_id = $1`
	out, err := scanSession(r.db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, fmt.Errorf("getting call session: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetByToken(ctx context.Context, tenantID, token string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE tenant_id = $1 AND token = $2`
	out, err := scanSession(r.db.QueryRowContext(ctx, q, tenantID, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, fmt.Errorf("getting call session: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) ListActive(ctx context.Context, tenantID string) ([]CallSession, error) {
	q := `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE tenant_id = $1 AND status IN ('ringing', 'connected')
ORDER BY webhook_modified_at DESC NULLS LAST`

	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing active call sessions: %w", err)
	}
	defer rows.Close()

	out := make([]CallSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning call session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DayStats(ctx context.Context, tenantID string, dayStart, dayEnd time.Time) (DayStats, error) {
	const q = `
SELECT
	COUNT(*),
	COALESCE(AVG(duration_seconds), 0),
	COUNT(*) FILTER (WHERE status = 'completed'),
	COUNT(*) FILTER (WHERE status = 'failed')
FROM call_sessions
WHERE tenant_id = $1 AND webhook_created_at >= $2 AND webhook_created_at < $3`

	var out DayStats
	if err := r.db.QueryRowContext(ctx, q, tenantID, dayStart, dayEnd).Scan(
		&out.Total,
		&out.AvgDurationSeconds,
		&out.Completed,
		&out.Failed,
	); err != nil {
		return DayStats{}, fmt.Errorf("aggregating day stats: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var (
		s                                                         CallSession
		callID, token, domain, callerID, destination              sql.NullString
		fromNumber, toNumber, vappServer                          sql.NullString
		startedAt, callStart, callAnswer, answer, whCreated, whMod sql.NullTime
		duration                                                  sql.NullInt64
		state, metadata                                           []byte
		status                                                    string
	)
	if err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.SessionID,
		&callID,
		&token,
		&domain,
		&callerID,
		&destination,
		&fromNumber,
		&toNumber,
		&s.Direction,
		&status,
		&vappServer,
		&startedAt,
		&callStart,
		&callAnswer,
		&answer,
		&whCreated,
		&whMod,
		&duration,
		&state,
		&metadata,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return CallSession{}, err
	}

	s.CallID = callID.String
	s.Token = token.String
	s.Domain = domain.String
	s.CallerID = callerID.String
	s.Destination = destination.String
	s.FromNumber = fromNumber.String
	s.ToNumber = toNumber.String
	s.VappServer = vappServer.String
	s.Status = Status(status)
	s.StartedAt = timePtr(startedAt)
	s.CallStartTime = timePtr(callStart)
	s.CallAnswerTime = timePtr(callAnswer)
	s.AnswerTime = timePtr(answer)
	s.WebhookCreatedAt = timePtr(whCreated)
	s.WebhookModifiedAt = timePtr(whMod)
	if duration.Valid {
		n := int(duration.Int64)
		s.DurationSeconds = &n
	}
	s.State = json.RawMessage(state)
	s.Metadata = json.RawMessage(metadata)
	return s, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
