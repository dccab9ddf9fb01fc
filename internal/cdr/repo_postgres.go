package cdr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo persists CDR records.
//
// NOTE: This repository assumes the following table exists:
// - cdr_logs with UNIQUE (tenant_id, call_id); that constraint is what
//   makes concurrent redelivery of the same CDR safe.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const cdrColumns = `
id, tenant_id, call_id, session_token, from_number, to_number, direction,
disposition, start_time, answer_time, end_time, duration_seconds, billsec,
domain, subscriber, cx_trunk_id, application, route, vapp_server, raw_cdr,
created_at, updated_at`

func (r *PostgresRepo) Upsert(ctx context.Context, c CdrLog) (CdrLog, error) {
	if c.CallID == "" {
		return CdrLog{}, errors.New("cdr: call_id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	q := `
INSERT INTO cdr_logs (` + cdrColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW(), NOW())
ON CONFLICT (tenant_id, call_id) DO UPDATE SET
	session_token = EXCLUDED.session_token,
	from_number = EXCLUDED.from_number,
	to_number = EXCLUDED.to_number,
	direction = EXCLUDED.direction,
	disposition = EXCLUDED.disposition,
	start_time = EXCLUDED.start_time,
	answer_time = EXCLUDED.answer_time,
	end_time = EXCLUDED.end_time,
	duration_seconds = EXCLUDED.duration_seconds,
	billsec = EXCLUDED.billsec,
	domain = EXCLUDED.domain,
	subscriber = EXCLUDED.subscriber,
	cx_trunk_id = EXCLUDED.cx_trunk_id,
	application = EXCLUDED.application,
	route = EXCLUDED.route,
	vapp_server = EXCLUDED.vapp_server,
	raw_cdr = EXCLUDED.raw_cdr,
	updated_at = NOW()
RETURNING ` + cdrColumns

	row := r.db.QueryRowContext(ctx, q,
		c.ID,
		c.TenantID,
		c.CallID,
		nullStr(c.SessionToken),
		nullStr(c.FromNumber),
		nullStr(c.ToNumber),
		c.Direction,
		string(c.Disposition),
		nullTime(c.StartTime),
		nullTime(c.AnswerTime),
		nullTime(c.EndTime),
		nullInt(c.DurationSeconds),
		nullInt(c.BillSec),
		nullStr(c.Domain),
		nullStr(c.Subscriber),
		nullStr(c.CxTrunkID),
		nullStr(c.Application),
		nullStr(c.Route),
		nullStr(c.VappServer),
		[]byte(c.RawCdr),
	)
	out, err := scanCdr(row)
	if err != nil {
		return CdrLog{}, fmt.Errorf("upserting cdr: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, f Filter) ([]CdrLog, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.From != "" {
		where = append(where, "from_number LIKE "+arg("%"+f.From+"%"))
	}
	if f.To != "" {
		where = append(where, "to_number LIKE "+arg("%"+f.To+"%"))
	}
	if f.Disposition != "" {
		where = append(where, "disposition = "+arg(string(f.Disposition)))
	}
	if f.Token != "" {
		where = append(where, "session_token LIKE "+arg("%"+f.Token+"%"))
	}
	if f.StartDate != nil || f.EndDate != nil {
		start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		if f.StartDate != nil {
			start = *f.StartDate
		}
		end := time.Now().UTC()
		if f.EndDate != nil {
			end = *f.EndDate
		}
		where = append(where, "start_time >= "+arg(start))
		where = append(where, "start_time < "+arg(end.AddDate(0, 0, 1)))
	}
	if f.StartTimeOfDay != "" || f.EndTimeOfDay != "" {
		start := f.StartTimeOfDay
		if start == "" {
			start = "00:00"
		}
		end := f.EndTimeOfDay
		if end == "" {
			end = "23:59"
		}
		where = append(where, "start_time::time BETWEEN "+arg(start)+"::time AND "+arg(end)+"::time")
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cdr_logs WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting cdrs: %w", err)
	}

	// SortBy/SortOrder come from Filter.Normalize's whitelist, never from
	// raw request input.
	order := fmt.Sprintf(" ORDER BY %s %s", f.SortBy, strings.ToUpper(f.SortOrder))
	limit := " LIMIT " + arg(f.PerPage) + " OFFSET " + arg((f.Page-1)*f.PerPage)

	rows, err := r.db.QueryContext(ctx, "SELECT "+cdrColumns+" FROM cdr_logs WHERE "+cond+order+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing cdrs: %w", err)
	}
	defer rows.Close()

	out := make([]CdrLog, 0)
	for rows.Next() {
		c, err := scanCdr(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning cdr: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepo) GetByID(ctx context.Context, tenantID, id string) (CdrLog, error) {
	q := `SELECT ` + cdrColumns + ` FROM cdr_logs WHERE tenant_id = $1 AND id = $2`
	out, err := scanCdr(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CdrLog{}, ErrNotFound
		}
		return CdrLog{}, fmt.Errorf("getting cdr: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCdr(row rowScanner) (CdrLog, error) {
	var (
		c                                            CdrLog
		sessionToken, fromNumber, toNumber           sql.NullString
		domain, subscriber, cxTrunkID                sql.NullString
		application, route, vappServer               sql.NullString
		startTime, answerTime, endTime               sql.NullTime
		duration, billsec                            sql.NullInt64
		raw                                          []byte
		disposition                                  string
	)
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.CallID,
		&sessionToken,
		&fromNumber,
		&toNumber,
		&c.Direction,
		&disposition,
		&startTime,
		&answerTime,
		&endTime,
		&duration,
		&billsec,
		&domain,
		&subscriber,
		&cxTrunkID,
		&application,
		&route,
		&vappServer,
		&raw,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return CdrLog{}, err
	}

	c.SessionToken = sessionToken.String
	c.FromNumber = fromNumber.String
	c.ToNumber = toNumber.String
	c.Disposition = Disposition(disposition)
	c.StartTime = timePtr(startTime)
	c.AnswerTime = timePtr(answerTime)
	c.EndTime = timePtr(endTime)
	if duration.Valid {
		n := int(duration.Int64)
		c.DurationSeconds = &n
	}
	if billsec.Valid {
		n := int(billsec.Int64)
		c.BillSec = &n
	}
	c.Domain = domain.String
	c.Subscriber = subscriber.String
	c.CxTrunkID = cxTrunkID.String
	c.Application = application.String
	c.Route = route.String
	c.VappServer = vappServer.String
	c.RawCdr = json.RawMessage(raw)
	return c, nil
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

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
