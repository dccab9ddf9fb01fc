package callevent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo appends call events.
//
// NOTE: This repository assumes the following table exists:
// - call_events (id, tenant_id, call_session_id, event_type,
//   event_id UNIQUE, payload, headers, occurred_at, processed_at,
//   processing_status, error_message, created_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events
	(id, tenant_id, call_session_id, event_type, event_id, payload, headers,
	 occurred_at, processed_at, processing_status, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var headers any
	if len(e.Headers) > 0 {
		headers = []byte(e.Headers)
	}
	var processedAt any
	if e.ProcessedAt != nil {
		processedAt = *e.ProcessedAt
	}
	var errMsg any
	if e.ErrorMessage != "" {
		errMsg = e.ErrorMessage
	}

	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.CallSessionID,
		string(e.Type),
		e.EventID,
		[]byte(e.Payload),
		headers,
		e.OccurredAt,
		processedAt,
		string(e.ProcessingStatus),
		errMsg,
		e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("appending call event: %w", err)
	}
	return nil
}
