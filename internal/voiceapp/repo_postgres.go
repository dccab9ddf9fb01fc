package voiceapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresRepo reads voice applications from the voice_applications table.
//
// NOTE: This repository assumes the following table exists:
// - voice_applications (id, tenant_id, name, description, cxml_definition,
//   provider_app_id UNIQUE, is_active, created_at, updated_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetActiveByProviderAppID(ctx context.Context, providerAppID string) (VoiceApplication, error) {
	const q = `
SELECT id, tenant_id, name, COALESCE(description, ''), cxml_definition, provider_app_id, is_active, created_at, updated_at
FROM voice_applications
WHERE provider_app_id = $1 AND is_active = TRUE
`
	var a VoiceApplication
	if err := r.db.QueryRowContext(ctx, q, providerAppID).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.Description,
		&a.CXMLDefinition,
		&a.ProviderAppID,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoiceApplication{}, ErrNotFound
		}
		return VoiceApplication{}, fmt.Errorf("looking up voice application: %w", err)
	}
	return a, nil
}
