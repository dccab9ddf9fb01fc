package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresDirectory resolves tenants from the tenants table.
//
// NOTE: This repository assumes the following table exists:
// - tenants (id, name, slug, domain UNIQUE, is_active, created_at, updated_at)
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ResolveDomain(ctx context.Context, domain string) (Tenant, error) {
	const q = `
SELECT id, name, slug, domain, is_active, created_at, updated_at
FROM tenants
WHERE domain = $1
`
	var t Tenant
	if err := d.db.QueryRowContext(ctx, q, domain).Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.Domain,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("resolving tenant domain: %w", err)
	}
	return t, nil
}
