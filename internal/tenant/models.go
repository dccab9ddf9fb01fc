package tenant

import (
	"context"
	"errors"
	"time"
)

// Tenant is an isolated customer account. All call data is partitioned by
// tenant; webhooks resolve their tenant through the Directory below.
type Tenant struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Slug   string `json:"slug" db:"slug"`
	Domain string `json:"domain" db:"domain"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var ErrNotFound = errors.New("tenant: not found")

// Directory resolves an inbound domain string to a tenant.
//
// Lookup is exact-match on the unique domain column. No case normalization,
// no fuzzing: webhook payloads carry the domain verbatim and a mismatch
// means the delivery is rejected upstream.
type Directory interface {
	ResolveDomain(ctx context.Context, domain string) (Tenant, error)
}
