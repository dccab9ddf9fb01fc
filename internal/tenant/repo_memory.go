package tenant

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests and early development.
type MemoryDirectory struct {
	mu      sync.Mutex
	tenants map[string]Tenant // keyed by domain
}

func NewMemoryDirectory(tenants ...Tenant) *MemoryDirectory {
	d := &MemoryDirectory{tenants: map[string]Tenant{}}
	for _, t := range tenants {
		d.tenants[t.Domain] = t
	}
	return d
}

func (d *MemoryDirectory) Add(t Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.Domain] = t
}

func (d *MemoryDirectory) ResolveDomain(ctx context.Context, domain string) (Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[domain]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}
