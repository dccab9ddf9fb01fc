package voiceapp

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	apps []VoiceApplication
}

func NewMemoryRepo(apps ...VoiceApplication) *MemoryRepo {
	return &MemoryRepo{apps: apps}
}

func (r *MemoryRepo) Add(a VoiceApplication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps = append(r.apps, a)
}

func (r *MemoryRepo) GetActiveByProviderAppID(ctx context.Context, providerAppID string) (VoiceApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.apps {
		if a.ProviderAppID == providerAppID && a.IsActive {
			return a, nil
		}
	}
	return VoiceApplication{}, ErrNotFound
}
