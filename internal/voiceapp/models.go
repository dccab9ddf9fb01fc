package voiceapp

import (
	"context"
	"errors"
	"time"
)

// VoiceApplication is a tenant-owned call handling application registered
// with the provider. The provider addresses it by ProviderAppID when it
// requests call-control instructions for an inbound call.
type VoiceApplication struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	// CXMLDefinition is the call-control markup returned verbatim on the
	// bootstrap path. Stored as text; this service never interprets it.
	CXMLDefinition string `json:"cxml_definition" db:"cxml_definition"`

	ProviderAppID string `json:"provider_app_id" db:"provider_app_id"`
	IsActive      bool   `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var ErrNotFound = errors.New("voiceapp: not found")

type Repository interface {
	// GetActiveByProviderAppID returns the active application registered
	// under the given provider-assigned id, or ErrNotFound.
	GetActiveByProviderAppID(ctx context.Context, providerAppID string) (VoiceApplication, error)
}
