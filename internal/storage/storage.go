package storage

import (
	"context"
	"time"

	"listingsync/internal/core"
)

// PublicationFilter narrows ListPublications. Empty fields match everything.
type PublicationFilter struct {
	UserID     string
	PropertyID string
	Platform   string
	Status     core.PublicationStatus
}

// PropertyStore reads property records owned by the rest of the application
type PropertyStore interface {
	GetProperty(ctx context.Context, id string) (*core.Property, error)
	UpsertProperty(ctx context.Context, property *core.Property) error
}

// PublicationStore persists listing publications, unique per (property, platform)
type PublicationStore interface {
	// CreatePublication returns core.ErrPublicationExists when the pair is taken
	CreatePublication(ctx context.Context, pub *core.Publication) error
	GetPublication(ctx context.Context, id string) (*core.Publication, error)
	GetPublicationByPair(ctx context.Context, propertyID, platform string) (*core.Publication, error)
	ListPublications(ctx context.Context, filter PublicationFilter) ([]*core.Publication, error)
	// ListStalePublications returns active publications not synced since cutoff
	ListStalePublications(ctx context.Context, cutoff time.Time) ([]*core.Publication, error)
	UpdatePublication(ctx context.Context, pub *core.Publication) error
	DeletePublication(ctx context.Context, id string) error
}

// TokenStore persists platform connections keyed by (user, platform)
type TokenStore interface {
	GetTokens(ctx context.Context, userID, platform string) (*core.StoredTokens, error)
	SaveTokens(ctx context.Context, tokens *core.StoredTokens) error
	InvalidateTokens(ctx context.Context, userID, platform string) error
	DeleteTokens(ctx context.Context, userID, platform string) error
}

// Storage defines the interface for data persistence
type Storage interface {
	PropertyStore
	PublicationStore
	TokenStore

	// Lifecycle
	Close() error
}
