package publish

import (
	"context"

	"listingsync/internal/core"
	"listingsync/internal/storage"
)

// Publisher defines the contract for publication management
type Publisher interface {
	RequestBulkPublish(ctx context.Context, req BulkRequest) (*BulkResult, error)
	UpdatePublication(ctx context.Context, id string, listing *core.ListingData) (*core.Publication, error)
	Unpublish(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) (*core.Publication, error)
	Resume(ctx context.Context, id string) (*core.Publication, error)
	SyncPublication(ctx context.Context, id string) (*core.Publication, error)
	SyncStale(ctx context.Context, hoursStale int) (*SyncReport, error)
	GetPublication(ctx context.Context, id string) (*core.Publication, error)
	ListPublications(ctx context.Context, filter storage.PublicationFilter) ([]*core.Publication, error)
}

var _ Publisher = (*Orchestrator)(nil)
