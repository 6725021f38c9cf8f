package platforms

import (
	"context"
	"errors"
	"time"

	"listingsync/internal/core"
	"listingsync/internal/oauth"

	"github.com/shopspring/decimal"
)

var ErrOAuthNotSupported = errors.New("platform does not use oauth")

// Adapter defines the interface that all listing platforms must implement
type Adapter interface {
	// Settings returns the platform's static descriptor
	Settings() Settings

	// AuthURL starts an authorization flow for the platform
	AuthURL(ctx context.Context, opts oauth.BeginOptions) (*oauth.Authorization, error)

	// ExchangeCode completes a flow started by AuthURL
	ExchangeCode(ctx context.Context, code, state, userID string) *oauth.ExchangeResult

	// RefreshTokens exchanges a refresh token for new credentials
	RefreshTokens(ctx context.Context, refreshToken string) *oauth.RefreshResult

	// TransformProperty maps a property record to a canonical listing
	TransformProperty(property *core.Property) core.ListingData

	// ValidateListing returns every field-level problem, or nil
	ValidateListing(listing core.ListingData) []ValidationError

	// Publish creates the listing on the platform.
	// tokens is nil for platforms that do not use OAuth.
	Publish(ctx context.Context, tokens *core.StoredTokens, listing core.ListingData) (*PublishResult, error)

	// Update replaces the content of an existing listing
	Update(ctx context.Context, tokens *core.StoredTokens, externalID string, listing core.ListingData) (*PublishResult, error)

	// Delete removes the listing from the platform
	Delete(ctx context.Context, tokens *core.StoredTokens, externalID string) error

	// Status polls the platform for the listing's current state
	Status(ctx context.Context, tokens *core.StoredTokens, externalID string) (*StatusResult, error)
}

// Feature is an optional platform capability
type Feature string

const (
	FeaturePhotos       Feature = "photos"
	FeatureVirtualTours Feature = "virtual_tours"
	FeatureStatusSync   Feature = "status_sync"
	FeatureUpdates      Feature = "updates"
	FeatureRichText     Feature = "rich_text"
	FeatureLeadForwards Feature = "lead_forwarding"
)

// Capabilities describes platform limits and supported features
type Capabilities struct {
	MaxImages         int              `json:"maxImages"`
	RequestsPerMinute int              `json:"requestsPerMinute"`
	RateLimitDelay    time.Duration    `json:"-"`
	Features          map[Feature]bool `json:"features"`
}

// Has reports whether the platform supports f
func (c Capabilities) Has(f Feature) bool {
	return c.Features[f]
}

// IsZero reports whether no capabilities were declared
func (c Capabilities) IsZero() bool {
	return c.MaxImages == 0 && c.RequestsPerMinute == 0 && len(c.Features) == 0
}

// Pricing describes what listing on the platform costs
type Pricing struct {
	FreeTier       bool            `json:"freeTier"`
	CostPerListing decimal.Decimal `json:"costPerListing"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
}

// Settings is a platform's immutable descriptor
type Settings struct {
	Key          string
	DisplayName  string
	BaseURL      string
	OAuth        oauth.Config
	APIKeyHeader string // set for platforms authenticated by a static key
	APIKey       string
	Capabilities Capabilities
	Pricing      Pricing
}

// RequiresOAuth reports whether users must connect an account before publishing
func (s Settings) RequiresOAuth() bool {
	return s.OAuth.Required
}

// PublishResult is what a platform reports after a create or update
type PublishResult struct {
	ExternalID  string
	ExternalURL string
	Status      core.PublicationStatus
	Raw         any
}

// StatusResult is a polled listing state
type StatusResult struct {
	ExternalID     string
	ExternalURL    string
	Status         core.PublicationStatus
	PlatformStatus string
	Views          int
	ExpiresAt      *time.Time
}
