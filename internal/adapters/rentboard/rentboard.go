// Package rentboard is the adapter for RentBoard, a paid listing site
// whose partner API uses OAuth2 with PKCE and accepts HTML descriptions.
package rentboard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/markup"
	"listingsync/internal/oauth"
	"listingsync/internal/platforms"

	"github.com/shopspring/decimal"
)

const (
	Key = "rentboard"

	DefaultBaseURL      = "https://api.rentboard.example/v2"
	DefaultAuthorizeURL = "https://rentboard.example/oauth/authorize"
	DefaultTokenURL     = "https://api.rentboard.example/oauth/token"
	DefaultRevokeURL    = "https://api.rentboard.example/oauth/revoke"
	DefaultUserInfoURL  = "https://api.rentboard.example/v2/me"
)

var rules = platforms.Rules{
	MinTitle:       10,
	MaxTitle:       100,
	MinDescription: 50,
	MaxDescription: 10000,
	MaxRent:        decimal.NewFromInt(100000),
	MaxBedrooms:    20,
	MaxBathrooms:   20,
	MaxArea:        50000,
	MinImages:      1,
	MaxImages:      25,
	RequireContact: true,
}

// Config contains RentBoard API configuration
type Config struct {
	BaseURL      string // API base URL
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	RevokeURL    string
	UserInfoURL  string
	Client       platforms.ClientOptions
}

// Adapter implements platforms.Adapter for RentBoard
type Adapter struct {
	platforms.Base
	renderer *markup.Renderer
}

// New creates a new RentBoard adapter
func New(cfg Config, manager *oauth.Manager, renderer *markup.Renderer, logger *slog.Logger) *Adapter {
	if renderer == nil {
		renderer = markup.NewRenderer()
	}

	settings := platforms.Settings{
		Key:         Key,
		DisplayName: "RentBoard",
		BaseURL:     orDefault(cfg.BaseURL, DefaultBaseURL),
		OAuth: oauth.Config{
			Platform:     Key,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{"listings:write", "listings:read", "profile"},
			AuthorizeURL: orDefault(cfg.AuthorizeURL, DefaultAuthorizeURL),
			TokenURL:     orDefault(cfg.TokenURL, DefaultTokenURL),
			RevokeURL:    orDefault(cfg.RevokeURL, DefaultRevokeURL),
			UserInfoURL:  orDefault(cfg.UserInfoURL, DefaultUserInfoURL),
			RedirectURI:  cfg.RedirectURI,
			UsePKCE:      true,
			Required:     true,
		},
		Capabilities: platforms.Capabilities{
			MaxImages:         rules.MaxImages,
			RequestsPerMinute: 60,
			RateLimitDelay:    time.Second,
			Features: map[platforms.Feature]bool{
				platforms.FeaturePhotos:       true,
				platforms.FeatureVirtualTours: true,
				platforms.FeatureStatusSync:   true,
				platforms.FeatureUpdates:      true,
				platforms.FeatureRichText:     true,
			},
		},
		Pricing: platforms.Pricing{
			CostPerListing: decimal.RequireFromString("29.99"),
			Currency:       "USD",
			Description:    "Per listing, 30 days",
		},
	}

	return &Adapter{
		Base:     platforms.NewBase(settings, manager, cfg.Client, logger),
		renderer: renderer,
	}
}

// TransformProperty maps a property to a listing, capping images at the platform limit
func (a *Adapter) TransformProperty(property *core.Property) core.ListingData {
	listing := platforms.DefaultTransform(property)
	if len(listing.Images) > rules.MaxImages {
		listing.Images = listing.Images[:rules.MaxImages]
	}
	return listing
}

// ValidateListing applies RentBoard's field constraints
func (a *Adapter) ValidateListing(listing core.ListingData) []platforms.ValidationError {
	return rules.Validate(listing)
}

// Publish creates a listing
func (a *Adapter) Publish(ctx context.Context, tokens *core.StoredTokens, listing core.ListingData) (*platforms.PublishResult, error) {
	return a.write(ctx, tokens, http.MethodPost, "/listings", listing)
}

// Update replaces an existing listing
func (a *Adapter) Update(ctx context.Context, tokens *core.StoredTokens, externalID string, listing core.ListingData) (*platforms.PublishResult, error) {
	return a.write(ctx, tokens, http.MethodPut, listingPath(externalID), listing)
}

// Delete removes a listing. A listing already gone counts as deleted.
func (a *Adapter) Delete(ctx context.Context, tokens *core.StoredTokens, externalID string) error {
	if err := a.RequireTokens(tokens); err != nil {
		return err
	}

	_, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    listingPath(externalID),
		Method: http.MethodDelete,
		Header: a.AuthHeader(tokens),
	})
	if err != nil && httpclient.CodeOf(err) != httpclient.CodeNotFound {
		return err
	}
	return nil
}

// Status polls the listing's state
func (a *Adapter) Status(ctx context.Context, tokens *core.StoredTokens, externalID string) (*platforms.StatusResult, error) {
	if err := a.RequireTokens(tokens); err != nil {
		return nil, err
	}

	resp, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    listingPath(externalID),
		Method: http.MethodGet,
		Header: a.AuthHeader(tokens),
	})
	if err != nil {
		// A listing removed on the platform side has lapsed
		if httpclient.CodeOf(err) == httpclient.CodeNotFound {
			return &platforms.StatusResult{ExternalID: externalID, Status: core.PublicationStatusExpired, PlatformStatus: "not_found"}, nil
		}
		return nil, err
	}

	var body listingResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: err.Error()}
	}

	result := &platforms.StatusResult{
		ExternalID:     orDefault(body.ID, externalID),
		ExternalURL:    body.URL,
		Status:         MapStatus(body.Status),
		PlatformStatus: body.Status,
		Views:          body.Views,
	}
	if body.ExpiresAt != nil {
		at := body.ExpiresAt.UTC()
		result.ExpiresAt = &at
	}
	return result, nil
}

func (a *Adapter) write(ctx context.Context, tokens *core.StoredTokens, method, path string, listing core.ListingData) (*platforms.PublishResult, error) {
	if err := a.RequireTokens(tokens); err != nil {
		return nil, err
	}

	payload, err := a.payload(listing)
	if err != nil {
		return nil, err
	}

	resp, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    path,
		Method: method,
		Header: a.AuthHeader(tokens),
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	var body listingResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: err.Error()}
	}
	if body.ID == "" {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: "response did not include a listing id", Details: resp.JSON}
	}

	a.Logger().Debug("Listing written", "method", method, "external_id", body.ID, "platform_status", body.Status)

	return &platforms.PublishResult{
		ExternalID:  body.ID,
		ExternalURL: body.URL,
		Status:      MapStatus(body.Status),
		Raw:         resp.JSON,
	}, nil
}

// MapStatus translates a RentBoard listing status to a publication status.
// Unknown values are treated as still processing.
func MapStatus(s string) core.PublicationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "published":
		return core.PublicationStatusActive
	case "expired", "archived":
		return core.PublicationStatusExpired
	case "rejected", "failed":
		return core.PublicationStatusError
	case "hidden", "paused":
		return core.PublicationStatusPaused
	default:
		return core.PublicationStatusPending
	}
}

func listingPath(externalID string) string {
	return "/listings/" + url.PathEscape(externalID)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var _ platforms.Adapter = (*Adapter)(nil)
