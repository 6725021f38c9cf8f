// Package homefeed is the adapter for HomeFeed, a free syndication feed
// authenticated with a partner API key. Descriptions are plain text.
package homefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/markup"
	"listingsync/internal/platforms"

	"github.com/shopspring/decimal"
)

const (
	Key = "homefeed"

	DefaultBaseURL = "https://partners.homefeed.example/api"
	APIKeyHeader   = "X-HomeFeed-Key"
)

var rules = platforms.Rules{
	MinTitle:       10,
	MaxTitle:       80,
	MinDescription: 20,
	MaxDescription: 4000,
	MaxBedrooms:    12,
	MaxBathrooms:   12,
	MaxArea:        30000,
	MaxImages:      10,
	RequireContact: true,
}

// Config contains HomeFeed API configuration
type Config struct {
	BaseURL string // API base URL
	APIKey  string // Partner key sent with every request
	Client  platforms.ClientOptions
}

// Adapter implements platforms.Adapter for HomeFeed
type Adapter struct {
	platforms.Base
	renderer *markup.Renderer
}

// New creates a new HomeFeed adapter
func New(cfg Config, renderer *markup.Renderer, logger *slog.Logger) *Adapter {
	if renderer == nil {
		renderer = markup.NewRenderer()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	settings := platforms.Settings{
		Key:          Key,
		DisplayName:  "HomeFeed",
		BaseURL:      baseURL,
		APIKeyHeader: APIKeyHeader,
		APIKey:       cfg.APIKey,
		Capabilities: platforms.Capabilities{
			MaxImages:         rules.MaxImages,
			RequestsPerMinute: 30,
			RateLimitDelay:    2 * time.Second,
			Features: map[platforms.Feature]bool{
				platforms.FeaturePhotos:     true,
				platforms.FeatureStatusSync: true,
				platforms.FeatureUpdates:    true,
			},
		},
		Pricing: platforms.Pricing{
			FreeTier:       true,
			CostPerListing: decimal.Zero,
			Currency:       "USD",
			Description:    "Free syndication",
		},
	}

	return &Adapter{
		Base:     platforms.NewBase(settings, nil, cfg.Client, logger),
		renderer: renderer,
	}
}

// TransformProperty maps a property to a listing with a plain-text description
func (a *Adapter) TransformProperty(property *core.Property) core.ListingData {
	listing := platforms.DefaultTransform(property)
	if text, err := a.renderer.PlainText(listing.Description); err == nil {
		listing.Description = text
	}
	if len(listing.Images) > rules.MaxImages {
		listing.Images = listing.Images[:rules.MaxImages]
	}
	return listing
}

// ValidateListing applies HomeFeed's field constraints
func (a *Adapter) ValidateListing(listing core.ListingData) []platforms.ValidationError {
	return rules.Validate(listing)
}

// Publish submits a listing to the feed
func (a *Adapter) Publish(ctx context.Context, tokens *core.StoredTokens, listing core.ListingData) (*platforms.PublishResult, error) {
	return a.write(ctx, http.MethodPost, "/feeds/listings", listing)
}

// Update replaces a feed listing
func (a *Adapter) Update(ctx context.Context, tokens *core.StoredTokens, externalID string, listing core.ListingData) (*platforms.PublishResult, error) {
	return a.write(ctx, http.MethodPut, listingPath(externalID), listing)
}

// Delete withdraws a listing from the feed
func (a *Adapter) Delete(ctx context.Context, tokens *core.StoredTokens, externalID string) error {
	_, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    listingPath(externalID),
		Method: http.MethodDelete,
	})
	if err != nil && httpclient.CodeOf(err) != httpclient.CodeNotFound {
		return err
	}
	return nil
}

// Status polls the feed for a listing's state
func (a *Adapter) Status(ctx context.Context, tokens *core.StoredTokens, externalID string) (*platforms.StatusResult, error) {
	resp, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    listingPath(externalID),
		Method: http.MethodGet,
	})
	if err != nil {
		if httpclient.CodeOf(err) == httpclient.CodeNotFound {
			return &platforms.StatusResult{ExternalID: externalID, Status: core.PublicationStatusExpired, PlatformStatus: "removed"}, nil
		}
		return nil, err
	}

	var body feedResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: err.Error()}
	}

	return &platforms.StatusResult{
		ExternalID:     externalID,
		ExternalURL:    body.Permalink,
		Status:         MapStatus(body.State),
		PlatformStatus: body.State,
		Views:          body.Impressions,
	}, nil
}

type feedListing struct {
	Headline    string   `json:"headline"`
	Body        string   `json:"body"`
	Kind        string   `json:"kind"`
	Street      string   `json:"street"`
	Unit        string   `json:"unit,omitempty"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Zip         string   `json:"zip"`
	Beds        int      `json:"beds"`
	Baths       string   `json:"baths"`
	Area        int      `json:"area,omitempty"`
	MonthlyRent string   `json:"monthly_rent"`
	Deposit     string   `json:"deposit,omitempty"`
	AvailableOn string   `json:"available_on,omitempty"`
	PhotoURLs   []string `json:"photo_urls"`
	ReplyTo     string   `json:"reply_to"`
	Phone       string   `json:"phone,omitempty"`
	Pets        string   `json:"pets,omitempty"`
	Features    []string `json:"features,omitempty"`
}

type feedResponse struct {
	ListingID   string `json:"listing_id"`
	Permalink   string `json:"permalink"`
	State       string `json:"state"`
	Impressions int    `json:"impressions"`
}

func (a *Adapter) write(ctx context.Context, method, path string, listing core.ListingData) (*platforms.PublishResult, error) {
	body := feedListing{
		Headline:    listing.Title,
		Body:        listing.Description,
		Kind:        listing.PropertyType,
		Street:      listing.Address.Street,
		Unit:        listing.Address.Unit,
		City:        listing.Address.City,
		State:       listing.Address.State,
		Zip:         listing.Address.PostalCode,
		Beds:        listing.Bedrooms,
		Baths:       fmt.Sprintf("%g", listing.Bathrooms),
		Area:        listing.AreaSqFt,
		MonthlyRent: listing.Rent.StringFixed(0),
		ReplyTo:     listing.Contact.Email,
		Phone:       listing.Contact.Phone,
		Pets:        listing.PetPolicy,
		Features:    listing.Amenities,
	}
	if listing.Deposit.IsPositive() {
		body.Deposit = listing.Deposit.StringFixed(0)
	}
	if listing.AvailableDate != nil {
		body.AvailableOn = listing.AvailableDate.Format("2006-01-02")
	}
	body.PhotoURLs = make([]string, 0, len(listing.Images))
	for _, img := range listing.Images {
		body.PhotoURLs = append(body.PhotoURLs, img.URL)
	}

	resp, err := a.Client().Do(ctx, httpclient.RequestConfig{
		URL:    path,
		Method: method,
		Header: http.Header{"Accept": {"application/json"}},
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	var out feedResponse
	if err := resp.Decode(&out); err != nil {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: err.Error()}
	}
	if out.ListingID == "" {
		return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Status: resp.StatusCode, Message: "response did not include a listing id", Details: resp.JSON}
	}

	return &platforms.PublishResult{
		ExternalID:  out.ListingID,
		ExternalURL: out.Permalink,
		Status:      MapStatus(out.State),
		Raw:         resp.JSON,
	}, nil
}

// MapStatus translates a HomeFeed state to a publication status
func MapStatus(s string) core.PublicationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "syndicated":
		return core.PublicationStatusActive
	case "expired", "removed":
		return core.PublicationStatusExpired
	case "suspended", "invalid":
		return core.PublicationStatusError
	case "hidden":
		return core.PublicationStatusPaused
	default:
		return core.PublicationStatusPending
	}
}

func listingPath(externalID string) string {
	return "/feeds/listings/" + url.PathEscape(externalID)
}

var _ platforms.Adapter = (*Adapter)(nil)
