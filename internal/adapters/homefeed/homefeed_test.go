package homefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"
	"listingsync/internal/platforms"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(baseURL string) *Adapter {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	mc := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(Config{
		BaseURL: baseURL,
		APIKey:  "feed-key",
		Client:  platforms.ClientOptions{Clock: mc},
	}, nil, logger)
}

func property() *core.Property {
	return &core.Property{
		ID:           "prop-1",
		Name:         "Cedar Row Townhome",
		PropertyType: "townhouse",
		Street:       "9 Cedar Row",
		City:         "Boise",
		State:        "ID",
		PostalCode:   "83702",
		Bedrooms:     3,
		Bathrooms:    2.5,
		SquareFeet:   1600,
		MonthlyRent:  decimal.RequireFromString("2350"),
		Description:  "Spacious **end unit** with a fenced yard and garage.",
		Images:       []core.Image{{URL: "https://img.example.com/front.jpg"}},
		ContactEmail: "leasing@example.com",
	}
}

func TestAdapter_Settings(t *testing.T) {
	a := newTestAdapter("")
	s := a.Settings()

	assert.Equal(t, Key, s.Key)
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	assert.False(t, s.RequiresOAuth())
	assert.True(t, s.Pricing.FreeTier)
	assert.Equal(t, "feed-key", s.APIKey)
}

func TestAdapter_NoOAuth(t *testing.T) {
	a := newTestAdapter("")

	_, err := a.AuthURL(context.Background(), oauth.BeginOptions{UserID: "user-1"})
	assert.ErrorIs(t, err, platforms.ErrOAuthNotSupported)
}

func TestAdapter_TransformThenValidate(t *testing.T) {
	a := newTestAdapter("")

	listing := a.TransformProperty(property())
	assert.Equal(t, "Spacious end unit with a fenced yard and garage.", listing.Description)
	assert.Empty(t, a.ValidateListing(listing))
}

func TestAdapter_Publish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/feeds/listings", r.URL.Path)
		assert.Equal(t, "feed-key", r.Header.Get(APIKeyHeader))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2350", body["monthly_rent"])
		assert.Equal(t, "2.5", body["baths"])
		assert.Equal(t, "leasing@example.com", body["reply_to"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"listing_id":"hf-1","permalink":"https://homefeed.example/hf-1","state":"queued"}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	// Publishing to a key-authenticated platform needs no user tokens
	result, err := a.Publish(context.Background(), nil, a.TransformProperty(property()))
	require.NoError(t, err)
	assert.Equal(t, "hf-1", result.ExternalID)
	assert.Equal(t, core.PublicationStatusPending, result.Status)
}

func TestAdapter_PublishValidationRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"zip not served"}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	_, err := a.Publish(context.Background(), nil, a.TransformProperty(property()))
	require.Error(t, err)
	assert.Equal(t, httpclient.CodeValidationError, httpclient.CodeOf(err))
}

func TestAdapter_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/listings/hf-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"listing_id":"hf-1","state":"syndicated","impressions":42}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	result, err := a.Status(context.Background(), nil, "hf-1")
	require.NoError(t, err)
	assert.Equal(t, core.PublicationStatusActive, result.Status)
	assert.Equal(t, 42, result.Views)

	result, err = a.Status(context.Background(), nil, "gone")
	require.NoError(t, err)
	assert.Equal(t, core.PublicationStatusExpired, result.Status)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, core.PublicationStatusActive, MapStatus("active"))
	assert.Equal(t, core.PublicationStatusPending, MapStatus("queued"))
	assert.Equal(t, core.PublicationStatusExpired, MapStatus("removed"))
	assert.Equal(t, core.PublicationStatusError, MapStatus("suspended"))
	assert.Equal(t, core.PublicationStatusPaused, MapStatus("hidden"))
}
