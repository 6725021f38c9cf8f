package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Property is the property record owned by the external data store.
// Only the fields needed to build a listing are carried here.
type Property struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	PropertyType   string          `json:"propertyType"`
	Street         string          `json:"street"`
	Unit           string          `json:"unit,omitempty"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	PostalCode     string          `json:"postalCode"`
	Country        string          `json:"country,omitempty"`
	Bedrooms       int             `json:"bedrooms"`
	Bathrooms      float64         `json:"bathrooms"`
	SquareFeet     int             `json:"squareFeet"`
	MonthlyRent    decimal.Decimal `json:"monthlyRent"`
	Deposit        decimal.Decimal `json:"deposit"`
	Description    string          `json:"description"`
	Amenities      []string        `json:"amenities,omitempty"`
	Images         []Image         `json:"images,omitempty"`
	PetsAllowed    bool            `json:"petsAllowed"`
	PetPolicy      string          `json:"petPolicy,omitempty"`
	SmokingAllowed bool            `json:"smokingAllowed"`
	AvailableFrom  *time.Time      `json:"availableFrom,omitempty"`
	LeaseMonths    int             `json:"leaseMonths,omitempty"`
	ContactName    string          `json:"contactName,omitempty"`
	ContactEmail   string          `json:"contactEmail,omitempty"`
	ContactPhone   string          `json:"contactPhone,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Address is a structured postal address
type Address struct {
	Street     string `json:"street"`
	Unit       string `json:"unit,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Image is one listing photo. Order within a listing is significant.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// Fee is a recurring or one-off charge besides rent and deposit
type Fee struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Recurring bool            `json:"recurring"`
}

// ContactMethod says how prospects should reach the landlord
type ContactMethod string

const (
	ContactEmail ContactMethod = "email"
	ContactPhone ContactMethod = "phone"
	ContactBoth  ContactMethod = "both"
)

// Contact holds listing contact details
type Contact struct {
	Method ContactMethod `json:"method"`
	Name   string        `json:"name,omitempty"`
	Email  string        `json:"email,omitempty"`
	Phone  string        `json:"phone,omitempty"`
}

// ListingData is the platform-agnostic listing payload
type ListingData struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	PropertyType   string          `json:"propertyType"`
	Address        Address         `json:"address"`
	Bedrooms       int             `json:"bedrooms"`
	Bathrooms      float64         `json:"bathrooms"`
	AreaSqFt       int             `json:"areaSqFt"`
	Rent           decimal.Decimal `json:"rent"`
	Deposit        decimal.Decimal `json:"deposit"`
	Fees           []Fee           `json:"fees,omitempty"`
	AvailableDate  *time.Time      `json:"availableDate,omitempty"`
	LeaseMonths    int             `json:"leaseMonths,omitempty"`
	Images         []Image         `json:"images,omitempty"`
	Contact        Contact         `json:"contact"`
	PetPolicy      string          `json:"petPolicy,omitempty"`
	SmokingAllowed bool            `json:"smokingAllowed"`
	Amenities      []string        `json:"amenities,omitempty"`
	Overrides      map[string]any  `json:"overrides,omitempty"`
}

// PrimaryImage returns the image flagged primary, falling back to the first one
func (l *ListingData) PrimaryImage() (Image, bool) {
	for _, img := range l.Images {
		if img.Primary {
			return img, true
		}
	}
	if len(l.Images) > 0 {
		return l.Images[0], true
	}
	return Image{}, false
}

// Override returns a platform-specific override value, or nil if not set
func (l *ListingData) Override(key string) any {
	if l.Overrides == nil {
		return nil
	}
	return l.Overrides[key]
}

// StoredTokens is a user's connection to one platform
type StoredTokens struct {
	UserID          string     `json:"userId"`
	Platform        string     `json:"platform"`
	AccessToken     string     `json:"-"`
	RefreshToken    string     `json:"-"`
	TokenType       string     `json:"tokenType"`
	Scope           string     `json:"scope,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"` // nil means the token does not expire
	IssuedAt        time.Time  `json:"issuedAt"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt,omitempty"`
	Valid           bool       `json:"valid"`
	AccountName     string     `json:"accountName,omitempty"`
	AccountEmail    string     `json:"accountEmail,omitempty"`
}

// TokenUpdate carries the fields changed by a token refresh
type TokenUpdate struct {
	AccessToken     string
	RefreshToken    string
	TokenType       string
	ExpiresAt       *time.Time
	LastRefreshedAt time.Time
}

// Apply merges a refresh result into the stored tokens
func (t *StoredTokens) Apply(u TokenUpdate) {
	t.AccessToken = u.AccessToken
	if u.RefreshToken != "" {
		t.RefreshToken = u.RefreshToken
	}
	if u.TokenType != "" {
		t.TokenType = u.TokenType
	}
	t.ExpiresAt = u.ExpiresAt
	refreshed := u.LastRefreshedAt
	t.LastRefreshedAt = &refreshed
	t.Valid = true
}

// Storage errors
var (
	ErrPropertyNotFound    = errors.New("property not found")
	ErrPublicationNotFound = errors.New("publication not found")
	ErrPublicationExists   = errors.New("publication already exists")
	ErrTokensNotFound      = errors.New("platform tokens not found")
	ErrInvalidTransition   = errors.New("invalid publication status transition")
)
