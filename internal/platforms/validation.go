package platforms

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"listingsync/internal/core"

	"github.com/shopspring/decimal"
)

// Validation error codes
const (
	CodeTitleTooShort       = "TITLE_TOO_SHORT"
	CodeTitleTooLong        = "TITLE_TOO_LONG"
	CodeDescriptionTooShort = "DESCRIPTION_TOO_SHORT"
	CodeDescriptionTooLong  = "DESCRIPTION_TOO_LONG"
	CodeAddressIncomplete   = "ADDRESS_INCOMPLETE"
	CodeInvalidRent         = "INVALID_RENT"
	CodeInvalidDeposit      = "INVALID_DEPOSIT"
	CodeInvalidBedrooms     = "INVALID_BEDROOMS"
	CodeInvalidBathrooms    = "INVALID_BATHROOMS"
	CodeInvalidArea         = "INVALID_AREA"
	CodeTooManyImages       = "TOO_MANY_IMAGES"
	CodeMissingImages       = "MISSING_IMAGES"
	CodeMissingContact      = "MISSING_CONTACT"
)

// ValidationError is one field-level listing problem
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// JoinValidationErrors renders all problems as one message
func JoinValidationErrors(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Rules are a platform's field constraints. Zero values disable a check.
type Rules struct {
	MinTitle       int
	MaxTitle       int
	MinDescription int
	MaxDescription int
	MaxRent        decimal.Decimal
	MaxBedrooms    int
	MaxBathrooms   float64
	MaxArea        int
	MinImages      int
	MaxImages      int
	RequireContact bool
}

// Validate checks listing against the rules and returns every violation
func (r Rules) Validate(listing core.ListingData) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	title := strings.TrimSpace(listing.Title)
	titleLen := utf8.RuneCountInString(title)
	if r.MinTitle > 0 && titleLen < r.MinTitle {
		add("title", CodeTitleTooShort, "must be at least %d characters", r.MinTitle)
	}
	if r.MaxTitle > 0 && titleLen > r.MaxTitle {
		add("title", CodeTitleTooLong, "must be at most %d characters", r.MaxTitle)
	}

	descLen := utf8.RuneCountInString(strings.TrimSpace(listing.Description))
	if r.MinDescription > 0 && descLen < r.MinDescription {
		add("description", CodeDescriptionTooShort, "must be at least %d characters", r.MinDescription)
	}
	if r.MaxDescription > 0 && descLen > r.MaxDescription {
		add("description", CodeDescriptionTooLong, "must be at most %d characters", r.MaxDescription)
	}

	if missing := missingAddressParts(listing.Address); len(missing) > 0 {
		add("address", CodeAddressIncomplete, "missing %s", strings.Join(missing, ", "))
	}

	if !listing.Rent.IsPositive() {
		add("rent", CodeInvalidRent, "must be greater than zero")
	} else if !r.MaxRent.IsZero() && listing.Rent.GreaterThan(r.MaxRent) {
		add("rent", CodeInvalidRent, "must not exceed %s", r.MaxRent.StringFixed(2))
	}
	if listing.Deposit.IsNegative() {
		add("deposit", CodeInvalidDeposit, "must not be negative")
	}

	if listing.Bedrooms < 0 || (r.MaxBedrooms > 0 && listing.Bedrooms > r.MaxBedrooms) {
		add("bedrooms", CodeInvalidBedrooms, "must be between 0 and %d", r.MaxBedrooms)
	}
	if listing.Bathrooms <= 0 || (r.MaxBathrooms > 0 && listing.Bathrooms > r.MaxBathrooms) || !isHalfStep(listing.Bathrooms) {
		add("bathrooms", CodeInvalidBathrooms, "must be a positive multiple of 0.5")
	}
	if listing.AreaSqFt < 0 || (r.MaxArea > 0 && listing.AreaSqFt > r.MaxArea) {
		add("areaSqFt", CodeInvalidArea, "must be between 0 and %d", r.MaxArea)
	}

	if r.MinImages > 0 && len(listing.Images) < r.MinImages {
		add("images", CodeMissingImages, "at least %d image(s) required", r.MinImages)
	}
	if r.MaxImages > 0 && len(listing.Images) > r.MaxImages {
		add("images", CodeTooManyImages, "at most %d images allowed, got %d", r.MaxImages, len(listing.Images))
	}

	if r.RequireContact && !hasContact(listing.Contact) {
		add("contact", CodeMissingContact, "an email or phone number is required")
	}

	return errs
}

func missingAddressParts(a core.Address) []string {
	var missing []string
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	return missing
}

func hasContact(c core.Contact) bool {
	switch c.Method {
	case core.ContactEmail:
		return c.Email != ""
	case core.ContactPhone:
		return c.Phone != ""
	case core.ContactBoth:
		return c.Email != "" && c.Phone != ""
	default:
		return c.Email != "" || c.Phone != ""
	}
}

func isHalfStep(v float64) bool {
	doubled := v * 2
	return doubled == float64(int64(doubled))
}
