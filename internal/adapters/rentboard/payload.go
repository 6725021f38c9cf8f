package rentboard

import (
	"fmt"
	"time"

	"listingsync/internal/core"
)

type listingPayload struct {
	Title           string          `json:"title"`
	DescriptionHTML string          `json:"description_html"`
	Category        string          `json:"category"`
	Location        locationPayload `json:"location"`
	Beds            int             `json:"beds"`
	Baths           float64         `json:"baths"`
	SquareFeet      int             `json:"sqft,omitempty"`
	Price           moneyPayload    `json:"price"`
	Deposit         *moneyPayload   `json:"deposit,omitempty"`
	Fees            []feePayload    `json:"fees,omitempty"`
	AvailableOn     string          `json:"available_on,omitempty"`
	LeaseTermMonths int             `json:"lease_term_months,omitempty"`
	Photos          []photoPayload  `json:"photos"`
	Contact         contactPayload  `json:"contact"`
	Pets            string          `json:"pets,omitempty"`
	Smoking         bool            `json:"smoking_allowed"`
	Amenities       []string        `json:"amenities,omitempty"`
	Featured        bool            `json:"featured,omitempty"`
	VirtualTourURL  string          `json:"virtual_tour_url,omitempty"`
}

type locationPayload struct {
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type moneyPayload struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type feePayload struct {
	Name      string       `json:"name"`
	Amount    moneyPayload `json:"amount"`
	Frequency string       `json:"frequency"`
}

type photoPayload struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
	Cover   bool   `json:"cover"`
}

type contactPayload struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Preferred string `json:"preferred"`
}

type listingResponse struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Status    string     `json:"status"`
	Views     int        `json:"views"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// payload builds the RentBoard request body. Overrides "category",
// "featured" and "virtualTourUrl" are honoured when present.
func (a *Adapter) payload(listing core.ListingData) (*listingPayload, error) {
	description, err := a.renderer.HTML(listing.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to render description: %w", err)
	}

	p := &listingPayload{
		Title:           listing.Title,
		DescriptionHTML: description,
		Category:        category(listing),
		Location: locationPayload{
			Address1:   listing.Address.Street,
			Address2:   listing.Address.Unit,
			City:       listing.Address.City,
			Region:     listing.Address.State,
			PostalCode: listing.Address.PostalCode,
			Country:    listing.Address.Country,
		},
		Beds:            listing.Bedrooms,
		Baths:           listing.Bathrooms,
		SquareFeet:      listing.AreaSqFt,
		Price:           usd(listing.Rent.StringFixed(2)),
		LeaseTermMonths: listing.LeaseMonths,
		Contact: contactPayload{
			Name:      listing.Contact.Name,
			Email:     listing.Contact.Email,
			Phone:     listing.Contact.Phone,
			Preferred: string(listing.Contact.Method),
		},
		Pets:      listing.PetPolicy,
		Smoking:   listing.SmokingAllowed,
		Amenities: listing.Amenities,
	}

	if listing.Deposit.IsPositive() {
		deposit := usd(listing.Deposit.StringFixed(2))
		p.Deposit = &deposit
	}
	for _, fee := range listing.Fees {
		frequency := "once"
		if fee.Recurring {
			frequency = "monthly"
		}
		p.Fees = append(p.Fees, feePayload{Name: fee.Name, Amount: usd(fee.Amount.StringFixed(2)), Frequency: frequency})
	}
	if listing.AvailableDate != nil {
		p.AvailableOn = listing.AvailableDate.Format("2006-01-02")
	}

	cover, _ := listing.PrimaryImage()
	p.Photos = make([]photoPayload, 0, len(listing.Images))
	for _, img := range listing.Images {
		p.Photos = append(p.Photos, photoPayload{URL: img.URL, Caption: img.Caption, Cover: img.URL == cover.URL})
	}

	if featured, ok := listing.Override("featured").(bool); ok {
		p.Featured = featured
	}
	if tour, ok := listing.Override("virtualTourUrl").(string); ok {
		p.VirtualTourURL = tour
	}

	return p, nil
}

func category(listing core.ListingData) string {
	if c, ok := listing.Override("category").(string); ok && c != "" {
		return c
	}
	switch listing.PropertyType {
	case "house", "single_family":
		return "house"
	case "condo", "townhouse":
		return listing.PropertyType
	case "room":
		return "room"
	default:
		return "apartment"
	}
}

func usd(amount string) moneyPayload {
	return moneyPayload{Amount: amount, Currency: "USD"}
}
