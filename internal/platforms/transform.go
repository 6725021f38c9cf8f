package platforms

import (
	"fmt"
	"strings"

	"listingsync/internal/core"
)

// DefaultTransform maps a property record to a canonical listing. Adapters
// start from it and adjust platform-specific fields.
func DefaultTransform(p *core.Property) core.ListingData {
	country := p.Country
	if country == "" {
		country = "US"
	}

	listing := core.ListingData{
		Title:        listingTitle(p),
		Description:  strings.TrimSpace(p.Description),
		PropertyType: p.PropertyType,
		Address: core.Address{
			Street:     p.Street,
			Unit:       p.Unit,
			City:       p.City,
			State:      p.State,
			PostalCode: p.PostalCode,
			Country:    country,
		},
		Bedrooms:       p.Bedrooms,
		Bathrooms:      p.Bathrooms,
		AreaSqFt:       p.SquareFeet,
		Rent:           p.MonthlyRent,
		Deposit:        p.Deposit,
		AvailableDate:  p.AvailableFrom,
		LeaseMonths:    p.LeaseMonths,
		Images:         orderedImages(p.Images),
		Contact:        contactFor(p),
		PetPolicy:      petPolicy(p),
		SmokingAllowed: p.SmokingAllowed,
	}
	if len(p.Amenities) > 0 {
		listing.Amenities = append([]string(nil), p.Amenities...)
	}
	return listing
}

// listingTitle prefers the property name, falling back to a generated summary
func listingTitle(p *core.Property) string {
	name := strings.TrimSpace(p.Name)
	summary := summaryTitle(p)
	switch {
	case name == "":
		return summary
	case len(name) < 10 && summary != "":
		return name + " - " + summary
	default:
		return name
	}
}

func summaryTitle(p *core.Property) string {
	kind := p.PropertyType
	if kind == "" {
		kind = "Home"
	} else {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}

	var rooms string
	if p.Bedrooms == 0 {
		rooms = "Studio"
	} else {
		rooms = fmt.Sprintf("%d Bed", p.Bedrooms)
	}

	if p.City == "" {
		return fmt.Sprintf("%s %s for Rent", rooms, kind)
	}
	return fmt.Sprintf("%s %s in %s", rooms, kind, p.City)
}

// orderedImages puts the primary image first and guarantees exactly one primary
func orderedImages(images []core.Image) []core.Image {
	if len(images) == 0 {
		return nil
	}

	out := make([]core.Image, 0, len(images))
	primary := -1
	for i, img := range images {
		if img.Primary && primary < 0 {
			primary = i
		}
	}
	if primary < 0 {
		primary = 0
	}

	first := images[primary]
	first.Primary = true
	out = append(out, first)
	for i, img := range images {
		if i == primary {
			continue
		}
		img.Primary = false
		out = append(out, img)
	}
	return out
}

func contactFor(p *core.Property) core.Contact {
	c := core.Contact{Name: p.ContactName, Email: p.ContactEmail, Phone: p.ContactPhone}
	switch {
	case c.Email != "" && c.Phone != "":
		c.Method = core.ContactBoth
	case c.Phone != "":
		c.Method = core.ContactPhone
	default:
		c.Method = core.ContactEmail
	}
	return c
}

func petPolicy(p *core.Property) string {
	if p.PetPolicy != "" {
		return p.PetPolicy
	}
	if p.PetsAllowed {
		return "Pets allowed"
	}
	return "No pets"
}
