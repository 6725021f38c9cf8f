package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PublicationStatus represents the state of a listing on one platform
type PublicationStatus string

const (
	PublicationStatusPending PublicationStatus = "pending"
	PublicationStatusActive  PublicationStatus = "active"
	PublicationStatusError   PublicationStatus = "error"
	PublicationStatusExpired PublicationStatus = "expired"
	PublicationStatusPaused  PublicationStatus = "paused"
)

var publicationTransitions = map[PublicationStatus][]PublicationStatus{
	PublicationStatusPending: {PublicationStatusActive, PublicationStatusError},
	PublicationStatusActive:  {PublicationStatusExpired, PublicationStatusPaused},
	PublicationStatusPaused:  {PublicationStatusActive},
	PublicationStatusError:   {PublicationStatusPending},
	PublicationStatusExpired: {PublicationStatusPending},
}

// IsValid reports whether s is one of the known wire values
func (s PublicationStatus) IsValid() bool {
	_, ok := publicationTransitions[s]
	return ok
}

// IsTerminal reports whether s can only be left through a new publish request
func (s PublicationStatus) IsTerminal() bool {
	return s == PublicationStatusError || s == PublicationStatusExpired
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s PublicationStatus) CanTransitionTo(next PublicationStatus) bool {
	for _, allowed := range publicationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParsePublicationStatus converts a wire string into a PublicationStatus
func ParsePublicationStatus(s string) (PublicationStatus, error) {
	status := PublicationStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown publication status %q", s)
	}
	return status, nil
}

// Publication tracks one property's listing on one platform
type Publication struct {
	ID            string
	UserID        string
	PropertyID    string
	Platform      string
	Status        PublicationStatus
	ExternalID    string
	ExternalURL   string
	Title         string
	Rent          decimal.Decimal
	AvailableDate *time.Time
	PublishedAt   *time.Time
	LastSyncAt    *time.Time
	ErrorCode     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the "<propertyId>-<platform>" key used in bulk results
func (p *Publication) Key() string {
	return PairKey(p.PropertyID, p.Platform)
}

// PairKey builds the bulk result key for a (property, platform) pair
func PairKey(propertyID, platform string) string {
	return propertyID + "-" + platform
}

// TransitionTo moves the publication to next, enforcing the state machine
func (p *Publication) TransitionTo(next PublicationStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

// MarkActive records a successful publish or resync
func (p *Publication) MarkActive(externalID, externalURL string, now time.Time) error {
	if err := p.TransitionTo(PublicationStatusActive, now); err != nil {
		return err
	}
	p.ExternalID = externalID
	p.ExternalURL = externalURL
	p.ErrorCode = ""
	p.ErrorMessage = ""
	p.PublishedAt = &now
	p.LastSyncAt = &now
	return nil
}

// MarkError records a failed publish. The external id is cleared.
func (p *Publication) MarkError(code, message string, now time.Time) error {
	if err := p.TransitionTo(PublicationStatusError, now); err != nil {
		return err
	}
	p.ExternalID = ""
	p.ExternalURL = ""
	p.ErrorCode = code
	p.ErrorMessage = message
	return nil
}

// Snapshot copies the listing fields kept on the publication record
func (p *Publication) Snapshot(listing *ListingData) {
	p.Title = listing.Title
	p.Rent = listing.Rent
	p.AvailableDate = listing.AvailableDate
}

// IsStale reports whether an active publication has not been synced since cutoff
func (p *Publication) IsStale(cutoff time.Time) bool {
	if p.Status != PublicationStatusActive {
		return false
	}
	return p.LastSyncAt == nil || p.LastSyncAt.Before(cutoff)
}
