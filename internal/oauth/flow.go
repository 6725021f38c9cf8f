package oauth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrFlowNotFound   = errors.New("oauth flow not found")
	ErrStateCollision = errors.New("oauth state already in use")
)

// Flow is one pending authorization attempt, keyed by its state token
type Flow struct {
	State        string    `json:"state"`
	Platform     string    `json:"platform"`
	UserID       string    `json:"user_id"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	RedirectURI  string    `json:"redirect_uri"`
	ReturnURL    string    `json:"return_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the flow is past its TTL at now
func (f *Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// FlowStore persists pending flows. Take must be an atomic get-and-delete
// so a state can be consumed at most once.
type FlowStore interface {
	Save(ctx context.Context, flow *Flow) error
	Take(ctx context.Context, state string) (*Flow, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryFlowStore keeps flows in process memory (single-instance deployments)
type MemoryFlowStore struct {
	mu    sync.Mutex
	flows map[string]*Flow
}

// NewMemoryFlowStore creates an empty in-memory flow store
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: make(map[string]*Flow),
	}
}

// Save stores a flow, refusing to overwrite an existing state
func (s *MemoryFlowStore) Save(ctx context.Context, flow *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flows[flow.State]; exists {
		return ErrStateCollision
	}
	copied := *flow
	s.flows[flow.State] = &copied
	return nil
}

// Take returns the flow for state and removes it
func (s *MemoryFlowStore) Take(ctx context.Context, state string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, exists := s.flows[state]
	if !exists {
		return nil, ErrFlowNotFound
	}
	delete(s.flows, state)
	return flow, nil
}

// DeleteExpired removes every flow past its expiry and returns how many were removed
func (s *MemoryFlowStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, flow := range s.flows {
		if flow.Expired(now) {
			delete(s.flows, state)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending flows
func (s *MemoryFlowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

var _ FlowStore = (*MemoryFlowStore)(nil)
