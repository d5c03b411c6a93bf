package production

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with RWMutex for thread-safe access; readers always receive
// clones so they observe either the pre- or post-mutation state.
type MemoryStore struct {
	mu          sync.RWMutex
	productions map[string]*Production
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory production store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		productions: make(map[string]*Production),
		now:         time.Now,
	}
}

// Register stores a clone of the production.
func (s *MemoryStore) Register(_ context.Context, p *Production, replace bool) error {
	if p == nil {
		return ErrInvalidProduction
	}
	if err := p.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.productions[p.CampaignID]; exists && !replace {
		return fmt.Errorf("%w: %s", ErrProductionExists, p.CampaignID)
	}
	stored := p.Clone()
	stored.LastUpdate = s.now()
	s.productions[p.CampaignID] = stored
	return nil
}

// Get retrieves a production by campaign ID.
// Returns a clone to prevent external mutations.
func (s *MemoryStore) Get(_ context.Context, campaignID string) (*Production, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.productions[campaignID]
	if !ok {
		return nil, ErrProductionNotFound
	}
	return p.Clone(), nil
}

// List returns all productions ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]*Production, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Production, 0, len(s.productions))
	for _, p := range s.productions {
		result = append(result, p.Clone())
	}
	slices.SortFunc(result, func(a, b *Production) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.CampaignID < b.CampaignID {
			return -1
		}
		return 1
	})
	return result, nil
}

// Mutate applies fn to a working copy of the clip and commits it only if the
// transition and the clip invariants hold.
func (s *MemoryStore) Mutate(_ context.Context, campaignID, clipID string, fn MutateFunc) (*Production, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.productions[campaignID]
	if !ok {
		return nil, ErrProductionNotFound
	}
	idx := p.ClipIndex(clipID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrClipNotFound, campaignID, clipID)
	}

	current := p.Clips[idx]
	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = current.ID

	if !CanTransition(current.Status, working.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, working.Status)
	}
	if err := checkInvariants(working); err != nil {
		return nil, fmt.Errorf("%w: clip %s in %s", err, clipID, working.Status)
	}
	if working.Status == StatusStarting && current.Status != StatusStarting && p.HasStarting() {
		return nil, fmt.Errorf("%w: another clip is already starting", ErrInvalidTransition)
	}

	p.Clips[idx] = working
	p.LastUpdate = s.now()
	return p.Clone(), nil
}

// Remove deletes a production from the store.
func (s *MemoryStore) Remove(_ context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.productions[campaignID]; !ok {
		return ErrProductionNotFound
	}
	delete(s.productions, campaignID)
	return nil
}
