package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TierResolver returns the request limit and window that apply to an owner.
// Account and subscription lookup live outside this package; the limiter
// only consumes the numbers.
type TierResolver interface {
	LimitFor(ctx context.Context, ownerID string) (limit int, window time.Duration, err error)
}

// Tier is a named limit.
type Tier struct {
	Limit  int
	Window time.Duration
}

// StaticTiers resolves limits from configuration: owners are assigned to
// named tiers, and everyone else gets the default tier.
//
// StaticTiers is safe for concurrent use; Update swaps the whole table so
// configuration reloads never expose a half-applied state.
type StaticTiers struct {
	mu          sync.RWMutex
	defaultTier string
	tiers       map[string]Tier
	owners      map[string]string
}

// NewStaticTiers creates a resolver. defaultTier must name an entry in tiers.
func NewStaticTiers(defaultTier string, tiers map[string]Tier, owners map[string]string) (*StaticTiers, error) {
	s := &StaticTiers{}
	if err := s.Update(defaultTier, tiers, owners); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces the tier table.
func (s *StaticTiers) Update(defaultTier string, tiers map[string]Tier, owners map[string]string) error {
	if _, ok := tiers[defaultTier]; !ok {
		return fmt.Errorf("default tier %q is not defined", defaultTier)
	}
	for name, tier := range tiers {
		if tier.Limit < 1 || tier.Window <= 0 {
			return fmt.Errorf("tier %q: limit must be >= 1 and window positive", name)
		}
	}
	for owner, name := range owners {
		if _, ok := tiers[name]; !ok {
			return fmt.Errorf("owner %q assigned to undefined tier %q", owner, name)
		}
	}

	tiersCopy := make(map[string]Tier, len(tiers))
	for k, v := range tiers {
		tiersCopy[k] = v
	}
	ownersCopy := make(map[string]string, len(owners))
	for k, v := range owners {
		ownersCopy[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaultTier = defaultTier
	s.tiers = tiersCopy
	s.owners = ownersCopy
	return nil
}

// LimitFor returns the owner's tier limit, or the default tier's.
func (s *StaticTiers) LimitFor(ctx context.Context, ownerID string) (int, time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.owners[ownerID]
	if !ok {
		name = s.defaultTier
	}
	tier := s.tiers[name]
	return tier.Limit, tier.Window, nil
}
