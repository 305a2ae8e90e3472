package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/signal-monitor/internal/model"
)

// MemoryStore implements SignalStore and Directory with in-memory maps.
// Used for testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	signals     map[string]*model.Signal
	communities map[string]*model.Community
	channels    map[string][]model.Channel
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals:     make(map[string]*model.Signal),
		communities: make(map[string]*model.Community),
		channels:    make(map[string][]model.Channel),
	}
}

func (s *MemoryStore) CreateSignal(_ context.Context, sig *model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[sig.ID]; ok {
		return fmt.Errorf("signal %s already exists", sig.ID)
	}

	// Store a copy to avoid external mutation.
	c := sig.Clone()
	s.signals[sig.ID] = &c
	return nil
}

func (s *MemoryStore) GetSignal(_ context.Context, id string) (*model.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	c := sig.Clone()
	return &c, nil
}

func (s *MemoryStore) FindCandidates(_ context.Context) ([]model.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if IsCandidate(sig.Lifecycle) {
			out = append(out, sig.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ApplyUpdate(_ context.Context, id string, version int64, lc model.Lifecycle) (*model.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if sig.Version != version {
		return nil, fmt.Errorf("signal %s at version %d, expected %d: %w", id, sig.Version, version, ErrVersionConflict)
	}
	sig.Lifecycle = lc.Clone()
	sig.Version++
	c := sig.Clone()
	return &c, nil
}

func (s *MemoryStore) RequestManualClose(_ context.Context, id string) (*model.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if !sig.Lifecycle.IsManualCloseRequested {
		sig.Lifecycle.IsManualCloseRequested = true
		sig.Version++
	}
	c := sig.Clone()
	return &c, nil
}

// --- Directory ---

// PutCommunity inserts or replaces a community.
func (s *MemoryStore) PutCommunity(c model.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.HiredTraders = append([]string(nil), c.HiredTraders...)
	s.communities[c.ID] = &c
}

// PutChannel appends a channel to its community.
func (s *MemoryStore) PutChannel(ch model.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels[ch.CommunityID] = append(s.channels[ch.CommunityID], ch)
}

func (s *MemoryStore) CommunitiesHiringTrader(_ context.Context, traderID string) ([]model.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Community
	for _, c := range s.communities {
		if c.Hires(traderID) {
			cp := *c
			cp.HiredTraders = append([]string(nil), c.HiredTraders...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ActiveChannels(_ context.Context, communityID string) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Channel
	for _, ch := range s.channels[communityID] {
		if ch.Active {
			out = append(out, ch)
		}
	}
	return out, nil
}
