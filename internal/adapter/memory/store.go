// Package memory provides in-process hotspot and candidate stores for local
// runs, offline replay and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// HotspotStore is a thread-safe domain.HotspotStore kept in memory.
type HotspotStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.CompositeHotspot
	order []string // insertion order, which is also creation order
}

// NewHotspotStore returns an empty store.
func NewHotspotStore() *HotspotStore {
	return &HotspotStore{byID: make(map[string]domain.CompositeHotspot)}
}

// FindInBox returns the hotspots whose centroid lies in box, oldest first.
func (s *HotspotStore) FindInBox(_ context.Context, box domain.Box) ([]domain.CompositeHotspot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CompositeHotspot
	for _, id := range s.order {
		h := s.byID[id]
		if box.Contains(h.Coordinate()) {
			out = append(out, clone(h))
		}
	}
	return out, nil
}

// Get returns the hotspot with id or domain.ErrNotFound.
func (s *HotspotStore) Get(_ context.Context, id string) (domain.CompositeHotspot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.byID[id]
	if !ok {
		return domain.CompositeHotspot{}, domain.ErrNotFound
	}
	return clone(h), nil
}

// Save inserts or replaces h.
func (s *HotspotStore) Save(_ context.Context, h domain.CompositeHotspot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[h.ID]; !ok {
		s.order = append(s.order, h.ID)
	}
	s.byID[h.ID] = clone(h)
	return nil
}

// Hotspots returns every stored hotspot, oldest first.
func (s *HotspotStore) Hotspots() []domain.CompositeHotspot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CompositeHotspot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.byID[id]))
	}
	return out
}

// clone copies the reference fields so callers cannot mutate stored state.
func clone(h domain.CompositeHotspot) domain.CompositeHotspot {
	if h.AggregatedEmotions != nil {
		emotions := make(map[string]float64, len(h.AggregatedEmotions))
		for k, v := range h.AggregatedEmotions {
			emotions[k] = v
		}
		h.AggregatedEmotions = emotions
	}
	if h.EventTypes != nil {
		h.EventTypes = append([]string(nil), h.EventTypes...)
	}
	return h
}

// CandidateStore is a thread-safe domain.CandidateStore kept in memory.
type CandidateStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Candidate
	order []string
}

// NewCandidateStore returns an empty store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{byID: make(map[string]domain.Candidate)}
}

// SaveCandidates stores new candidates in arrival order. Candidates without
// an ID get a generated one; IDs already stored are left untouched.
func (s *CandidateStore) SaveCandidates(_ context.Context, candidates []domain.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, ok := s.byID[c.ID]; ok {
			continue
		}
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return nil
}

// ListPending returns up to limit pending candidates in arrival order.
func (s *CandidateStore) ListPending(_ context.Context, limit int) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Candidate
	for _, id := range s.order {
		c := s.byID[id]
		if c.Status != domain.StatusPending {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ApplyTransitions sets the status of each listed candidate. Unknown IDs are
// ignored.
func (s *CandidateStore) ApplyTransitions(_ context.Context, transitions []domain.StatusTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range transitions {
		c, ok := s.byID[t.CandidateID]
		if !ok {
			continue
		}
		c.Status = t.Status
		s.byID[t.CandidateID] = c
	}
	return nil
}

// Get returns the candidate with id or domain.ErrNotFound.
func (s *CandidateStore) Get(id string) (domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return domain.Candidate{}, domain.ErrNotFound
	}
	return c, nil
}
