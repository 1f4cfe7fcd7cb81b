package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
)

// InMemoryStore is a volatile RunStore implementation storing runs in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Runs are cloned on the way in and on the
// way out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*core.Run
}

// NewInMemoryStore constructs an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*core.Run)}
}

// Save stores a snapshot of the run, replacing any previous record.
func (s *InMemoryStore) Save(_ context.Context, run *core.Run) error {
	snapshot := run.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[snapshot.ID] = snapshot

	return nil
}

// FindByID returns a clone of the stored run or core.ErrRunNotFound.
func (s *InMemoryStore) FindByID(_ context.Context, runID string) (*core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, core.ErrRunNotFound
	}
	return run.Clone(), nil
}

// FindByUser lists the user's runs newest first, narrowed by filter.
func (s *InMemoryStore) FindByUser(_ context.Context, userID string, filter core.RunFilter) ([]*core.Run, error) {
	s.mu.RLock()

	matched := make([]*core.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if run.UserID != userID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		matched = append(matched, run)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Created.After(matched[j].Created)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*core.Run{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]*core.Run, len(matched))
	for i, run := range matched {
		out[i] = run.Clone()
	}
	return out, nil
}

// DeleteOlderThan removes terminal runs whose last update is older than age.
func (s *InMemoryStore) DeleteOlderThan(_ context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, run := range s.runs {
		if run.Status.Terminal() && run.Updated.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed, nil
}
