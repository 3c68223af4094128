package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/model"
)

// MemoryStore implements Backend with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	listings    map[uuid.UUID]model.ListingRecord
	logs        map[uuid.UUID]model.Log
	heldEntries map[uuid.UUID]model.HeldEntryRecord
	heldPrices  map[uuid.UUID]model.HeldPriceRecord
	ignorers    map[uuid.UUID]struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:    make(map[uuid.UUID]model.ListingRecord),
		logs:        make(map[uuid.UUID]model.Log),
		heldEntries: make(map[uuid.UUID]model.HeldEntryRecord),
		heldPrices:  make(map[uuid.UUID]model.HeldPriceRecord),
		ignorers:    make(map[uuid.UUID]struct{}),
	}
}

func (s *MemoryStore) Name() string                 { return "memory" }
func (s *MemoryStore) Init(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }
func (s *MemoryStore) Save(_ context.Context) error { return nil }

func (s *MemoryStore) AddListing(_ context.Context, rec model.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[rec.ID]; ok {
		return fmt.Errorf("listing %s already exists", rec.ID)
	}
	s.listings[rec.ID] = cloneListing(rec)
	return nil
}

func (s *MemoryStore) UpdateListing(_ context.Context, rec model.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[rec.ID]; !ok {
		return fmt.Errorf("listing %s: %w", rec.ID, ErrNotFound)
	}
	s.listings[rec.ID] = cloneListing(rec)
	return nil
}

func (s *MemoryStore) RemoveListing(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[id]; !ok {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	delete(s.listings, id)
	return nil
}

func (s *MemoryStore) Listings(_ context.Context) ([]model.ListingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ListingRecord, 0, len(s.listings))
	for _, rec := range s.listings {
		out = append(out, cloneListing(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddLog(_ context.Context, log model.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[log.ID] = log
	return nil
}

func (s *MemoryStore) RemoveLog(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[id]; !ok {
		return fmt.Errorf("log %s: %w", id, ErrNotFound)
	}
	delete(s.logs, id)
	return nil
}

func (s *MemoryStore) Logs(_ context.Context, owner uuid.UUID) ([]model.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Log
	for _, l := range s.logs {
		if l.Owner == owner {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddHeldEntry(_ context.Context, rec model.HeldEntryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.EntryBlob = append([]byte(nil), rec.EntryBlob...)
	s.heldEntries[rec.ID] = rec
	return nil
}

func (s *MemoryStore) RemoveHeldEntry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.heldEntries[id]; !ok {
		return fmt.Errorf("held entry %s: %w", id, ErrNotFound)
	}
	delete(s.heldEntries, id)
	return nil
}

func (s *MemoryStore) HeldEntries(_ context.Context) ([]model.HeldEntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HeldEntryRecord, 0, len(s.heldEntries))
	for _, rec := range s.heldEntries {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) AddHeldPrice(_ context.Context, rec model.HeldPriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heldPrices[rec.ID] = rec
	return nil
}

func (s *MemoryStore) RemoveHeldPrice(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.heldPrices[id]; !ok {
		return fmt.Errorf("held price %s: %w", id, ErrNotFound)
	}
	delete(s.heldPrices, id)
	return nil
}

func (s *MemoryStore) HeldPrices(_ context.Context) ([]model.HeldPriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HeldPriceRecord, 0, len(s.heldPrices))
	for _, rec := range s.heldPrices {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) AddIgnorer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ignorers[id] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveIgnorer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ignorers, id)
	return nil
}

func (s *MemoryStore) Ignorers(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(s.ignorers))
	for id := range s.ignorers {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, logs bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listings = make(map[uuid.UUID]model.ListingRecord)
	if logs {
		s.logs = make(map[uuid.UUID]model.Log)
	}
	return nil
}

// cloneListing copies the record so callers cannot mutate stored state.
func cloneListing(rec model.ListingRecord) model.ListingRecord {
	rec.EntryBlob = append([]byte(nil), rec.EntryBlob...)
	return rec
}
