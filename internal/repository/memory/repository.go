package memory

import (
	"context"
	"sort"
	"sync"

	"gorm.io/datatypes"

	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

// Store is an in-memory implementation of repository.TokenRepository.
// Records are copied on the way in and out so callers never share state
// with the store.
type Store struct {
	mu      sync.RWMutex
	tokens  map[int]models.TokenRecord
	startPx map[int]models.StartPx
	states  map[string]models.SyncState
	nextID  uint64
}

var _ repository.TokenRepository = (*Store)(nil)

func New() *Store {
	return &Store{
		tokens:  make(map[int]models.TokenRecord),
		startPx: make(map[int]models.StartPx),
		states:  make(map[string]models.SyncState),
	}
}

func (s *Store) ListTokens(_ context.Context) ([]models.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TokenRecord, 0, len(s.tokens))
	for _, item := range s.tokens {
		out = append(out, cloneToken(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenIndex < out[j].TokenIndex })
	return out, nil
}

func (s *Store) GetTokenByIndex(_ context.Context, tokenIndex int) (*models.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.tokens[tokenIndex]
	if !ok {
		return nil, nil
	}
	out := cloneToken(item)
	return &out, nil
}

func (s *Store) InsertToken(_ context.Context, item *models.TokenRecord) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[item.TokenIndex]; exists {
		return repository.ErrDuplicateKey
	}
	s.nextID++
	item.ID = s.nextID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = item.LastUpdated
	}
	s.tokens[item.TokenIndex] = cloneToken(*item)
	return nil
}

func (s *Store) UpsertToken(_ context.Context, item *models.TokenRecord) (*models.TokenRecord, error) {
	if item == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneToken(*item)
	if prev, exists := s.tokens[item.TokenIndex]; exists {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
	} else {
		s.nextID++
		next.ID = s.nextID
		if next.CreatedAt.IsZero() {
			next.CreatedAt = next.LastUpdated
		}
	}
	s.tokens[item.TokenIndex] = next
	out := cloneToken(next)
	return &out, nil
}

func (s *Store) UpdateCurated(_ context.Context, tokenIndex int, patch models.Curated) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.tokens[tokenIndex]
	if !ok {
		return nil, nil
	}
	item.Curated = patch.WithDefaults(item.Curated)
	s.tokens[tokenIndex] = cloneToken(item)
	out := cloneToken(item)
	return &out, nil
}

func (s *Store) ListStartPx(_ context.Context) ([]models.StartPx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.StartPx, 0, len(s.startPx))
	for _, item := range s.startPx {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) InsertStartPx(_ context.Context, item *models.StartPx) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.startPx[item.Index]; exists {
		return false, nil
	}
	s.startPx[item.Index] = *item
	return true, nil
}

func (s *Store) GetSyncState(_ context.Context, scope string) (*models.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[scope]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *Store) SaveSyncState(_ context.Context, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *state
	if prev, ok := s.states[state.Scope]; ok && state.LastSuccessAt == nil {
		next.LastSuccessAt = prev.LastSuccessAt
		next.StatsJSON = prev.StatsJSON
	}
	s.states[state.Scope] = next
	return nil
}

func (s *Store) ListSyncStates(_ context.Context) ([]models.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SyncState, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func cloneToken(in models.TokenRecord) models.TokenRecord {
	out := in
	out.StartPx = cloneStr(in.StartPx)
	out.MarkPx = cloneStr(in.MarkPx)
	out.LaunchDate = cloneStr(in.LaunchDate)
	out.AuctionPrice = cloneStr(in.AuctionPrice)
	out.LaunchCircSupply = cloneStr(in.LaunchCircSupply)
	out.LaunchMarketCap = cloneStr(in.LaunchMarketCap)
	out.Curated = models.Curated{}.WithDefaults(in.Curated)
	if in.RawDetails != nil {
		out.RawDetails = datatypes.JSON(append([]byte(nil), in.RawDetails...))
	}
	return out
}

func cloneStr(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
