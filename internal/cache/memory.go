package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memItem struct {
	v       []byte
	expires time.Time
	noexp   bool
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	clock clockwork.Clock
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock())
}

func NewMemoryStoreWithClock(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, clock: clock}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.items[key] = s.newItem(value, ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.items[key] = s.newItem(value, ttl)
	return true, nil
}

func (s *MemoryStore) DeleteIfEquals(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.liveLocked(key)
	if !ok || !bytes.Equal(it.v, value) {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (s *MemoryStore) ExpireIfEquals(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.liveLocked(key)
	if !ok || !bytes.Equal(it.v, value) {
		return false, nil
	}
	s.items[key] = s.newItem(it.v, ttl)
	return true, nil
}

// liveLocked returns the item for key, dropping it if expired.
func (s *MemoryStore) liveLocked(key string) (memItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return memItem{}, false
	}
	if !it.noexp && !s.clock.Now().Before(it.expires) {
		delete(s.items, key)
		return memItem{}, false
	}
	return it, true
}

func (s *MemoryStore) newItem(value []byte, ttl time.Duration) memItem {
	it := memItem{v: clone(value)}
	if ttl <= 0 {
		it.noexp = true
	} else {
		it.expires = s.clock.Now().Add(ttl)
	}
	return it
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
