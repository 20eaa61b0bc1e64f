package memstore

import (
	"context"
	"sync"

	"github.com/suPer8Hu/research-chat/internal/store"
)

// Store keeps blobs in process memory.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves int
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Saves reports how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
