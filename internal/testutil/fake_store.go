package testutil

import (
	"context"
	"sync"

	gateway "github.com/bastionlabs/bastion/internal"
)

// FakeStore is an in-memory client directory for testing. A miss returns
// (nil, nil), matching the store contract.
type FakeStore struct {
	mu      sync.RWMutex
	clients map[string]*gateway.ClientRecord
	err     error
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{clients: make(map[string]*gateway.ClientRecord)}
}

// Add inserts a client record keyed by its API key.
func (s *FakeStore) Add(c *gateway.ClientRecord) {
	s.mu.Lock()
	s.clients[c.APIKey] = c
	s.mu.Unlock()
}

// Fail makes every lookup return err.
func (s *FakeStore) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// GetByAPIKey looks up a client record by API key.
func (s *FakeStore) GetByAPIKey(_ context.Context, apiKey string) (*gateway.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Normalize()
	return &cp, nil
}
