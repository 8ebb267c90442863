package receipts

import (
	"context"
	"sync"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

// MemoryStore keeps receipts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Receipt
	byTx  map[string]string
	order []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]Receipt),
		byTx: make(map[string]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, r Receipt) (Receipt, error) {
	r = prepare(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byTx[r.TxID]; exists {
		return Receipt{}, errors.InvalidArgument("tx_id", "receipt already recorded")
	}
	s.byID[r.ID] = r
	s.byTx[r.TxID] = r.ID
	s.order = append(s.order, r.ID)
	return r, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Receipt{}, errors.NotFound("receipt", id)
	}
	return r, nil
}

func (s *MemoryStore) GetByTx(_ context.Context, txID string) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTx[txID]
	if !ok {
		return Receipt{}, errors.NotFound("receipt", txID)
	}
	return s.byID[id], nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := f.limit()
	out := make([]Receipt, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if r := s.byID[s.order[i]]; f.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
