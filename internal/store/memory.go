package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stockdash/trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*model.UserBalance
	holdings map[string]map[string]*model.Holding // userID → symbol → holding
	txs      []model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*model.UserBalance),
		holdings: make(map[string]map[string]*model.Holding),
	}
}

func (s *MemoryStore) CreateBalance(_ context.Context, b *model.UserBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balances[b.UserID]; exists {
		return fmt.Errorf("balance for %s already exists", b.UserID)
	}

	// Store a copy to avoid external mutation.
	copy := *b
	s.balances[b.UserID] = &copy
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*model.UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance for %s: %w", userID, ErrNotFound)
	}
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) GetHolding(_ context.Context, userID, symbol string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[userID][symbol]
	if !ok {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, symbol, ErrNotFound)
	}
	copy := *h
	return &copy, nil
}

func (s *MemoryStore) GetHoldingsByUser(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holdings []model.Holding
	for _, h := range s.holdings[userID] {
		holdings = append(holdings, *h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (s *MemoryStore) ApplySettlement(_ context.Context, set *Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.balances[set.UserID]
	if !ok {
		return fmt.Errorf("balance for %s: %w", set.UserID, ErrNotFound)
	}
	// Same re-check the Postgres store does under FOR UPDATE.
	if !current.CashBalance.Equal(set.ExpectedCashBalance) {
		return fmt.Errorf("balance for %s moved from %s to %s: %w",
			set.UserID, set.ExpectedCashBalance, current.CashBalance, ErrStaleBalance)
	}

	newBal := set.NewCashBalance
	s.balances[set.UserID] = &newBal

	switch {
	case set.Holding != nil:
		if s.holdings[set.UserID] == nil {
			s.holdings[set.UserID] = make(map[string]*model.Holding)
		}
		h := *set.Holding
		s.holdings[set.UserID][h.Symbol] = &h
	case set.DeleteHoldingSymbol != "":
		delete(s.holdings[set.UserID], set.DeleteHoldingSymbol)
	}

	s.txs = append(s.txs, *set.Transaction)
	return nil
}

func (s *MemoryStore) GetTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, t := range s.txs {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	// Newest first, matching the Postgres ordering.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
