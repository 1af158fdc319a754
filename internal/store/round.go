package store

import (
	"sync"

	"github.com/efreitasn/callauction/internal/domain"
)

// RoundStore is a thread-safe in-memory store for executed clearing
// rounds, with a primary index by round id and a secondary index by
// symbol. Rounds are append-only and chronological.
type RoundStore struct {
	mu       sync.RWMutex
	rounds   map[string]*domain.Round
	bySymbol map[string][]*domain.Round // symbol → rounds (chronological)
}

// NewRoundStore creates an empty RoundStore.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		rounds:   make(map[string]*domain.Round),
		bySymbol: make(map[string][]*domain.Round),
	}
}

// Append records an executed round.
func (s *RoundStore) Append(r domain.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneRound(r)
	s.rounds[r.RoundID] = &stored
	s.bySymbol[r.Symbol] = append(s.bySymbol[r.Symbol], &stored)
}

// Get retrieves a round by id. It returns domain.ErrRoundNotFound if
// the round does not exist.
func (s *RoundStore) Get(roundID string) (domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	return cloneRound(*r), nil
}

// ListBySymbol returns a symbol's rounds newest first. Pagination is
// 1-based. It returns the requested page and the total number of rounds
// for the symbol.
func (s *RoundStore) ListBySymbol(symbol string, page, limit int) ([]domain.Round, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.bySymbol[symbol]
	total := len(all)

	// Compare page numbers rather than offsets so a huge page cannot
	// overflow (page-1)*limit.
	if page < 1 || limit < 1 || page-1 >= (total+limit-1)/limit {
		return []domain.Round{}, total
	}
	start := (page - 1) * limit
	end := min(start+limit, total)

	result := make([]domain.Round, 0, end-start)
	for i := start; i < end; i++ {
		result = append(result, cloneRound(*all[total-1-i]))
	}
	return result, total
}

// cloneRound copies the slices of a round so callers cannot mutate
// stored state.
func cloneRound(r domain.Round) domain.Round {
	r.Result.Trades = append([]domain.Trade(nil), r.Result.Trades...)
	r.Filled = append([]int64(nil), r.Filled...)
	return r
}
