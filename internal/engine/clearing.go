package engine

import "github.com/efreitasn/callauction/internal/domain"

// Clear runs one auction round over snap: it resolves the clearing price
// and allocates trades at it. The snapshot is not modified; settling the
// allocation against a book is the caller's decision.
func Clear(snap Snapshot) (domain.ClearingResult, Allocation, error) {
	q, err := ResolveClearingPrice(snap)
	if err != nil {
		return domain.ClearingResult{}, Allocation{}, err
	}
	alloc, err := Allocate(snap, q)
	if err != nil {
		return domain.ClearingResult{}, Allocation{}, err
	}
	return domain.ClearingResult{
		ClearingPrice: q.Price,
		MatchedVolume: q.MatchedVolume,
		Trades:        alloc.Trades,
	}, alloc, nil
}
