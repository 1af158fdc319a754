package engine

import (
	"fmt"
	"slices"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/gammazero/deque"
)

// Allocation is the trade list of a round plus the per-order bookkeeping
// a caller needs to settle it.
type Allocation struct {
	Trades []domain.Trade
	// Fills maps order id → quantity traded this round.
	Fills map[int64]int64
	// Residuals maps eligible order id → quantity left unfilled.
	Residuals map[int64]int64
}

// working is the mutable remaining quantity of one eligible order during
// allocation.
type working struct {
	order domain.Order
	left  int64
}

// Allocate pairs eligible orders at the quote's price. Sells are taken
// in (price asc, time asc) order and each is filled against buys in
// (price desc, time asc) order until it is exhausted. Every trade
// executes at the clearing price.
//
// The quote must come from ResolveClearingPrice on the same snapshot;
// otherwise domain.ErrAllocation is returned and no trades are produced.
func Allocate(snap Snapshot, q Quote) (Allocation, error) {
	if q.SnapshotVersion != snap.Version {
		return Allocation{}, fmt.Errorf("%w: quote for snapshot %d applied to snapshot %d",
			domain.ErrAllocation, q.SnapshotVersion, snap.Version)
	}
	if !isCandidate(snap, q) {
		return Allocation{}, fmt.Errorf("%w: price %s is not present in the snapshot",
			domain.ErrAllocation, q.Price)
	}
	buyVol, sellVol := volumesAt(snap.Orders, q.Price)
	if buyVol != q.BuyVolume || sellVol != q.SellVolume || min(buyVol, sellVol) != q.MatchedVolume {
		return Allocation{}, fmt.Errorf("%w: volumes at %s are %d/%d, quote says %d/%d matched %d",
			domain.ErrAllocation, q.Price, buyVol, sellVol, q.BuyVolume, q.SellVolume, q.MatchedVolume)
	}

	// Step 1: Select eligible orders. Each side of the snapshot is in
	// price-time priority, so the eligible orders form a prefix.
	var buys, sells []*working
	for _, o := range snap.Bids {
		if o.Price.LessThan(q.Price) {
			break
		}
		buys = append(buys, &working{order: o, left: o.Quantity})
	}
	for _, o := range snap.Asks {
		if o.Price.GreaterThan(q.Price) {
			break
		}
		sells = append(sells, &working{order: o, left: o.Quantity})
	}

	// Step 2: Greedy pairing. Buys are consumed from the front of the
	// queue as they are exhausted.
	var queue deque.Deque[*working]
	for _, b := range buys {
		queue.PushBack(b)
	}
	alloc := Allocation{
		Fills:     make(map[int64]int64),
		Residuals: make(map[int64]int64),
	}
	var traded int64
	for _, s := range sells {
		for s.left > 0 && queue.Len() > 0 {
			b := queue.Front()
			qty := min(s.left, b.left)
			if qty > 0 {
				alloc.Trades = append(alloc.Trades, domain.Trade{
					BuyOrderID:  b.order.ID,
					SellOrderID: s.order.ID,
					Buyer:       b.order.Participant,
					Seller:      s.order.Participant,
					Price:       q.Price,
					Quantity:    qty,
				})
				s.left -= qty
				b.left -= qty
				alloc.Fills[s.order.ID] += qty
				alloc.Fills[b.order.ID] += qty
				traded += qty
			}
			if b.left == 0 {
				queue.PopFront()
			}
		}
	}

	if traded != q.MatchedVolume {
		return Allocation{}, fmt.Errorf("%w: allocated %d, expected %d",
			domain.ErrAllocation, traded, q.MatchedVolume)
	}

	for _, w := range slices.Concat(buys, sells) {
		if w.left > 0 {
			alloc.Residuals[w.order.ID] = w.left
		}
	}
	return alloc, nil
}

func isCandidate(snap Snapshot, q Quote) bool {
	for _, o := range snap.Orders {
		if o.Price.Equal(q.Price) {
			return true
		}
	}
	return false
}
