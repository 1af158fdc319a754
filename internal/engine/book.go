package engine

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// OrderBookEntry is the priority key of one resting order.
type OrderBookEntry struct {
	Price       decimal.Decimal
	SubmittedAt time.Time
	Sequence    uint64
	OrderID     int64
}

func entryFor(o *domain.Order) OrderBookEntry {
	return OrderBookEntry{
		Price:       o.Price,
		SubmittedAt: o.SubmittedAt,
		Sequence:    o.Sequence,
		OrderID:     o.ID,
	}
}

// bidLess defines ordering for the buy side: price descending, then
// submitted_at ascending, then sequence ascending. Min() returns the
// best bid.
func bidLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return timeLess(a, b)
}

// askLess defines ordering for the sell side: price ascending, then
// submitted_at ascending, then sequence ascending. Min() returns the
// best ask.
func askLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return timeLess(a, b)
}

func timeLess(a, b OrderBookEntry) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.OrderID < b.OrderID
}

// ErrStaleSnapshot is returned when a round is settled against a book
// that changed after its snapshot was taken. It wraps
// domain.ErrAllocation; the round can be retried on a fresh snapshot.
var ErrStaleSnapshot = fmt.Errorf("%w: book changed since snapshot", domain.ErrAllocation)

// Snapshot is a detached copy of the book taken for one clearing round.
// Version identifies the book state it was taken from. Orders is in
// submission order; Bids and Asks hold the same orders per side, best
// first.
type Snapshot struct {
	Version uint64
	Orders  []domain.Order
	Bids    []domain.Order
	Asks    []domain.Order
}

// OrderBook holds the active orders of one auction venue. Orders are
// indexed by id, and each side is kept in price-time priority in a
// B-tree. All methods are safe for concurrent use.
type OrderBook struct {
	symbol  string
	mu      sync.Mutex
	bids    *btree.BTreeG[OrderBookEntry]
	asks    *btree.BTreeG[OrderBookEntry]
	orders  map[int64]*domain.Order
	lastID  int64  // highest id handed out since the last Clear
	seq     uint64 // monotonic priority stamp
	version uint64 // bumped on every mutation

	// Resting quantity per side, kept at or below MaxInt64 so no volume
	// sum over the book can overflow.
	bidVolume int64
	askVolume int64
}

// NewOrderBook creates an empty order book for the given venue symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewG[OrderBookEntry](degree, bidLess),
		asks:   btree.NewG[OrderBookEntry](degree, askLess),
		orders: make(map[int64]*domain.Order),
	}
}

// Symbol returns the venue symbol the book belongs to.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) tree(side domain.Side) *btree.BTreeG[OrderBookEntry] {
	if side == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) volume(side domain.Side) *int64 {
	if side == domain.SideBuy {
		return &ob.bidVolume
	}
	return &ob.askVolume
}

// checkVolume rejects an order whose quantity would push its side's
// total past MaxInt64.
func (ob *OrderBook) checkVolume(side domain.Side, qty int64) error {
	if *ob.volume(side) > math.MaxInt64-qty {
		return &domain.ValidationError{
			Message: fmt.Sprintf("total %s quantity on the book would exceed %d", side, int64(math.MaxInt64)),
		}
	}
	return nil
}

func (ob *OrderBook) index(o *domain.Order) {
	ob.orders[o.ID] = o
	ob.tree(o.Side).ReplaceOrInsert(entryFor(o))
	*ob.volume(o.Side) += o.Quantity
}

func (ob *OrderBook) unindex(o *domain.Order) {
	delete(ob.orders, o.ID)
	ob.tree(o.Side).Delete(entryFor(o))
	*ob.volume(o.Side) -= o.Quantity
}

// Insert validates the input, assigns the next id and stamps the order
// with now. It returns a copy of the stored order.
func (ob *OrderBook) Insert(in domain.OrderInput, now time.Time) (domain.Order, error) {
	in, err := in.Validate()
	if err != nil {
		return domain.Order{}, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if err := ob.checkVolume(in.Side, in.Quantity); err != nil {
		return domain.Order{}, err
	}
	ob.lastID++
	ob.seq++
	o := &domain.Order{
		ID:          ob.lastID,
		Side:        in.Side,
		Price:       in.Price,
		Quantity:    in.Quantity,
		Participant: in.Participant,
		SubmittedAt: now,
		Sequence:    ob.seq,
	}
	ob.index(o)
	ob.version++
	return *o, nil
}

// Amend replaces every field of an order except its id. Time priority
// resets to now, as if the order were cancelled and resubmitted.
func (ob *OrderBook) Amend(id int64, in domain.OrderInput, now time.Time) (domain.Order, error) {
	in, err := in.Validate()
	if err != nil {
		return domain.Order{}, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	// The tree key changes, so the entry must leave the tree first.
	ob.unindex(o)
	if err := ob.checkVolume(in.Side, in.Quantity); err != nil {
		ob.index(o)
		return domain.Order{}, err
	}
	ob.seq++
	o.Side = in.Side
	o.Price = in.Price
	o.Quantity = in.Quantity
	o.Participant = in.Participant
	o.SubmittedAt = now
	o.Sequence = ob.seq
	ob.index(o)
	ob.version++
	return *o, nil
}

// Cancel removes an order. It returns domain.ErrOrderNotFound if the id
// is unknown; callers wanting idempotent cancels check Contains first.
func (ob *OrderBook) Cancel(id int64) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	ob.unindex(o)
	ob.version++
	return nil
}

// Contains reports whether an order with the given id is active.
func (ob *OrderBook) Contains(id int64) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	_, ok := ob.orders[id]
	return ok
}

// Get returns a copy of an active order.
func (ob *OrderBook) Get(id int64) (domain.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

// Len returns the number of active orders.
func (ob *OrderBook) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.orders)
}

// Clear removes every order. Ids restart from 1 afterwards; callers that
// need ids unique across clears must track them externally.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.orders = make(map[int64]*domain.Order)
	ob.bidVolume, ob.askVolume = 0, 0
	ob.lastID = 0
	ob.version++
}

// Snapshot returns a detached copy of the active orders. Later
// mutations do not affect the returned slices.
func (ob *OrderBook) Snapshot() Snapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	snap := Snapshot{
		Version: ob.version,
		Bids:    ob.collect(ob.bids),
		Asks:    ob.collect(ob.asks),
	}
	snap.Orders = slices.Concat(snap.Bids, snap.Asks)
	sortBySubmission(snap.Orders)
	return snap
}

// collect copies one side's orders in tree (priority) order.
func (ob *OrderBook) collect(tree *btree.BTreeG[OrderBookEntry]) []domain.Order {
	orders := make([]domain.Order, 0, tree.Len())
	tree.Ascend(func(e OrderBookEntry) bool {
		orders = append(orders, *ob.orders[e.OrderID])
		return true
	})
	return orders
}

// Version returns the current mutation counter.
func (ob *OrderBook) Version() uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.version
}

// Restore puts back an order recovered from the journal, keeping its id,
// timestamp and sequence. The id and sequence counters advance past it.
func (ob *OrderBook) Restore(o domain.Order) error {
	if _, err := (domain.OrderInput{
		Side:        o.Side,
		Price:       o.Price,
		Quantity:    o.Quantity,
		Participant: o.Participant,
	}).Validate(); err != nil {
		return fmt.Errorf("restore order %d: %w", o.ID, err)
	}
	if o.ID <= 0 {
		return &domain.ValidationError{Message: fmt.Sprintf("restore order: invalid id %d", o.ID)}
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, ok := ob.orders[o.ID]; ok {
		return &domain.ValidationError{Message: fmt.Sprintf("restore order: duplicate id %d", o.ID)}
	}
	if err := ob.checkVolume(o.Side, o.Quantity); err != nil {
		return fmt.Errorf("restore order %d: %w", o.ID, err)
	}
	restored := o
	ob.index(&restored)
	if o.ID > ob.lastID {
		ob.lastID = o.ID
	}
	if o.Sequence > ob.seq {
		ob.seq = o.Sequence
	}
	ob.version++
	return nil
}

// LastID returns the highest id handed out since the last Clear.
func (ob *OrderBook) LastID() int64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.lastID
}

// AdvanceLastID raises the id high-water mark to at least id, so ids
// cancelled before a restart are not handed out again.
func (ob *OrderBook) AdvanceLastID(id int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if id > ob.lastID {
		ob.lastID = id
	}
}

// ApplyFills settles a clearing round: each order's quantity is reduced
// by its fill and orders reaching zero are removed. The book must still
// be at version; otherwise, or when any fill is unknown or larger than
// the remaining quantity, nothing is changed and domain.ErrAllocation is
// returned. It returns the ids of removed orders in ascending order.
func (ob *OrderBook) ApplyFills(version uint64, fills map[int64]int64) ([]int64, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if version != ob.version {
		return nil, fmt.Errorf("%w: version %d, now %d", ErrStaleSnapshot, version, ob.version)
	}
	for id, qty := range fills {
		o, ok := ob.orders[id]
		if !ok {
			return nil, fmt.Errorf("%w: fill for unknown order %d", domain.ErrAllocation, id)
		}
		if qty <= 0 || qty > o.Quantity {
			return nil, fmt.Errorf("%w: fill of %d exceeds order %d quantity %d",
				domain.ErrAllocation, qty, id, o.Quantity)
		}
	}

	var removed []int64
	for id, qty := range fills {
		o := ob.orders[id]
		o.Quantity -= qty
		*ob.volume(o.Side) -= qty
		if o.Quantity == 0 {
			ob.unindex(o)
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	if len(fills) > 0 {
		ob.version++
	}
	return removed, nil
}

func sortBySubmission(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		if a.Sequence != b.Sequence {
			if a.Sequence < b.Sequence {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})
}

// BookManager is a thread-safe map of venue symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// Get returns the book for symbol if one has been created.
func (bm *BookManager) Get(symbol string) (*OrderBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[symbol]
	return book, ok
}
