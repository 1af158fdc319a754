package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/efreitasn/callauction/internal/engine"
	"github.com/efreitasn/callauction/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// Journal persists active orders. *store.Journal implements it.
type Journal interface {
	Save(symbol string, o domain.Order) error
	Delete(symbol string, ids ...int64) error
	Settle(symbol string, remaining []domain.Order, removed []int64) error
	ClearSymbol(symbol string) error
	Load() (map[string]*store.BookState, error)
}

// Publisher announces settled rounds.
type Publisher interface {
	Publish(ctx context.Context, r domain.Round) error
}

// SubmitOrderRequest represents the input for order submission and
// amendment.
type SubmitOrderRequest struct {
	Side        domain.Side
	Price       decimal.Decimal
	Quantity    int64
	Participant string
}

func (r SubmitOrderRequest) input() domain.OrderInput {
	return domain.OrderInput{
		Side:        r.Side,
		Price:       r.Price,
		Quantity:    r.Quantity,
		Participant: r.Participant,
	}
}

// DepthResponse is the aggregated view of one venue's book.
type DepthResponse struct {
	Symbol string
	Levels []engine.DepthLevel // ascending price, both sides
	Bids   []engine.PriceLevel // best first
	Asks   []engine.PriceLevel // best first
}

// AuctionService runs call auctions for any number of venues. Each venue
// owns an order book. Every write to a venue (order changes, clears and
// rounds) holds the venue lock across the book mutation and its journal
// write, so the journal sees mutations in the order the book applied
// them.
type AuctionService struct {
	books     *engine.BookManager
	rounds    *store.RoundStore
	journal   Journal   // nil keeps books in memory only
	publisher Publisher // nil disables round publishing
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	venueLocks map[string]*sync.Mutex
}

// NewAuctionService creates a new AuctionService with the given
// dependencies. journal and publisher may be nil.
func NewAuctionService(
	books *engine.BookManager,
	rounds *store.RoundStore,
	journal Journal,
	publisher Publisher,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		books:      books,
		rounds:     rounds,
		journal:    journal,
		publisher:  publisher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		venueLocks: make(map[string]*sync.Mutex),
	}
}

func validateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return &domain.ValidationError{Message: "symbol must match ^[A-Z0-9]{1,16}$"}
	}
	return nil
}

// book returns the venue's book, or domain.ErrSymbolNotFound if no
// order was ever submitted to it.
func (s *AuctionService) book(symbol string) (*engine.OrderBook, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	ob, ok := s.books.Get(symbol)
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}
	return ob, nil
}

// lockVenue acquires the venue's write lock and returns its unlock.
func (s *AuctionService) lockVenue(symbol string) func() {
	s.mu.Lock()
	l, ok := s.venueLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.venueLocks[symbol] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// SubmitOrder validates the request and adds the order to the venue's
// book, opening the venue on first use.
func (s *AuctionService) SubmitOrder(ctx context.Context, symbol string, req SubmitOrderRequest) (domain.Order, error) {
	if err := validateSymbol(symbol); err != nil {
		return domain.Order{}, err
	}

	defer s.lockVenue(symbol)()

	o, err := s.books.GetOrCreate(symbol).Insert(req.input(), s.now())
	if err != nil {
		return domain.Order{}, err
	}
	s.journalSave(symbol, o)
	s.logger.DebugContext(ctx, "order submitted",
		"symbol", symbol,
		"order_id", o.ID,
		"side", o.Side,
		"price", o.Price.String(),
		"quantity", o.Quantity,
	)
	return o, nil
}

// AmendOrder replaces an order's terms. The order keeps its id but is
// re-stamped, so it loses time priority.
func (s *AuctionService) AmendOrder(ctx context.Context, symbol string, id int64, req SubmitOrderRequest) (domain.Order, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return domain.Order{}, err
	}

	defer s.lockVenue(symbol)()

	o, err := ob.Amend(id, req.input(), s.now())
	if err != nil {
		return domain.Order{}, err
	}
	s.journalSave(symbol, o)
	s.logger.DebugContext(ctx, "order amended", "symbol", symbol, "order_id", id)
	return o, nil
}

// CancelOrder removes an order from the venue's book.
func (s *AuctionService) CancelOrder(ctx context.Context, symbol string, id int64) error {
	ob, err := s.book(symbol)
	if err != nil {
		return err
	}
	defer s.lockVenue(symbol)()

	if err := ob.Cancel(id); err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.Delete(symbol, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to journal cancel", "symbol", symbol, "order_id", id, "error", err)
		}
	}
	s.logger.DebugContext(ctx, "order cancelled", "symbol", symbol, "order_id", id)
	return nil
}

// GetOrder retrieves an active order by id.
func (s *AuctionService) GetOrder(symbol string, id int64) (domain.Order, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	return ob.Get(id)
}

// ListOrders returns the venue's active orders by submission time.
func (s *AuctionService) ListOrders(symbol string) ([]domain.Order, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return nil, err
	}
	return ob.Snapshot().Orders, nil
}

// ClearBook removes every order of a venue. Ids restart from 1.
func (s *AuctionService) ClearBook(ctx context.Context, symbol string) error {
	ob, err := s.book(symbol)
	if err != nil {
		return err
	}

	defer s.lockVenue(symbol)()

	ob.Clear()
	if s.journal != nil {
		if err := s.journal.ClearSymbol(symbol); err != nil {
			s.logger.ErrorContext(ctx, "failed to journal clear", "symbol", symbol, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "book cleared", "symbol", symbol)
	return nil
}

// GetDepth aggregates the venue's book by price level.
func (s *AuctionService) GetDepth(symbol string) (DepthResponse, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return DepthResponse{}, err
	}
	snap := ob.Snapshot()
	return DepthResponse{
		Symbol: symbol,
		Levels: engine.Depth(snap),
		Bids:   engine.SideDepth(snap, domain.SideBuy),
		Asks:   engine.SideDepth(snap, domain.SideSell),
	}, nil
}

// IndicativePrice reports the price a round would clear at right now
// without executing it.
func (s *AuctionService) IndicativePrice(symbol string) (engine.Quote, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return engine.Quote{}, err
	}
	return engine.ResolveClearingPrice(ob.Snapshot())
}

// RunClearing executes one auction round on the venue: it clears a
// snapshot of the book, settles the fills, records the round, journals
// the changed orders and publishes the result. With no executable
// volume it returns domain.ErrNoLiquidity and the book is unchanged.
func (s *AuctionService) RunClearing(ctx context.Context, symbol string) (*domain.Round, error) {
	ob, err := s.book(symbol)
	if err != nil {
		return nil, err
	}

	round, err := s.settleRound(ctx, ob)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "auction round executed",
		"symbol", symbol,
		"round_id", round.RoundID,
		"clearing_price", round.Result.ClearingPrice.String(),
		"matched_volume", round.Result.MatchedVolume,
		"trades", len(round.Result.Trades),
	)

	// Publishing happens outside the venue lock so a slow broker does
	// not stall order entry.
	if s.publisher != nil {
		if err := s.publisher.Publish(context.WithoutCancel(ctx), round); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish round", "round_id", round.RoundID, "error", err)
		}
	}
	return &round, nil
}

// settleRound clears the book and applies the result under the venue
// lock.
func (s *AuctionService) settleRound(ctx context.Context, ob *engine.OrderBook) (domain.Round, error) {
	defer s.lockVenue(ob.Symbol())()

	// No order can change between the snapshot and settlement while the
	// venue lock is held; ApplyFills still refuses a stale snapshot.
	snap := ob.Snapshot()
	result, alloc, err := engine.Clear(snap)
	if err != nil {
		return domain.Round{}, err
	}
	removed, err := ob.ApplyFills(snap.Version, alloc.Fills)
	if err != nil {
		return domain.Round{}, err
	}

	round := domain.Round{
		RoundID:    uuid.New().String(),
		Symbol:     ob.Symbol(),
		Result:     result,
		Filled:     removed,
		ExecutedAt: s.now(),
	}
	s.rounds.Append(round)
	s.journalSettle(ctx, ob, alloc, removed)
	return round, nil
}

// ListRounds returns a venue's executed rounds, newest first.
func (s *AuctionService) ListRounds(symbol string, page, limit int) ([]domain.Round, int, error) {
	if _, err := s.book(symbol); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}
	rounds, total := s.rounds.ListBySymbol(symbol, page, limit)
	return rounds, total, nil
}

// GetRound retrieves an executed round by id.
func (s *AuctionService) GetRound(roundID string) (domain.Round, error) {
	return s.rounds.Get(roundID)
}

// Restore reloads journaled orders into their venues' books. It is
// called once at startup before serving requests.
func (s *AuctionService) Restore(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	states, err := s.journal.Load()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	for symbol, st := range states {
		if err := validateSymbol(symbol); err != nil {
			s.logger.WarnContext(ctx, "skipping journaled venue", "symbol", symbol, "error", err)
			continue
		}
		ob := s.books.GetOrCreate(symbol)
		for _, o := range st.Orders {
			if err := ob.Restore(o); err != nil {
				return fmt.Errorf("restore %s: %w", symbol, err)
			}
		}
		ob.AdvanceLastID(st.LastID)
		s.logger.InfoContext(ctx, "venue restored", "symbol", symbol, "orders", len(st.Orders), "last_id", ob.LastID())
	}
	return nil
}

func (s *AuctionService) journalSave(symbol string, o domain.Order) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(symbol, o); err != nil {
		s.logger.Error("failed to journal order", "symbol", symbol, "order_id", o.ID, "error", err)
	}
}

// journalSettle writes the remaining quantity of partially filled orders
// and drops the fully filled ones.
func (s *AuctionService) journalSettle(ctx context.Context, ob *engine.OrderBook, alloc engine.Allocation, removed []int64) {
	if s.journal == nil {
		return
	}
	gone := make(map[int64]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}
	var remaining []domain.Order
	for id := range alloc.Fills {
		if gone[id] {
			continue
		}
		if o, err := ob.Get(id); err == nil {
			remaining = append(remaining, o)
		}
	}
	if err := s.journal.Settle(ob.Symbol(), remaining, removed); err != nil {
		s.logger.ErrorContext(ctx, "failed to journal round", "symbol", ob.Symbol(), "error", err)
	}
}
