package store

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/efreitasn/callauction/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	orderPrefix  = "order/"
	lastIDPrefix = "lastid/"
)

// orderRecord is the journaled form of an active order.
type orderRecord struct {
	ID          int64           `json:"id"`
	Side        domain.Side     `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Participant string          `json:"participant"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Sequence    uint64          `json:"sequence"`
}

func recordFor(o domain.Order) orderRecord {
	return orderRecord{
		ID:          o.ID,
		Side:        o.Side,
		Price:       o.Price,
		Quantity:    o.Quantity,
		Participant: o.Participant,
		SubmittedAt: o.SubmittedAt,
		Sequence:    o.Sequence,
	}
}

func (r orderRecord) order() domain.Order {
	return domain.Order{
		ID:          r.ID,
		Side:        r.Side,
		Price:       r.Price,
		Quantity:    r.Quantity,
		Participant: r.Participant,
		SubmittedAt: r.SubmittedAt,
		Sequence:    r.Sequence,
	}
}

// BookState is the journaled content of one venue's book.
type BookState struct {
	Orders []domain.Order // by submission time
	LastID int64
}

// Journal persists the active orders of every venue in a pebble
// database so books survive a restart. Keys are order/<symbol>/<id>
// with zero-padded ids, plus lastid/<symbol> holding the id high-water
// mark. Every write is synced.
type Journal struct {
	mu sync.Mutex // held by every write; Save reads lastid before writing it
	db *pebble.DB
}

// OpenJournal opens or creates the journal in dir.
func OpenJournal(dir string) (*Journal, error) {
	return OpenJournalWithOptions(dir, &pebble.Options{})
}

// OpenJournalWithOptions opens the journal with explicit pebble
// options, e.g. an in-memory vfs for tests.
func OpenJournalWithOptions(dir string, opts *pebble.Options) (*Journal, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// Close flushes and closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Save writes an inserted or amended order and raises the venue's id
// high-water mark to its id.
func (j *Journal) Save(symbol string, o domain.Order) error {
	value, err := json.Marshal(recordFor(o))
	if err != nil {
		return fmt.Errorf("encode order %d: %w", o.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	last, err := j.lastID(symbol)
	if err != nil {
		return err
	}

	b := j.db.NewBatch()
	defer b.Close()
	if err := b.Set(orderKey(symbol, o.ID), value, nil); err != nil {
		return err
	}
	if o.ID > last {
		if err := b.Set(lastIDKey(symbol), []byte(strconv.FormatInt(o.ID, 10)), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// Delete removes cancelled orders.
func (j *Journal) Delete(symbol string, ids ...int64) error {
	return j.Settle(symbol, nil, ids)
}

// Settle records a clearing round in one batch: partially filled
// orders are rewritten with their remaining quantity and fully filled
// orders are removed.
func (j *Journal) Settle(symbol string, remaining []domain.Order, removed []int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	b := j.db.NewBatch()
	defer b.Close()

	for _, o := range remaining {
		value, err := json.Marshal(recordFor(o))
		if err != nil {
			return fmt.Errorf("encode order %d: %w", o.ID, err)
		}
		if err := b.Set(orderKey(symbol, o.ID), value, nil); err != nil {
			return err
		}
	}
	for _, id := range removed {
		if err := b.Delete(orderKey(symbol, id), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// ClearSymbol drops every order of a venue together with its id
// high-water mark.
func (j *Journal) ClearSymbol(symbol string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	prefix := orderPrefix + symbol + "/"
	b := j.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange([]byte(prefix), []byte(prefix+"~"), nil); err != nil {
		return err
	}
	if err := b.Delete(lastIDKey(symbol), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Load reads back the state of every venue in the journal.
func (j *Journal) Load() (map[string]*BookState, error) {
	states := make(map[string]*BookState)
	stateFor := func(symbol string) *BookState {
		s, ok := states[symbol]
		if !ok {
			s = &BookState{}
			states[symbol] = s
		}
		return s
	}

	err := j.scan(orderPrefix, func(key string, value []byte) error {
		symbol, _, ok := strings.Cut(key, "/")
		if !ok {
			return fmt.Errorf("malformed journal key %q", orderPrefix+key)
		}
		var rec orderRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode journal key %q: %w", orderPrefix+key, err)
		}
		s := stateFor(symbol)
		s.Orders = append(s.Orders, rec.order())
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = j.scan(lastIDPrefix, func(symbol string, value []byte) error {
		id, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("decode last id of %s: %w", symbol, err)
		}
		stateFor(symbol).LastID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range states {
		slices.SortFunc(s.Orders, func(a, b domain.Order) int {
			if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
				return c
			}
			if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}
	return states, nil
}

// scan calls fn for every key under prefix, with the prefix stripped.
func (j *Journal) scan(prefix string, fn func(key string, value []byte) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(strings.TrimPrefix(string(iter.Key()), prefix), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (j *Journal) lastID(symbol string) (int64, error) {
	val, closer, err := j.db.Get(lastIDKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return strconv.ParseInt(string(val), 10, 64)
}

func orderKey(symbol string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", orderPrefix, symbol, id))
}

func lastIDKey(symbol string) []byte {
	return []byte(lastIDPrefix + symbol)
}
