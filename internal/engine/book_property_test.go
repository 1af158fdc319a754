package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// Feature: call-auction, Property 1: Order book priority invariant

// genInput generates an order input with a price on a 0.25 grid so that
// price levels collide often.
func genInput(side domain.Side) *rapid.Generator[domain.OrderInput] {
	return rapid.Custom(func(t *rapid.T) domain.OrderInput {
		ticks := rapid.Int64Range(0, 40).Draw(t, "ticks")
		return domain.OrderInput{
			Side:        side,
			Price:       decimal.New(ticks*25, -2),
			Quantity:    rapid.Int64Range(1, 1000).Draw(t, "quantity"),
			Participant: rapid.SampledFrom([]string{"Alice", "Bob", "Carol", "Dave"}).Draw(t, "participant"),
		}
	})
}

// genStamp uses a small range of seconds to encourage timestamp
// collisions and exercise the sequence tiebreak.
func genStamp(t *rapid.T, label string) time.Time {
	return baseTime.Add(time.Duration(rapid.IntRange(0, 20).Draw(t, label)) * time.Second)
}

func TestProperty_BidSidePriorityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "numOrders")
		book := NewOrderBook("TEST")

		for i := 0; i < n; i++ {
			in := genInput(domain.SideBuy).Draw(t, fmt.Sprintf("bid-%d", i))
			if _, err := book.Insert(in, genStamp(t, fmt.Sprintf("stamp-%d", i))); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		var prev *domain.Order
		bids := book.Snapshot().Bids
		for _, o := range bids {
			if prev != nil {
				if o.Price.GreaterThan(prev.Price) {
					t.Fatalf("bid side: price should be descending, got %s after %s", o.Price, prev.Price)
				}
				if o.Price.Equal(prev.Price) {
					if o.SubmittedAt.Before(prev.SubmittedAt) {
						t.Fatalf("bid side: same price %s, submitted_at should be ascending", o.Price)
					}
					if o.SubmittedAt.Equal(prev.SubmittedAt) && o.Sequence < prev.Sequence {
						t.Fatalf("bid side: same price and time, sequence should be ascending")
					}
				}
			}
			cur := o
			prev = &cur
		}
		if len(bids) != n {
			t.Fatalf("snapshot has %d bids, want %d", len(bids), n)
		}
	})
}

func TestProperty_AskSidePriorityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "numOrders")
		book := NewOrderBook("TEST")

		for i := 0; i < n; i++ {
			in := genInput(domain.SideSell).Draw(t, fmt.Sprintf("ask-%d", i))
			if _, err := book.Insert(in, genStamp(t, fmt.Sprintf("stamp-%d", i))); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		var prev *domain.Order
		for _, o := range book.Snapshot().Asks {
			if prev != nil {
				if o.Price.LessThan(prev.Price) {
					t.Fatalf("ask side: price should be ascending, got %s after %s", o.Price, prev.Price)
				}
				if o.Price.Equal(prev.Price) {
					if o.SubmittedAt.Before(prev.SubmittedAt) {
						t.Fatalf("ask side: same price %s, submitted_at should be ascending", o.Price)
					}
					if o.SubmittedAt.Equal(prev.SubmittedAt) && o.Sequence < prev.Sequence {
						t.Fatalf("ask side: same price and time, sequence should be ascending")
					}
				}
			}
			cur := o
			prev = &cur
		}
	})
}

// Feature: call-auction, Property 2: Index and trees stay in sync under
// random insert/amend/cancel sequences.

func TestProperty_BookIndexConsistency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST")
		live := map[int64]bool{}
		steps := rapid.IntRange(1, 80).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			now := genStamp(t, fmt.Sprintf("stamp-%d", i))
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, fmt.Sprintf("side-%d", i))
			in := genInput(side).Draw(t, fmt.Sprintf("input-%d", i))

			switch rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("op-%d", i)) {
			case 0:
				o, err := book.Insert(in, now)
				if err != nil {
					t.Fatalf("Insert: %v", err)
				}
				if live[o.ID] {
					t.Fatalf("id %d reused while live", o.ID)
				}
				live[o.ID] = true
			case 1:
				id := rapid.Int64Range(1, int64(steps)).Draw(t, fmt.Sprintf("amend-%d", i))
				_, err := book.Amend(id, in, now)
				if live[id] != (err == nil) {
					t.Fatalf("Amend(%d) err=%v, live=%v", id, err, live[id])
				}
			case 2:
				id := rapid.Int64Range(1, int64(steps)).Draw(t, fmt.Sprintf("cancel-%d", i))
				err := book.Cancel(id)
				if live[id] != (err == nil) {
					t.Fatalf("Cancel(%d) err=%v, live=%v", id, err, live[id])
				}
				delete(live, id)
			}
		}

		if book.Len() != len(live) {
			t.Fatalf("Len() = %d, want %d", book.Len(), len(live))
		}
		snap := book.Snapshot()
		if len(snap.Bids)+len(snap.Asks) != len(live) || len(snap.Orders) != len(live) {
			t.Fatalf("tree sizes %d+%d do not match %d live orders",
				len(snap.Bids), len(snap.Asks), len(live))
		}
		for _, o := range snap.Orders {
			if !live[o.ID] {
				t.Fatalf("snapshot contains dead order %d", o.ID)
			}
		}
	})
}
