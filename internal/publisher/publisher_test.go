package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRound() domain.Round {
	price := decimal.RequireFromString("10.25")
	return domain.Round{
		RoundID: "round-1",
		Symbol:  "ACME",
		Result: domain.ClearingResult{
			ClearingPrice: price,
			MatchedVolume: 1000,
			Trades: []domain.Trade{
				{BuyOrderID: 1, SellOrderID: 3, Buyer: "Alice", Seller: "Bob", Price: price, Quantity: 700},
				{BuyOrderID: 1, SellOrderID: 4, Buyer: "Alice", Seller: "Dave", Price: price, Quantity: 300},
			},
		},
		Filled:     []int64{1, 3},
		ExecutedAt: time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC),
	}
}

func TestKafka_PublishKeysBySymbol(t *testing.T) {
	w := &fakeWriter{}
	p := newKafka(w, time.Second, discardLogger())

	require.NoError(t, p.Publish(context.Background(), testRound()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ACME", string(w.msgs[0].Key))
	assert.True(t, w.deadline, "publish should be bounded by the timeout")

	var ev RoundEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "round-1", ev.RoundID)
	assert.True(t, ev.ClearingPrice.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, int64(1000), ev.MatchedVolume)
	require.Len(t, ev.Trades, 2)
	assert.Equal(t, "Dave", ev.Trades[1].Seller)
	assert.Equal(t, []int64{1, 3}, ev.FilledOrderIDs)
}

func TestKafka_PricesAreJSONStrings(t *testing.T) {
	w := &fakeWriter{}
	p := newKafka(w, 0, discardLogger())
	require.NoError(t, p.Publish(context.Background(), testRound()))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &raw))
	assert.Equal(t, "10.25", raw["clearing_price"])
	assert.False(t, w.deadline, "zero timeout leaves the context alone")
}

func TestKafka_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafka(&fakeWriter{err: boom}, time.Second, discardLogger())

	err := p.Publish(context.Background(), testRound())
	assert.ErrorIs(t, err, boom)
}

func TestKafka_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newKafka(w, time.Second, discardLogger()).Close())
	assert.True(t, w.closed)
}

func TestNewRoundEvent_EmptyFilled(t *testing.T) {
	r := testRound()
	r.Filled = nil
	assert.NotNil(t, NewRoundEvent(r).FilledOrderIDs)
}

func TestNop(t *testing.T) {
	var n Nop
	assert.NoError(t, n.Publish(context.Background(), testRound()))
	assert.NoError(t, n.Close())
}
