// Package publisher announces settled clearing rounds on a Kafka topic.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// RoundEvent is the message value published for every settled round.
type RoundEvent struct {
	RoundID        string          `json:"round_id"`
	Symbol         string          `json:"symbol"`
	ClearingPrice  decimal.Decimal `json:"clearing_price"`
	MatchedVolume  int64           `json:"matched_volume"`
	Trades         []TradeEvent    `json:"trades"`
	FilledOrderIDs []int64         `json:"filled_order_ids"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

// TradeEvent is one execution inside a RoundEvent.
type TradeEvent struct {
	BuyOrderID  int64           `json:"buy_order_id"`
	SellOrderID int64           `json:"sell_order_id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
}

// NewRoundEvent converts a settled round into its wire form.
func NewRoundEvent(r domain.Round) RoundEvent {
	trades := make([]TradeEvent, len(r.Result.Trades))
	for i, t := range r.Result.Trades {
		trades[i] = TradeEvent{
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Buyer:       t.Buyer,
			Seller:      t.Seller,
			Price:       t.Price,
			Quantity:    t.Quantity,
		}
	}
	filled := r.Filled
	if filled == nil {
		filled = []int64{}
	}
	return RoundEvent{
		RoundID:        r.RoundID,
		Symbol:         r.Symbol,
		ClearingPrice:  r.Result.ClearingPrice,
		MatchedVolume:  r.Result.MatchedVolume,
		Trades:         trades,
		FilledOrderIDs: filled,
		ExecutedAt:     r.ExecutedAt,
	}
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes round events keyed by venue symbol, so every round of
// a venue lands on the same partition in execution order.
type Kafka struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafka creates a publisher writing synchronously to topic.
func NewKafka(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *Kafka {
	return newKafka(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, timeout, logger)
}

func newKafka(w messageWriter, timeout time.Duration, logger *slog.Logger) *Kafka {
	return &Kafka{writer: w, timeout: timeout, logger: logger}
}

// Publish writes one round event. The write is bounded by the
// configured timeout.
func (p *Kafka) Publish(ctx context.Context, r domain.Round) error {
	value, err := json.Marshal(NewRoundEvent(r))
	if err != nil {
		return fmt.Errorf("encode round %s: %w", r.RoundID, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.Symbol),
		Value: value,
	}); err != nil {
		p.logger.Error("failed to publish round",
			"round_id", r.RoundID,
			"symbol", r.Symbol,
			"error", err,
		)
		return fmt.Errorf("publish round %s: %w", r.RoundID, err)
	}
	return nil
}

// Close flushes pending writes and releases connections.
func (p *Kafka) Close() error {
	return p.writer.Close()
}

// Nop discards every round. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Round) error { return nil }

func (Nop) Close() error { return nil }
