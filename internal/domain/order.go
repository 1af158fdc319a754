package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts a side name in any letter case ("Buy", "SELL", ...).
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("side must be 'buy' or 'sell', got %q", s)}
}

// Order is one resting auction instruction. A buy price is the maximum
// the participant will pay, a sell price the minimum it will accept.
type Order struct {
	ID          int64
	Side        Side
	Price       decimal.Decimal
	Quantity    int64 // remaining; an order never rests with 0
	Participant string
	SubmittedAt time.Time
	Sequence    uint64 // book-wide stamp, orders equal SubmittedAt values
}

// OrderInput carries the caller-supplied fields of an insert or amend.
type OrderInput struct {
	Side        Side
	Price       decimal.Decimal
	Quantity    int64
	Participant string
}

// Validate checks the input and returns a copy with the participant
// trimmed. It returns a *ValidationError describing the first problem.
func (in OrderInput) Validate() (OrderInput, error) {
	if in.Side != SideBuy && in.Side != SideSell {
		return in, &ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if in.Price.IsNegative() {
		return in, &ValidationError{Message: "price must be >= 0"}
	}
	if in.Quantity <= 0 {
		return in, &ValidationError{Message: "quantity must be a positive integer"}
	}
	in.Participant = strings.TrimSpace(in.Participant)
	if in.Participant == "" {
		return in, &ValidationError{Message: "participant is required"}
	}
	return in, nil
}

// ParsePrice parses a decimal price string such as "10.50".
func ParsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &ValidationError{Message: fmt.Sprintf("price must be a decimal number, got %q", s)}
	}
	if p.IsNegative() {
		return decimal.Zero, &ValidationError{Message: "price must be >= 0"}
	}
	return p, nil
}
