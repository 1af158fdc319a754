package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a single execution between a buy and a sell order at the
// round's clearing price.
type Trade struct {
	BuyOrderID  int64
	SellOrderID int64
	Buyer       string
	Seller      string
	Price       decimal.Decimal
	Quantity    int64
}

// ClearingResult is the outcome of one auction round. Trades are in
// allocation order.
type ClearingResult struct {
	ClearingPrice decimal.Decimal
	MatchedVolume int64
	Trades        []Trade
}

// TradedVolume sums the quantity over all trades.
func (r ClearingResult) TradedVolume() int64 {
	var total int64
	for _, t := range r.Trades {
		total += t.Quantity
	}
	return total
}

// Round is a settled clearing result recorded for a venue.
type Round struct {
	RoundID    string
	Symbol     string
	Result     ClearingResult
	Filled     []int64 // ids of orders fully consumed and removed
	ExecutedAt time.Time
}
