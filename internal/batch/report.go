package batch

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/efreitasn/callauction/internal/engine"
	"github.com/shopspring/decimal"
)

// Report is the outcome of clearing one batch.
type Report struct {
	Orders    []domain.Order
	Depth     []engine.DepthLevel
	Cleared   bool // false when the batch had no executable volume
	Result    domain.ClearingResult
	Residuals map[int64]int64
}

// Clear runs a single auction round over the batch. Orders are stamped
// with now in input order, so earlier lines keep time priority. A batch
// without executable volume is not an error; the report says so.
func Clear(orders []domain.OrderInput, now time.Time) (Report, error) {
	book := engine.NewOrderBook("BATCH")
	for i, in := range orders {
		if _, err := book.Insert(in, now); err != nil {
			return Report{}, fmt.Errorf("order %d: %w", i+1, err)
		}
	}

	snap := book.Snapshot()
	rep := Report{
		Orders: snap.Orders,
		Depth:  engine.Depth(snap),
	}

	result, alloc, err := engine.Clear(snap)
	switch {
	case errors.Is(err, domain.ErrNoLiquidity):
		return rep, nil
	case err != nil:
		return Report{}, err
	}
	rep.Cleared = true
	rep.Result = result
	rep.Residuals = alloc.Residuals
	return rep, nil
}

// Print writes the depth table, the clearing price and the trade list.
func (r Report) Print(w io.Writer) error {
	if len(r.Orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders entered.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "--- Order Book Depth ---")
	fmt.Fprintln(tw, "Price\tSell Quantity\tBuy Quantity\t")
	for _, lvl := range r.Depth {
		fmt.Fprintf(tw, "%s\t%d\t%d\t\n", formatPrice(lvl.Price), lvl.SellQuantity, lvl.BuyQuantity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !r.Cleared {
		_, err := fmt.Fprint(w, "\nClearing Price: none, Matched Volume: 0\n\nNo trades matched.\n")
		return err
	}

	fmt.Fprintf(w, "\nClearing Price: %s, Matched Volume: %d\n",
		formatPrice(r.Result.ClearingPrice), r.Result.MatchedVolume)
	fmt.Fprint(w, "\n--- Matched Trades ---\n")
	fmt.Fprintln(tw, "Buyer\tSeller\tPrice\tQuantity\t")
	for _, t := range r.Result.Trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", t.Buyer, t.Seller, formatPrice(t.Price), t.Quantity)
	}
	return tw.Flush()
}

// formatPrice shows at least two decimal places.
func formatPrice(p decimal.Decimal) string {
	if p.Exponent() >= -2 {
		return p.StringFixed(2)
	}
	return p.String()
}
