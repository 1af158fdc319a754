package batch

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var batchTime = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

func TestClear_ReportsTradesAndDepth(t *testing.T) {
	res, err := ReadLines(strings.NewReader(`Buy 10.50 1000 Alice
Buy 10.00 500 Carol
Sell 9.75 700 Bob
Sell 10.00 400 Dave
`))
	require.NoError(t, err)

	rep, err := Clear(res.Orders, batchTime)
	require.NoError(t, err)
	require.True(t, rep.Cleared)
	assert.Equal(t, "10", rep.Result.ClearingPrice.String())
	assert.Equal(t, int64(1100), rep.Result.MatchedVolume)
	require.Len(t, rep.Result.Trades, 3)
	assert.Equal(t, int64(400), rep.Residuals[2], "Carol keeps 400")

	var buf bytes.Buffer
	require.NoError(t, rep.Print(&buf))
	out := buf.String()
	assert.Contains(t, out, "--- Order Book Depth ---")
	assert.Contains(t, out, "Clearing Price: 10.00, Matched Volume: 1100")
	assert.Contains(t, out, "--- Matched Trades ---")
	assert.Contains(t, out, "Carol")
	assert.Less(t, strings.Index(out, "9.75"), strings.Index(out, "10.50"), "depth is ascending by price")
}

func TestClear_NoLiquidity(t *testing.T) {
	res, err := ReadLines(strings.NewReader("Buy 9 10 Alice\nSell 10 10 Bob\n"))
	require.NoError(t, err)

	rep, err := Clear(res.Orders, batchTime)
	require.NoError(t, err)
	assert.False(t, rep.Cleared)

	var buf bytes.Buffer
	require.NoError(t, rep.Print(&buf))
	assert.Contains(t, buf.String(), "No trades matched.")
}

func TestReport_NoOrders(t *testing.T) {
	rep, err := Clear(nil, batchTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rep.Print(&buf))
	assert.Equal(t, "No orders entered.\n", buf.String())
}

func TestFormatPrice(t *testing.T) {
	tests := map[string]string{
		"10":     "10.00",
		"10.5":   "10.50",
		"10.50":  "10.50",
		"10.125": "10.125",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatPrice(mustDecimal(t, in)), in)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
