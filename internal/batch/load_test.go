package batch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	input := `# opening auction
Buy 10.50 1000 Alice
buy 10.00 500  Carol

Sell 9.75 700 Bob
Sell ten 400 Dave
Hold 10 1 Erin
Sell 10.25 400
Sell 10.25 0 Dave
Sell 10.25 400 Dave
DONE
Buy 99 1 Ignored
`
	res, err := ReadLines(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Orders, 4)
	assert.Equal(t, domain.SideBuy, res.Orders[0].Side)
	assert.True(t, res.Orders[0].Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, int64(1000), res.Orders[0].Quantity)
	assert.Equal(t, "Alice", res.Orders[0].Participant)
	assert.Equal(t, "Carol", res.Orders[1].Participant)
	assert.Equal(t, domain.SideSell, res.Orders[3].Side)

	var lines []int
	for _, le := range res.Invalid {
		lines = append(lines, le.Line)
		var ve *domain.ValidationError
		assert.True(t, errors.As(le, &ve), "line %d should wrap a validation error", le.Line)
	}
	assert.Equal(t, []int{6, 7, 8, 9}, lines)
}

func TestReadLines_Empty(t *testing.T) {
	res, err := ReadLines(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Empty(t, res.Invalid)
}

func TestReadYAML(t *testing.T) {
	input := `orders:
  - {side: Buy, price: 10.50, quantity: 1000, participant: Alice}
  - side: sell
    price: "9.75"
    quantity: 700
    participant: " Bob "
  - {side: sell, price: -1, quantity: 5, participant: Dave}
  - {side: buy, quantity: 5, participant: Erin}
  - {side: buy, price: 10, quantity: lots, participant: Fay}
`
	res, err := ReadYAML(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Orders, 2)
	assert.Equal(t, "10.5", res.Orders[0].Price.String())
	assert.Equal(t, "Bob", res.Orders[1].Participant, "participant is trimmed")

	require.Len(t, res.Invalid, 3)
	assert.Equal(t, 7, res.Invalid[0].Line)
	assert.Equal(t, 8, res.Invalid[1].Line)
	assert.Contains(t, res.Invalid[1].Error(), "price is required")
	assert.Equal(t, 9, res.Invalid[2].Line)
}

func TestReadYAML_Malformed(t *testing.T) {
	_, err := ReadYAML(strings.NewReader("orders: [unclosed"))
	assert.Error(t, err)
}

func TestReadYAML_EmptyDocument(t *testing.T) {
	res, err := ReadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
}

func TestLoadFile_ChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "orders.yml")
	txtPath := filepath.Join(dir, "orders.txt")
	require.NoError(t, os.WriteFile(yamlPath, []byte("orders:\n  - {side: buy, price: 1, quantity: 1, participant: A}\n"), 0o600))
	require.NoError(t, os.WriteFile(txtPath, []byte("Sell 1 1 B\n"), 0o600))

	res, err := LoadFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, domain.SideBuy, res.Orders[0].Side)

	res, err = LoadFile(txtPath)
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, domain.SideSell, res.Orders[0].Side)

	_, err = LoadFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
