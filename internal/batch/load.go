// Package batch loads order files for one-shot offline clearing and
// prints the resulting report.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LineError reports an order that could not be read. Line is 1-based.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Result holds the orders read from a file together with the entries
// that were skipped.
type Result struct {
	Orders  []domain.OrderInput
	Invalid []*LineError
}

// LoadFile reads an order file. Files ending in .yaml or .yml are read
// as YAML; anything else uses the line format.
func LoadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ReadYAML(f)
	default:
		return ReadLines(f)
	}
}

// ReadLines reads one order per line as "Side Price Quantity
// Participant", e.g. "Buy 10.50 1000 Alice". Blank lines and lines
// starting with # are ignored, and a line reading DONE ends the input.
func ReadLines(r io.Reader) (Result, error) {
	var res Result
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if strings.EqualFold(text, "DONE") {
			break
		}
		in, err := parseLine(text)
		if err != nil {
			res.Invalid = append(res.Invalid, &LineError{Line: line, Err: err})
			continue
		}
		res.Orders = append(res.Orders, in)
	}
	if err := sc.Err(); err != nil {
		return Result{}, fmt.Errorf("read orders: %w", err)
	}
	return res, nil
}

func parseLine(text string) (domain.OrderInput, error) {
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return domain.OrderInput{}, &domain.ValidationError{
			Message: fmt.Sprintf("expected 4 fields (Side Price Quantity Participant), got %d", len(fields)),
		}
	}
	side, err := domain.ParseSide(fields[0])
	if err != nil {
		return domain.OrderInput{}, err
	}
	price, err := domain.ParsePrice(fields[1])
	if err != nil {
		return domain.OrderInput{}, err
	}
	qty, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return domain.OrderInput{}, &domain.ValidationError{
			Message: fmt.Sprintf("quantity must be a positive integer, got %q", fields[2]),
		}
	}
	return domain.OrderInput{
		Side:        side,
		Price:       price,
		Quantity:    qty,
		Participant: fields[3],
	}.Validate()
}

// yamlFile is the YAML layout:
//
//	orders:
//	  - {side: buy, price: 10.50, quantity: 1000, participant: Alice}
type yamlFile struct {
	Orders []yaml.Node `yaml:"orders"`
}

type yamlOrder struct {
	Side        string    `yaml:"side"`
	Price       yamlPrice `yaml:"price"`
	Quantity    int64     `yaml:"quantity"`
	Participant string    `yaml:"participant"`
}

// yamlPrice keeps the literal text of the price scalar so that 10.50
// is read as a decimal rather than through float64.
type yamlPrice struct {
	decimal.Decimal
	set bool
}

func (p *yamlPrice) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return &domain.ValidationError{Message: "price must be a number"}
	}
	d, err := domain.ParsePrice(node.Value)
	if err != nil {
		return err
	}
	p.Decimal = d
	p.set = true
	return nil
}

// ReadYAML reads a YAML order file. A malformed document is an error;
// individual malformed orders are reported in Result.Invalid with the
// line they start on.
func ReadYAML(r io.Reader) (Result, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("decode orders: %w", err)
	}

	var res Result
	for i := range doc.Orders {
		node := &doc.Orders[i]
		in, err := decodeYAMLOrder(node)
		if err != nil {
			res.Invalid = append(res.Invalid, &LineError{Line: node.Line, Err: err})
			continue
		}
		res.Orders = append(res.Orders, in)
	}
	return res, nil
}

func decodeYAMLOrder(node *yaml.Node) (domain.OrderInput, error) {
	var o yamlOrder
	if err := node.Decode(&o); err != nil {
		return domain.OrderInput{}, err
	}
	side, err := domain.ParseSide(o.Side)
	if err != nil {
		return domain.OrderInput{}, err
	}
	if !o.Price.set {
		return domain.OrderInput{}, &domain.ValidationError{Message: "price is required"}
	}
	return domain.OrderInput{
		Side:        side,
		Price:       o.Price.Decimal,
		Quantity:    o.Quantity,
		Participant: o.Participant,
	}.Validate()
}
