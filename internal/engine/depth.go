package engine

import (
	"github.com/efreitasn/callauction/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// PriceLevel aggregates one side of the book at a single price.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// DepthLevel is one row of the combined depth table. A side with no
// orders at Price reports 0.
type DepthLevel struct {
	Price        decimal.Decimal
	SellQuantity int64
	BuyQuantity  int64
}

// Prices are grouped by numeric value, so "10.5" and "10.50" share a
// level.
func depthLess(a, b DepthLevel) bool {
	return a.Price.LessThan(b.Price)
}

// Depth aggregates the snapshot into a table indexed by price in
// ascending order with sell and buy quantity columns. It is recomputed
// on every call.
func Depth(snap Snapshot) []DepthLevel {
	tree := btree.NewG[DepthLevel](8, depthLess)
	for _, o := range snap.Orders {
		lvl, _ := tree.Get(DepthLevel{Price: o.Price})
		lvl.Price = o.Price
		if o.Side == domain.SideBuy {
			lvl.BuyQuantity += o.Quantity
		} else {
			lvl.SellQuantity += o.Quantity
		}
		tree.ReplaceOrInsert(lvl)
	}

	levels := make([]DepthLevel, 0, tree.Len())
	tree.Ascend(func(lvl DepthLevel) bool {
		levels = append(levels, lvl)
		return true
	})
	return levels
}

// SideDepth aggregates one side of the snapshot. Buy levels are ordered
// best bid first (price descending), sell levels best ask first (price
// ascending).
func SideDepth(snap Snapshot, side domain.Side) []PriceLevel {
	less := func(a, b PriceLevel) bool { return a.Price.LessThan(b.Price) }
	if side == domain.SideBuy {
		less = func(a, b PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}

	tree := btree.NewG[PriceLevel](8, less)
	for _, o := range snap.Orders {
		if o.Side != side {
			continue
		}
		lvl, _ := tree.Get(PriceLevel{Price: o.Price})
		lvl.Price = o.Price
		lvl.TotalQuantity += o.Quantity
		lvl.OrderCount++
		tree.ReplaceOrInsert(lvl)
	}

	levels := make([]PriceLevel, 0, tree.Len())
	tree.Ascend(func(lvl PriceLevel) bool {
		levels = append(levels, lvl)
		return true
	})
	return levels
}
