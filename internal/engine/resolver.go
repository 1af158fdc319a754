package engine

import (
	"github.com/efreitasn/callauction/internal/domain"
	"github.com/shopspring/decimal"
)

// Quote is the clearing price chosen for a snapshot together with the
// volumes that justify it.
type Quote struct {
	Price           decimal.Decimal
	MatchedVolume   int64
	BuyVolume       int64 // buy quantity willing to pay at least Price
	SellVolume      int64 // sell quantity willing to accept at most Price
	SnapshotVersion uint64
}

// VolumePoint is the executable volume at one candidate price.
type VolumePoint struct {
	Price         decimal.Decimal
	BuyVolume     int64
	SellVolume    int64
	MatchedVolume int64
}

// CandidatePrices returns the distinct prices present in the snapshot,
// ascending.
func CandidatePrices(snap Snapshot) []decimal.Decimal {
	levels := Depth(snap)
	prices := make([]decimal.Decimal, len(levels))
	for i, lvl := range levels {
		prices[i] = lvl.Price
	}
	return prices
}

// volumesAt sums buy quantity priced >= p and sell quantity priced <= p.
func volumesAt(orders []domain.Order, p decimal.Decimal) (buy, sell int64) {
	for _, o := range orders {
		switch o.Side {
		case domain.SideBuy:
			if o.Price.GreaterThanOrEqual(p) {
				buy += o.Quantity
			}
		case domain.SideSell:
			if o.Price.LessThanOrEqual(p) {
				sell += o.Quantity
			}
		}
	}
	return buy, sell
}

// CandidateVolumes evaluates every candidate price. The scan is
// O(prices × orders), which suits auction-round cadence.
func CandidateVolumes(snap Snapshot) []VolumePoint {
	prices := CandidatePrices(snap)
	points := make([]VolumePoint, len(prices))
	for i, p := range prices {
		buy, sell := volumesAt(snap.Orders, p)
		points[i] = VolumePoint{
			Price:         p,
			BuyVolume:     buy,
			SellVolume:    sell,
			MatchedVolume: min(buy, sell),
		}
	}
	return points
}

// ResolveClearingPrice picks the candidate price that maximizes matched
// volume. Among equal volumes the lowest price wins. It returns
// domain.ErrNoLiquidity when the snapshot is empty, one-sided, or no
// price matches any volume.
func ResolveClearingPrice(snap Snapshot) (Quote, error) {
	var hasBuy, hasSell bool
	for _, o := range snap.Orders {
		if o.Side == domain.SideBuy {
			hasBuy = true
		} else {
			hasSell = true
		}
	}
	if !hasBuy || !hasSell {
		return Quote{}, domain.ErrNoLiquidity
	}

	var best VolumePoint
	found := false
	for _, pt := range CandidateVolumes(snap) {
		// Candidates ascend, so a strict comparison keeps the lowest
		// price among ties.
		if !found || pt.MatchedVolume > best.MatchedVolume {
			best = pt
			found = true
		}
	}
	if best.MatchedVolume == 0 {
		return Quote{}, domain.ErrNoLiquidity
	}

	return Quote{
		Price:           best.Price,
		MatchedVolume:   best.MatchedVolume,
		BuyVolume:       best.BuyVolume,
		SellVolume:      best.SellVolume,
		SnapshotVersion: snap.Version,
	}, nil
}
