package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/efreitasn/callauction/internal/engine"
	"github.com/efreitasn/callauction/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AuctionHandler handles HTTP requests for a venue's orders, depth and
// indicative price.
type AuctionHandler struct {
	svc *service.AuctionService
}

// NewAuctionHandler creates a new AuctionHandler.
func NewAuctionHandler(svc *service.AuctionService) *AuctionHandler {
	return &AuctionHandler{svc: svc}
}

// orderRequest is the JSON request body for order submission and
// amendment. Price accepts a JSON string ("10.50") or number.
type orderRequest struct {
	Side        string           `json:"side"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    int64            `json:"quantity"`
	Participant string           `json:"participant"`
}

func (req orderRequest) toService() (service.SubmitOrderRequest, error) {
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return service.SubmitOrderRequest{}, err
	}
	if req.Price == nil {
		return service.SubmitOrderRequest{}, &domain.ValidationError{Message: "price is required"}
	}
	return service.SubmitOrderRequest{
		Side:        side,
		Price:       *req.Price,
		Quantity:    req.Quantity,
		Participant: req.Participant,
	}, nil
}

// orderResponse is the JSON representation of an active order.
type orderResponse struct {
	OrderID     int64  `json:"order_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	Participant string `json:"participant"`
	SubmittedAt string `json:"submitted_at"`
}

type orderListResponse struct {
	Symbol string          `json:"symbol"`
	Orders []orderResponse `json:"orders"`
}

type depthLevelResponse struct {
	Price        string `json:"price"`
	SellQuantity int64  `json:"sell_quantity"`
	BuyQuantity  int64  `json:"buy_quantity"`
}

type priceLevelResponse struct {
	Price         string `json:"price"`
	TotalQuantity int64  `json:"total_quantity"`
	OrderCount    int    `json:"order_count"`
}

type depthResponse struct {
	Symbol string               `json:"symbol"`
	Levels []depthLevelResponse `json:"levels"`
	Bids   []priceLevelResponse `json:"bids"`
	Asks   []priceLevelResponse `json:"asks"`
}

type quoteResponse struct {
	Symbol        string `json:"symbol"`
	ClearingPrice string `json:"clearing_price"`
	MatchedVolume int64  `json:"matched_volume"`
	BuyVolume     int64  `json:"buy_volume"`
	SellVolume    int64  `json:"sell_volume"`
}

// SubmitOrder handles POST /auctions/{symbol}/orders.
func (h *AuctionHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req orderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in, err := req.toService()
	if err != nil {
		mapAuctionError(w, err)
		return
	}

	order, err := h.svc.SubmitOrder(r.Context(), symbol, in)
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(symbol, order))
}

// ListOrders handles GET /auctions/{symbol}/orders.
func (h *AuctionHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	orders, err := h.svc.ListOrders(symbol)
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	resp := orderListResponse{Symbol: symbol, Orders: make([]orderResponse, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, buildOrderResponse(symbol, o))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetOrder handles GET /auctions/{symbol}/orders/{order_id}.
func (h *AuctionHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(symbol, id)
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(symbol, order))
}

// AmendOrder handles PUT /auctions/{symbol}/orders/{order_id}.
func (h *AuctionHandler) AmendOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in, err := req.toService()
	if err != nil {
		mapAuctionError(w, err)
		return
	}

	order, err := h.svc.AmendOrder(r.Context(), symbol, id, in)
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(symbol, order))
}

// CancelOrder handles DELETE /auctions/{symbol}/orders/{order_id}.
func (h *AuctionHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.CancelOrder(r.Context(), symbol, id); err != nil {
		mapAuctionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearBook handles DELETE /auctions/{symbol}/orders.
func (h *AuctionHandler) ClearBook(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearBook(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		mapAuctionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDepth handles GET /auctions/{symbol}/depth.
func (h *AuctionHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.svc.GetDepth(chi.URLParam(r, "symbol"))
	if err != nil {
		mapAuctionError(w, err)
		return
	}

	resp := depthResponse{
		Symbol: depth.Symbol,
		Levels: make([]depthLevelResponse, 0, len(depth.Levels)),
		Bids:   buildPriceLevels(depth.Bids),
		Asks:   buildPriceLevels(depth.Asks),
	}
	for _, lvl := range depth.Levels {
		resp.Levels = append(resp.Levels, depthLevelResponse{
			Price:        lvl.Price.String(),
			SellQuantity: lvl.SellQuantity,
			BuyQuantity:  lvl.BuyQuantity,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// IndicativePrice handles GET /auctions/{symbol}/indicative.
func (h *AuctionHandler) IndicativePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	q, err := h.svc.IndicativePrice(symbol)
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		Symbol:        symbol,
		ClearingPrice: q.Price.String(),
		MatchedVolume: q.MatchedVolume,
		BuyVolume:     q.BuyVolume,
		SellVolume:    q.SellVolume,
	})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func buildOrderResponse(symbol string, o domain.Order) orderResponse {
	return orderResponse{
		OrderID:     o.ID,
		Symbol:      symbol,
		Side:        string(o.Side),
		Price:       o.Price.String(),
		Quantity:    o.Quantity,
		Participant: o.Participant,
		SubmittedAt: o.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

func buildPriceLevels(levels []engine.PriceLevel) []priceLevelResponse {
	resp := make([]priceLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		resp = append(resp, priceLevelResponse{
			Price:         lvl.Price.String(),
			TotalQuantity: lvl.TotalQuantity,
			OrderCount:    lvl.OrderCount,
		})
	}
	return resp
}

// mapAuctionError maps service/domain errors to HTTP error responses.
func mapAuctionError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrSymbolNotFound):
		WriteError(w, http.StatusNotFound, "symbol_not_found", "Auction venue not found")
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, domain.ErrRoundNotFound):
		WriteError(w, http.StatusNotFound, "round_not_found", "Round not found")
	case errors.Is(err, domain.ErrNoLiquidity):
		WriteError(w, http.StatusConflict, "no_liquidity", "No price matches any volume")
	case errors.Is(err, domain.ErrAllocation):
		WriteError(w, http.StatusInternalServerError, "allocation_error", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
