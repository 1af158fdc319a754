package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/callauction/internal/domain"
	"github.com/efreitasn/callauction/internal/service"
	"github.com/go-chi/chi/v5"
)

// RoundHandler handles HTTP requests for clearing rounds.
type RoundHandler struct {
	svc *service.AuctionService
}

// NewRoundHandler creates a new RoundHandler.
func NewRoundHandler(svc *service.AuctionService) *RoundHandler {
	return &RoundHandler{svc: svc}
}

type tradeResponse struct {
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type roundResponse struct {
	RoundID        string          `json:"round_id"`
	Symbol         string          `json:"symbol"`
	ClearingPrice  string          `json:"clearing_price"`
	MatchedVolume  int64           `json:"matched_volume"`
	Trades         []tradeResponse `json:"trades"`
	FilledOrderIDs []int64         `json:"filled_order_ids"`
	ExecutedAt     string          `json:"executed_at"`
}

type roundListResponse struct {
	Rounds []roundResponse `json:"rounds"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// RunClearing handles POST /auctions/{symbol}/rounds.
func (h *RoundHandler) RunClearing(w http.ResponseWriter, r *http.Request) {
	round, err := h.svc.RunClearing(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildRoundResponse(*round))
}

// ListRounds handles GET /auctions/{symbol}/rounds.
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	rounds, total, err := h.svc.ListRounds(symbol, page, limit)
	if err != nil {
		mapAuctionError(w, err)
		return
	}

	resp := roundListResponse{
		Rounds: make([]roundResponse, 0, len(rounds)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for _, rd := range rounds {
		resp.Rounds = append(resp.Rounds, buildRoundResponse(rd))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetRound handles GET /rounds/{round_id}.
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.svc.GetRound(chi.URLParam(r, "round_id"))
	if err != nil {
		mapAuctionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(round))
}

func buildRoundResponse(rd domain.Round) roundResponse {
	trades := make([]tradeResponse, 0, len(rd.Result.Trades))
	for _, t := range rd.Result.Trades {
		trades = append(trades, tradeResponse{
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Buyer:       t.Buyer,
			Seller:      t.Seller,
			Price:       t.Price.String(),
			Quantity:    t.Quantity,
		})
	}
	filled := rd.Filled
	if filled == nil {
		filled = []int64{}
	}
	return roundResponse{
		RoundID:        rd.RoundID,
		Symbol:         rd.Symbol,
		ClearingPrice:  rd.Result.ClearingPrice.String(),
		MatchedVolume:  rd.Result.MatchedVolume,
		Trades:         trades,
		FilledOrderIDs: filled,
		ExecutedAt:     rd.ExecutedAt.UTC().Format(time.RFC3339Nano),
	}
}
