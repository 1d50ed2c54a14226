package handler

import (
	"encoding/json"
	"net/http"

	"roleshop-api/internal/service"
	"roleshop-api/pkg/apierror"
	"roleshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AuctionHandler handles the auction HTTP surface.
type AuctionHandler struct {
	auctionService *service.AuctionService
}

// NewAuctionHandler creates a new auction handler.
func NewAuctionHandler(auctionService *service.AuctionService) *AuctionHandler {
	return &AuctionHandler{auctionService: auctionService}
}

type startAuctionRequest struct {
	AccountID    string `json:"account_id"`
	StartingBid  int64  `json:"starting_bid"`
	DurationDays int    `json:"duration_days"`
}

// Start handles POST /api/v1/shop/roles/{id}/auction
func (h *AuctionHandler) Start(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req startAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id, starting_bid, and duration_days are required"))
		return
	}

	ent, err := h.auctionService.Start(r.Context(), req.AccountID, entitlementID, req.StartingBid, req.DurationDays)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, ent)
}

type bidRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// Bid handles POST /api/v1/shop/roles/{id}/auction/bid
func (h *AuctionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id and amount are required"))
		return
	}

	ent, err := h.auctionService.Bid(r.Context(), req.AccountID, entitlementID, req.Amount)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, ent)
}

// ListActive handles GET /api/v1/shop/auctions
func (h *AuctionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ents, err := h.auctionService.ListActive(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"auctions": ents,
		"count":    len(ents),
	})
}
