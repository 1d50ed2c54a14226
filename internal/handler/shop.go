package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"roleshop-api/internal/service"
	"roleshop-api/pkg/apierror"
	"roleshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ShopHandler handles the role shop HTTP surface.
type ShopHandler struct {
	shopService    *service.ShopService
	sharingService *service.SharingService
}

// NewShopHandler creates a new shop handler.
func NewShopHandler(shopService *service.ShopService, sharingService *service.SharingService) *ShopHandler {
	return &ShopHandler{
		shopService:    shopService,
		sharingService: sharingService,
	}
}

type purchaseRequest struct {
	AccountID string `json:"account_id"`
	Label     string `json:"label"`
	Color     string `json:"color,omitempty"`
}

// Purchase handles POST /api/v1/shop/roles
func (h *ShopHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	ent, err := h.shopService.Purchase(r.Context(), req.AccountID, req.Label, req.Color)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, ent)
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

// PayMaintenance handles POST /api/v1/shop/roles/{id}/maintenance
func (h *ShopHandler) PayMaintenance(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	ent, err := h.shopService.PayMaintenance(r.Context(), req.AccountID, entitlementID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, ent)
}

// SellSlot handles POST /api/v1/shop/roles/{id}/sell
func (h *ShopHandler) SellSlot(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	ent, refund, err := h.shopService.SellSlot(r.Context(), req.AccountID, entitlementID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"entitlement": ent,
		"refund":      refund,
	})
}

// Get handles GET /api/v1/shop/roles/{id}
func (h *ShopHandler) Get(w http.ResponseWriter, r *http.Request) {
	ent, err := h.shopService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, ent)
}

// ListOwned handles GET /api/v1/shop/roles?owner={account_id}
func (h *ShopHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		response.Error(w, apierror.BadRequest("owner query parameter is required"))
		return
	}

	ents, err := h.shopService.ListOwned(r.Context(), owner)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"owner": owner,
		"roles": ents,
		"count": len(ents),
	})
}

// ListShared handles GET /api/v1/shop/roles/shared?account={account_id}
func (h *ShopHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		response.Error(w, apierror.BadRequest("account query parameter is required"))
		return
	}

	ents, err := h.sharingService.ListSharedWith(r.Context(), account)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"account": account,
		"roles":   ents,
		"count":   len(ents),
	})
}

type shareRequest struct {
	AccountID        string `json:"account_id"`
	GranteeAccountID string `json:"grantee_account_id"`
}

// Share handles POST /api/v1/shop/roles/{id}/share
func (h *ShopHandler) Share(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id and grantee_account_id are required"))
		return
	}

	grant, err := h.sharingService.Share(r.Context(), req.AccountID, entitlementID, req.GranteeAccountID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, grant)
}

// Unshare handles POST /api/v1/shop/roles/{id}/unshare
func (h *ShopHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		response.Error(w, apierror.BadRequest("account_id and grantee_account_id are required"))
		return
	}

	grant, err := h.sharingService.Unshare(r.Context(), req.AccountID, entitlementID, req.GranteeAccountID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, grant)
}

// ListGrants handles GET /api/v1/shop/roles/{id}/grants?account={owner}
func (h *ShopHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "id")
	owner := r.URL.Query().Get("account")
	if owner == "" {
		response.Error(w, apierror.BadRequest("account query parameter is required"))
		return
	}

	grants, err := h.sharingService.ActiveGrants(r.Context(), owner, entitlementID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"entitlement_id": entitlementID,
		"grants":         grants,
		"count":          len(grants),
	})
}

// Balance handles GET /api/v1/shop/balance/{account_id}
func (h *ShopHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	balance, err := h.shopService.Balance(r.Context(), accountID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
	})
}

// History handles GET /api/v1/shop/history/{account_id}?limit=50
func (h *ShopHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(w, apierror.BadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.shopService.History(r.Context(), accountID, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"account_id": accountID,
		"records":    records,
		"count":      len(records),
	})
}
