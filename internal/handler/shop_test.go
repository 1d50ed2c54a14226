package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"roleshop-api/internal/cache"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// newTestServer wires the shop surface to a real SQLite repository, with
// the optional integrations left unconfigured.
func newTestServer(t *testing.T) (*httptest.Server, repository.ShopRepository) {
	t.Helper()
	dir := t.TempDir()

	repo, err := repository.NewSQLiteShopRepository(filepath.Join(dir, "shop.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	history, err := repository.NewSQLiteHistoryRepository(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("failed to create history repository: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	configService := service.NewConfigService(repo, cache.NewMemoryCache(), 0)
	shopService := service.NewShopService(repo, history, nil, nil, nil, configService)
	sharingService := service.NewSharingService(repo, nil, nil, configService, shopService)
	auctionService := service.NewAuctionService(repo, nil, nil, configService, shopService)

	shopHandler := NewShopHandler(shopService, sharingService)
	auctionHandler := NewAuctionHandler(auctionService)

	r := chi.NewRouter()
	r.Route("/api/v1/shop", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			r.Post("/", shopHandler.Purchase)
			r.Get("/", shopHandler.ListOwned)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", shopHandler.Get)
				r.Post("/maintenance", shopHandler.PayMaintenance)
				r.Post("/sell", shopHandler.SellSlot)
				r.Post("/auction", auctionHandler.Start)
				r.Post("/auction/bid", auctionHandler.Bid)
			})
		})
		r.Get("/auctions", auctionHandler.ListActive)
		r.Get("/balance/{account_id}", shopHandler.Balance)
		r.Get("/history/{account_id}", shopHandler.History)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, decoded
}

func TestPurchaseEndpoint(t *testing.T) {
	t.Parallel()
	srv, repo := newTestServer(t)

	if _, err := repo.Credit(context.Background(), "alice", 10000); err != nil {
		t.Fatalf("failed to fund alice: %v", err)
	}

	resp, body := postJSON(t, srv.URL+"/api/v1/shop/roles", map[string]string{
		"account_id": "alice",
		"label":      "Neon Knight",
		"color":      "#ff00aa",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("expected success envelope, got %v", body)
	}
	data := body["data"].(map[string]interface{})
	if data["label"] != "Neon Knight" || data["status"] != "ACTIVE" {
		t.Errorf("unexpected entitlement payload %v", data)
	}

	// The balance reflects the purchase.
	resp, body = getJSON(t, srv.URL+"/api/v1/shop/balance/alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["data"].(map[string]interface{})["balance"].(float64) != 0 {
		t.Errorf("expected balance 0 after purchase, got %v", body)
	}
}

func TestPurchaseEndpointErrors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	// Missing account id.
	resp, body := postJSON(t, srv.URL+"/api/v1/shop/roles", map[string]string{
		"label": "Nobody",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	// Unfunded account gets the 402 envelope.
	resp, body = postJSON(t, srv.URL+"/api/v1/shop/roles", map[string]string{
		"account_id": "broke",
		"label":      "Champagne",
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %v", resp.StatusCode, body)
	}
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "INSUFFICIENT_FUNDS" {
		t.Errorf("unexpected error code %v", errObj["code"])
	}
}

func TestAuctionEndpoints(t *testing.T) {
	t.Parallel()
	srv, repo := newTestServer(t)
	ctx := context.Background()

	for _, account := range []string{"seller", "bidder"} {
		if _, err := repo.Credit(ctx, account, 20000); err != nil {
			t.Fatalf("failed to fund %s: %v", account, err)
		}
	}

	_, body := postJSON(t, srv.URL+"/api/v1/shop/roles", map[string]string{
		"account_id": "seller",
		"label":      "Auctioned",
	})
	entID := body["data"].(map[string]interface{})["id"].(string)

	resp, body := postJSON(t, fmt.Sprintf("%s/api/v1/shop/roles/%s/auction", srv.URL, entID), map[string]interface{}{
		"account_id":    "seller",
		"starting_bid":  500,
		"duration_days": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}

	resp, body = postJSON(t, fmt.Sprintf("%s/api/v1/shop/roles/%s/auction/bid", srv.URL, entID), map[string]interface{}{
		"account_id": "bidder",
		"amount":     600,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	auction := body["data"].(map[string]interface{})["auction"].(map[string]interface{})
	if auction["current_bid"].(float64) != 600 {
		t.Errorf("expected current bid 600, got %v", auction)
	}

	// A losing bid reports 400.
	resp, _ = postJSON(t, fmt.Sprintf("%s/api/v1/shop/roles/%s/auction/bid", srv.URL, entID), map[string]interface{}{
		"account_id": "bidder",
		"amount":     600,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-increasing bid, got %d", resp.StatusCode)
	}

	resp, body = getJSON(t, srv.URL+"/api/v1/shop/auctions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["data"].(map[string]interface{})["count"].(float64) != 1 {
		t.Errorf("expected one active auction, got %v", body)
	}
}
