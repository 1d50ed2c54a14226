package router

import (
	"net/http"

	"roleshop-api/internal/handler"
	"roleshop-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ShopHandler    *handler.ShopHandler
	AuctionHandler *handler.AuctionHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Admin-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.ShopHandler != nil {
				r.Route("/shop", func(r chi.Router) {
					r.Route("/roles", func(r chi.Router) {
						r.Post("/", cfg.ShopHandler.Purchase)
						r.Get("/", cfg.ShopHandler.ListOwned)
						r.Get("/shared", cfg.ShopHandler.ListShared)

						r.Route("/{id}", func(r chi.Router) {
							r.Get("/", cfg.ShopHandler.Get)
							r.Post("/maintenance", cfg.ShopHandler.PayMaintenance)
							r.Post("/sell", cfg.ShopHandler.SellSlot)
							r.Post("/share", cfg.ShopHandler.Share)
							r.Post("/unshare", cfg.ShopHandler.Unshare)
							r.Get("/grants", cfg.ShopHandler.ListGrants)

							if cfg.AuctionHandler != nil {
								r.Post("/auction", cfg.AuctionHandler.Start)
								r.Post("/auction/bid", cfg.AuctionHandler.Bid)
							}
						})
					})

					if cfg.AuctionHandler != nil {
						r.Get("/auctions", cfg.AuctionHandler.ListActive)
					}
					r.Get("/balance/{account_id}", cfg.ShopHandler.Balance)
					r.Get("/history/{account_id}", cfg.ShopHandler.History)
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.HealthDetailed)
					r.Get("/config", cfg.AdminHandler.GetConfig)
					r.Put("/config", cfg.AdminHandler.UpdateConfig)
					r.Post("/sync", cfg.AdminHandler.ForceSync)
					r.Post("/credit", cfg.AdminHandler.Credit)
					r.Get("/balance/{account_id}", cfg.AdminHandler.Balance)
				})
			}
		})
	})

	return r
}
